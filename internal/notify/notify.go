// Package notify publishes render-pending signals after a harvested record has
// been written, so downstream renderers can pick the object up without
// polling the store. Sinks register by kind; nats and kafka ship in
// subpackages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "csvharvest.render"

// Message announces that an object's payload changed.
type Message struct {
	OID       string    `json:"oid"`
	RecordID  string    `json:"record_id"`
	PayloadID string    `json:"payload_id"`
	Job       string    `json:"job,omitempty"`
	Time      time.Time `json:"time"`
}

// Encode returns the JSON wire form of m.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Sink delivers messages. Publish is called synchronously from the harvest
// loop; implementations should not buffer beyond a single call.
type Sink interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

// Config selects and configures a sink.
type Config struct {
	Kind    string
	URL     string
	Brokers []string
	Topic   string
}

// SinkFactory creates a Sink from cfg. Topic is already defaulted.
type SinkFactory func(cfg Config) (Sink, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]SinkFactory{}
)

// RegisterSink registers the factory for kind.
func RegisterSink(kind string, f SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = f
}

// New creates the sink for cfg.Kind.
func New(cfg Config) (Sink, error) {
	factoryMu.RLock()
	f, ok := factories[cfg.Kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown notify kind: %s", cfg.Kind)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return f(cfg)
}

// Kinds lists registered sink kinds.
func Kinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

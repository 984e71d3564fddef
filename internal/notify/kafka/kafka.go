// Package kafka publishes render-pending messages to a Kafka topic, keyed by
// object id so updates to one object stay ordered on one partition.
package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"csvharvest/internal/notify"
)

const (
	DefaultBatchSize  = 100
	DefaultBatchBytes = 1 << 20 // 1MB
)

func init() {
	notify.RegisterSink("kafka", func(cfg notify.Config) (notify.Sink, error) {
		return NewSink(DefaultConfig(cfg.Brokers, cfg.Topic))
	})
}

// Config holds configuration for Sink.
type Config struct {
	Brokers          []string
	Topic            string
	BatchSize        int
	BatchBytes       int64
	RequiredAcks     kafka.RequiredAcks
	AutoCreateTopics bool
}

// DefaultConfig returns a Config that waits for all replicas.
func DefaultConfig(brokers []string, topic string) Config {
	return Config{
		Brokers:          brokers,
		Topic:            topic,
		BatchSize:        DefaultBatchSize,
		BatchBytes:       DefaultBatchBytes,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// Sink writes synchronously through a kafka.Writer.
type Sink struct {
	writer *kafka.Writer
}

// NewSink validates cfg and builds the writer. No connection is made until
// the first Publish.
func NewSink(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka notify requires at least one broker address")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka notify requires a topic")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}

	return &Sink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		RequiredAcks:           cfg.RequiredAcks,
		Async:                  false,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}}, nil
}

// Publish implements notify.Sink.
func (s *Sink) Publish(ctx context.Context, m notify.Message) error {
	value, err := m.Encode()
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(m.OID), Value: value})
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

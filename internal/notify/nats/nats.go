// Package nats publishes render-pending messages to NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"csvharvest/internal/notify"
)

func init() {
	notify.RegisterSink("nats", func(cfg notify.Config) (notify.Sink, error) {
		if cfg.URL == "" {
			return nil, fmt.Errorf("nats notify requires url")
		}
		return NewSink(cfg.URL, cfg.Topic)
	})
}

// Sink publishes each message on one JetStream subject, with the object id
// in the "oid" header.
type Sink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewSink connects to url and makes sure a stream captures subject.
func NewSink(url, subject string) (*Sink, error) {
	nc, err := nats.Connect(url,
		nats.Name("csvharvest"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := streamName(subject)
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	return &Sink{nc: nc, js: js, subject: subject}, nil
}

// Publish implements notify.Sink.
func (s *Sink) Publish(ctx context.Context, m notify.Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  nats.Header{"oid": []string{m.OID}},
	}
	if _, err := s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *Sink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

// streamName derives a JetStream stream name from a subject; stream names
// may not contain '.', '*' or '>'.
func streamName(subject string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(strings.ToUpper(subject))
}

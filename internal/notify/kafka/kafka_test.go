package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvharvest/internal/notify"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig([]string{"localhost:9092", "localhost:9093"}, "render")
	assert.Len(t, cfg.Brokers, 2)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, int64(1048576), cfg.BatchBytes)
	assert.Equal(t, kafka.RequireAll, cfg.RequiredAcks)
}

func TestNewSink(t *testing.T) {
	t.Parallel()

	s, err := NewSink(Config{Brokers: []string{"localhost:9092"}, Topic: "render", RequiredAcks: kafka.RequireOne})
	require.NoError(t, err)
	require.NotNil(t, s.writer)
	assert.Equal(t, "render", s.writer.Topic)
	assert.Equal(t, DefaultBatchSize, s.writer.BatchSize)
	assert.False(t, s.writer.Async)
	assert.IsType(t, &kafka.Hash{}, s.writer.Balancer)
	require.NoError(t, s.Close())
}

func TestNewSink_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSink(Config{Topic: "render"})
	require.ErrorContains(t, err, "broker")

	_, err = NewSink(Config{Brokers: []string{"b:9092"}})
	require.ErrorContains(t, err, "topic")

	s, err := notify.New(notify.Config{Kind: "kafka", Brokers: []string{"b:9092"}})
	require.NoError(t, err)
	assert.Equal(t, notify.DefaultTopic, s.(*Sink).writer.Topic)
	require.NoError(t, s.Close())
}

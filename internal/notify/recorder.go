package notify

import (
	"context"
	"sync"
)

// Recorder is an in-process Sink that keeps every message. It backs the
// "log" kind (dry runs) and tests.
type Recorder struct {
	PublishErr error

	mu       sync.Mutex
	messages []Message
	closed   bool
}

func init() {
	RegisterSink("log", func(Config) (Sink, error) { return &Recorder{}, nil })
}

// Publish records m, or returns PublishErr when set.
func (r *Recorder) Publish(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.messages = append(r.messages, m)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Package memory is an in-process storage.Store. Nothing survives Close; it
// backs dry runs (kind "memory", alias "ram") and tests.
package memory

import (
	"context"
	"sync"

	"csvharvest/internal/storage"
)

func init() {
	factory := func(context.Context, storage.Config) (storage.Store, error) { return New(), nil }
	storage.Register("memory", factory)
	storage.Register("ram", factory)
}

type object struct {
	props    map[string]string
	payloads map[string]storage.Payload
}

// Store keeps objects in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]*object)}
}

func (s *Store) Get(_ context.Context, oid string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[oid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return o.snapshot(oid), nil
}

func (s *Store) Create(_ context.Context, oid string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[oid]
	if !ok {
		o = &object{props: map[string]string{}, payloads: map[string]storage.Payload{}}
		s.objects[oid] = o
	}
	return o.snapshot(oid), nil
}

func (s *Store) ReadPayload(_ context.Context, oid, pid string) (*storage.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[oid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p, ok := o.payloads[pid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p.Data = append([]byte(nil), p.Data...)
	return &p, nil
}

func (s *Store) WritePayload(_ context.Context, oid, pid string, p *storage.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[oid]
	if !ok {
		return storage.ErrNotFound
	}
	o.payloads[pid] = storage.Payload{
		ID:          pid,
		ContentType: p.ContentType,
		Data:        append([]byte(nil), p.Data...),
	}
	return nil
}

func (s *Store) SetProperty(_ context.Context, oid, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[oid]
	if !ok {
		return storage.ErrNotFound
	}
	o.props[key] = value
	return nil
}

// Len returns the number of objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// IDs returns every object id in no particular order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for id := range s.objects {
		out = append(out, id)
	}
	return out
}

func (s *Store) Close() error { return nil }

func (o *object) snapshot(oid string) *storage.Object {
	props := make(map[string]string, len(o.props))
	for k, v := range o.props {
		props[k] = v
	}
	return &storage.Object{ID: oid, Properties: props}
}

// Package pebble implements storage.Store on an embedded Pebble key/value
// store (kind "pebble"). Objects and payloads are msgpack-encoded records:
//
//	o/{oid}        -> objectRecord
//	p/{oid}/{pid}  -> payloadRecord
package pebble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/vmihailenco/msgpack/v5"

	"csvharvest/internal/storage"
)

const (
	prefixObject  = "o/"
	prefixPayload = "p/"
)

type objectRecord struct {
	Properties map[string]string `msgpack:"props"`
}

type payloadRecord struct {
	ContentType string `msgpack:"ct"`
	Data        []byte `msgpack:"data"`
}

// Config holds Pebble store configuration.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in a memory filesystem.
	InMemory bool
	// NoSync skips fsync on every write.
	NoSync bool
}

// Store is a Pebble-backed storage.Store. Read-modify-write of object records
// is serialized by mu.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	mu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

func init() {
	storage.Register("pebble", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		st, err := Open(Config{
			Path:     cfg.Path,
			InMemory: cfg.Options.Bool("in_memory", false),
			NoSync:   cfg.Options.Bool("no_sync", false),
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

// Open creates or opens the store.
func Open(cfg Config) (*Store, error) {
	opts := &pebble.Options{}
	path := cfg.Path
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		if path == "" {
			path = "harvest"
		}
	} else if path == "" {
		return nil, fmt.Errorf("pebble: path must not be empty")
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	wo := pebble.Sync
	if cfg.NoSync {
		wo = pebble.NoSync
	}
	return &Store{db: db, writeOpts: wo}, nil
}

func objectKey(oid string) []byte       { return []byte(prefixObject + oid) }
func payloadKey(oid, pid string) []byte { return []byte(prefixPayload + oid + "/" + pid) }

// get decodes the value at key into v, returning storage.ErrNotFound when
// the key is absent.
func (s *Store) get(key []byte, v any) error {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return msgpack.Unmarshal(val, v)
}

func (s *Store) put(key []byte, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set(key, b, s.writeOpts)
}

func (s *Store) loadObject(oid string) (*objectRecord, error) {
	var rec objectRecord
	if err := s.get(objectKey(oid), &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pebble: get object %s: %w", oid, err)
	}
	if rec.Properties == nil {
		rec.Properties = map[string]string{}
	}
	return &rec, nil
}

func (s *Store) Get(_ context.Context, oid string) (*storage.Object, error) {
	rec, err := s.loadObject(oid)
	if err != nil {
		return nil, err
	}
	return &storage.Object{ID: oid, Properties: rec.Properties}, nil
}

func (s *Store) Create(_ context.Context, oid string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadObject(oid)
	switch {
	case err == nil:
		return &storage.Object{ID: oid, Properties: rec.Properties}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	rec = &objectRecord{Properties: map[string]string{}}
	if err := s.put(objectKey(oid), rec); err != nil {
		return nil, fmt.Errorf("pebble: create object %s: %w", oid, err)
	}
	return &storage.Object{ID: oid, Properties: map[string]string{}}, nil
}

func (s *Store) ReadPayload(_ context.Context, oid, pid string) (*storage.Payload, error) {
	var rec payloadRecord
	if err := s.get(payloadKey(oid, pid), &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pebble: read payload %s/%s: %w", oid, pid, err)
	}
	return &storage.Payload{ID: pid, ContentType: rec.ContentType, Data: rec.Data}, nil
}

func (s *Store) WritePayload(_ context.Context, oid, pid string, p *storage.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadObject(oid); err != nil {
		return err
	}
	if err := s.put(payloadKey(oid, pid), payloadRecord{ContentType: p.ContentType, Data: p.Data}); err != nil {
		return fmt.Errorf("pebble: write payload %s/%s: %w", oid, pid, err)
	}
	return nil
}

func (s *Store) SetProperty(_ context.Context, oid, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadObject(oid)
	if err != nil {
		return err
	}
	rec.Properties[key] = value
	if err := s.put(objectKey(oid), rec); err != nil {
		return fmt.Errorf("pebble: set property %s: %w", oid, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

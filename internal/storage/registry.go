package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"csvharvest/internal/config"
)

// Config selects and configures a backend. Fields a backend does not use are
// ignored.
type Config struct {
	Kind string
	// DSN is the connection string for SQL backends.
	DSN string
	// Path is the data directory for embedded backends.
	Path string
	// Options carries backend knobs such as table_prefix and auto_create.
	Options config.Options
}

// FromConfig maps the storage block of a harvest configuration.
func FromConfig(s config.Storage) Config {
	return Config{Kind: s.Kind, DSN: s.DSN, Path: s.Path, Options: s.Options}
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind. Backends call it from
// init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Store of cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	if cfg.Options == nil {
		cfg.Options = config.Options{}
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds in sorted order.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

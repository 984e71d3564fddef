// Package postgres implements storage.Store on PostgreSQL using pgx v5 and a
// pgxpool connection pool. It registers kind "postgres".
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvharvest/internal/storage"
	"csvharvest/internal/storage/sqldoc"
)

// Config holds Postgres store configuration.
type Config struct {
	DSN string
	// Schema optionally qualifies the tables, e.g. "harvest".
	Schema      string
	TablePrefix string
	AutoCreate  bool
}

// Store is a Postgres-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config

	objects, payloads, properties string
}

var _ storage.Store = (*Store)(nil)

// newStore is a test hook that points to NewStore by default.
var newStore = NewStore

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		opt := sqldoc.OptionsFrom(cfg.Options)
		st, err := newStore(ctx, Config{
			DSN:         cfg.DSN,
			Schema:      cfg.Options.String("schema", ""),
			TablePrefix: opt.TablePrefix,
			AutoCreate:  opt.AutoCreate,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

// NewStore opens a pool, pings it and optionally creates the tables.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := newWithPool(pool, cfg)
	if cfg.AutoCreate {
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func newWithPool(pool *pgxpool.Pool, cfg Config) *Store {
	name := func(base string) string {
		if cfg.Schema != "" {
			return pgFQN(cfg.Schema + "." + cfg.TablePrefix + base)
		}
		return pgIdent(cfg.TablePrefix + base)
	}
	return &Store{
		pool:       pool,
		cfg:        cfg,
		objects:    name("objects"),
		payloads:   name("payloads"),
		properties: name("properties"),
	}
}

// schemaSQL returns the DDL creating missing tables.
func (s *Store) schemaSQL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid TEXT PRIMARY KEY
)`, s.objects),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid TEXT NOT NULL REFERENCES %s(oid) ON DELETE CASCADE,
	pid TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data BYTEA NOT NULL,
	PRIMARY KEY (oid, pid)
)`, s.payloads, s.objects),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid TEXT NOT NULL REFERENCES %s(oid) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (oid, name)
)`, s.properties, s.objects),
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schemaSQL() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: create schema: %w", describe(err))
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, oid string) (*storage.Object, error) {
	var got string
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT oid FROM %s WHERE oid = $1", s.objects), oid).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get object: %w", describe(err))
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT name, value FROM %s WHERE oid = $1", s.properties), oid)
	if err != nil {
		return nil, fmt.Errorf("postgres: get properties: %w", describe(err))
	}
	defer rows.Close()

	o := &storage.Object{ID: oid, Properties: map[string]string{}}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan property: %w", err)
		}
		o.Properties[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get properties: %w", describe(err))
	}
	return o, nil
}

func (s *Store) Create(ctx context.Context, oid string) (*storage.Object, error) {
	q := fmt.Sprintf("INSERT INTO %s (oid) VALUES ($1) ON CONFLICT (oid) DO NOTHING", s.objects)
	if _, err := s.pool.Exec(ctx, q, oid); err != nil {
		return nil, fmt.Errorf("postgres: create object: %w", describe(err))
	}
	return s.Get(ctx, oid)
}

func (s *Store) ReadPayload(ctx context.Context, oid, pid string) (*storage.Payload, error) {
	p := &storage.Payload{ID: pid}
	q := fmt.Sprintf("SELECT content_type, data FROM %s WHERE oid = $1 AND pid = $2", s.payloads)
	err := s.pool.QueryRow(ctx, q, oid, pid).Scan(&p.ContentType, &p.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: read payload: %w", describe(err))
	}
	return p, nil
}

func (s *Store) WritePayload(ctx context.Context, oid, pid string, p *storage.Payload) error {
	q := fmt.Sprintf(`INSERT INTO %s (oid, pid, content_type, data) VALUES ($1, $2, $3, $4)
ON CONFLICT (oid, pid) DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data`, s.payloads)
	data := p.Data
	if data == nil {
		data = []byte{}
	}
	if _, err := s.pool.Exec(ctx, q, oid, pid, p.ContentType, data); err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("postgres: write payload: %w", describe(err))
	}
	return nil
}

func (s *Store) SetProperty(ctx context.Context, oid, key, value string) error {
	q := fmt.Sprintf(`INSERT INTO %s (oid, name, value) VALUES ($1, $2, $3)
ON CONFLICT (oid, name) DO UPDATE SET value = EXCLUDED.value`, s.properties)
	if _, err := s.pool.Exec(ctx, q, oid, key, value); err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("postgres: set property: %w", describe(err))
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// foreignKeyViolation is SQLSTATE 23503.
const foreignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// describe folds the server-side detail into the error text when present.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s)", err, pgErr.Detail)
	}
	return err
}

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "harvest.objects" to
// "harvest"."objects". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

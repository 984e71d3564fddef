// Package sqldoc implements storage.Store over database/sql. The SQL that
// differs between engines (quoting, placeholders, upserts, DDL) comes from a
// Dialect; the sqlite, mysql and mssql backends each provide one.
//
// Three tables hold the data:
//
//	<prefix>objects    (oid PK)
//	<prefix>payloads   (oid, pid, content_type, data; PK oid, pid)
//	<prefix>properties (oid, name, value; PK oid, name)
package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"csvharvest/internal/config"
	"csvharvest/internal/storage"
)

// Tables holds the quoted table names.
type Tables struct {
	Objects    string
	Payloads   string
	Properties string
}

// Dialect describes one SQL engine.
type Dialect struct {
	Name   string
	Driver string
	// Quote quotes an identifier.
	Quote func(string) string
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Schema returns the statements creating the tables if they are missing.
	Schema func(t Tables) []string
	// InsertObject inserts (oid), doing nothing when it exists.
	InsertObject func(t Tables, ph func(int) string) string
	// UpsertPayload inserts or replaces (oid, pid, content_type, data).
	UpsertPayload func(t Tables, ph func(int) string) string
	// UpsertProperty inserts or replaces (oid, name, value).
	UpsertProperty func(t Tables, ph func(int) string) string
	// Init runs once per Open, before the schema.
	Init []string
	// MaxOpenConns limits the pool when > 0.
	MaxOpenConns int
}

// Options are the backend knobs read from storage options.
type Options struct {
	TablePrefix string
	AutoCreate  bool
}

// OptionsFrom reads table_prefix and auto_create (default true).
func OptionsFrom(o config.Options) Options {
	return Options{
		TablePrefix: o.String("table_prefix", ""),
		AutoCreate:  o.Bool("auto_create", true),
	}
}

// Store is a storage.Store backed by a *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect
	t  Tables

	qGetObject   string
	qGetProps    string
	qInsert      string
	qReadPayload string
	qUpsertPay   string
	qUpsertProp  string
}

var _ storage.Store = (*Store)(nil)

// Open connects with d.Driver, pings with a 5s timeout, runs d.Init and, when
// opt.AutoCreate is set, creates the tables.
func Open(ctx context.Context, d Dialect, dsn string, opt Options) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", d.Name)
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name, err)
	}
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}

	s, err := New(db, d, opt.TablePrefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range d.Init {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: init %q: %w", d.Name, stmt, err)
		}
	}
	if opt.AutoCreate {
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an already open database. The caller keeps ownership of setup;
// Close closes db.
func New(db *sql.DB, d Dialect, prefix string) (*Store, error) {
	if d.Quote == nil || d.Placeholder == nil || d.Schema == nil ||
		d.InsertObject == nil || d.UpsertPayload == nil || d.UpsertProperty == nil {
		return nil, fmt.Errorf("%s: incomplete dialect", d.Name)
	}
	t := Tables{
		Objects:    d.Quote(prefix + "objects"),
		Payloads:   d.Quote(prefix + "payloads"),
		Properties: d.Quote(prefix + "properties"),
	}
	ph := d.Placeholder
	return &Store{
		db: db,
		d:  d,
		t:  t,

		qGetObject:   fmt.Sprintf("SELECT oid FROM %s WHERE oid = %s", t.Objects, ph(1)),
		qGetProps:    fmt.Sprintf("SELECT name, value FROM %s WHERE oid = %s", t.Properties, ph(1)),
		qInsert:      d.InsertObject(t, ph),
		qReadPayload: fmt.Sprintf("SELECT content_type, data FROM %s WHERE oid = %s AND pid = %s", t.Payloads, ph(1), ph(2)),
		qUpsertPay:   d.UpsertPayload(t, ph),
		qUpsertProp:  d.UpsertProperty(t, ph),
	}, nil
}

// Tables returns the quoted table names.
func (s *Store) Tables() Tables { return s.t }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.d.Schema(s.t) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: create schema: %w", s.d.Name, err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, oid string) (*storage.Object, error) {
	if err := s.exists(ctx, s.db, oid); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.qGetProps, oid)
	if err != nil {
		return nil, fmt.Errorf("%s: get properties: %w", s.d.Name, err)
	}
	defer rows.Close()

	o := &storage.Object{ID: oid, Properties: map[string]string{}}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%s: scan property: %w", s.d.Name, err)
		}
		o.Properties[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: get properties: %w", s.d.Name, err)
	}
	return o, nil
}

func (s *Store) Create(ctx context.Context, oid string) (*storage.Object, error) {
	if _, err := s.db.ExecContext(ctx, s.qInsert, oid); err != nil {
		return nil, fmt.Errorf("%s: create object: %w", s.d.Name, err)
	}
	return s.Get(ctx, oid)
}

func (s *Store) ReadPayload(ctx context.Context, oid, pid string) (*storage.Payload, error) {
	p := &storage.Payload{ID: pid}
	err := s.db.QueryRowContext(ctx, s.qReadPayload, oid, pid).Scan(&p.ContentType, &p.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read payload: %w", s.d.Name, err)
	}
	return p, nil
}

func (s *Store) WritePayload(ctx context.Context, oid, pid string, p *storage.Payload) error {
	return s.inTx(ctx, oid, func(tx *sql.Tx) error {
		data := p.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := tx.ExecContext(ctx, s.qUpsertPay, oid, pid, p.ContentType, data); err != nil {
			return fmt.Errorf("%s: write payload: %w", s.d.Name, err)
		}
		return nil
	})
}

func (s *Store) SetProperty(ctx context.Context, oid, key, value string) error {
	return s.inTx(ctx, oid, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.qUpsertProp, oid, key, value); err != nil {
			return fmt.Errorf("%s: set property: %w", s.d.Name, err)
		}
		return nil
	})
}

func (s *Store) Close() error { return s.db.Close() }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exists(ctx context.Context, q querier, oid string) error {
	var got string
	err := q.QueryRowContext(ctx, s.qGetObject, oid).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: get object: %w", s.d.Name, err)
	}
	return nil
}

// inTx runs fn in a transaction after checking that oid exists.
func (s *Store) inTx(ctx context.Context, oid string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", s.d.Name, err)
	}
	if err := s.exists(ctx, tx, oid); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.d.Name, err)
	}
	return nil
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

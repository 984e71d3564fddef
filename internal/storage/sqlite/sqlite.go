// Package sqlite wires a SQLite document store into the storage factory under
// kind "sqlite". It uses the pure-Go modernc driver.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"csvharvest/internal/storage"
	"csvharvest/internal/storage/sqldoc"
)

// Dialect is the SQLite SQL flavour. A single connection is used so that
// ":memory:" databases survive across calls and writers never contend.
var Dialect = sqldoc.Dialect{
	Name:        "sqlite",
	Driver:      "sqlite",
	Quote:       quoteIdent,
	Placeholder: sqldoc.QuestionMark,
	Schema: func(t sqldoc.Tables) []string {
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid TEXT PRIMARY KEY
)`, t.Objects),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid TEXT NOT NULL REFERENCES %s(oid) ON DELETE CASCADE,
	pid TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (oid, pid)
)`, t.Payloads, t.Objects),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid TEXT NOT NULL REFERENCES %s(oid) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (oid, name)
)`, t.Properties, t.Objects),
		}
	},
	InsertObject: func(t sqldoc.Tables, _ func(int) string) string {
		return fmt.Sprintf("INSERT INTO %s (oid) VALUES (?) ON CONFLICT(oid) DO NOTHING", t.Objects)
	},
	UpsertPayload: func(t sqldoc.Tables, _ func(int) string) string {
		return fmt.Sprintf(`INSERT INTO %s (oid, pid, content_type, data) VALUES (?, ?, ?, ?)
ON CONFLICT(oid, pid) DO UPDATE SET content_type = excluded.content_type, data = excluded.data`, t.Payloads)
	},
	UpsertProperty: func(t sqldoc.Tables, _ func(int) string) string {
		return fmt.Sprintf(`INSERT INTO %s (oid, name, value) VALUES (?, ?, ?)
ON CONFLICT(oid, name) DO UPDATE SET value = excluded.value`, t.Properties)
	},
	Init:         []string{"PRAGMA foreign_keys = ON"},
	MaxOpenConns: 1,
}

// openStore is a test hook that points to sqldoc.Open by default.
var openStore = sqldoc.Open

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		st, err := openStore(ctx, Dialect, dsn, sqldoc.OptionsFrom(cfg.Options))
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

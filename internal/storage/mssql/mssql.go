// Package mssql wires a Microsoft SQL Server document store into the storage
// factory under kind "mssql".
package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"csvharvest/internal/storage"
	"csvharvest/internal/storage/sqldoc"
)

// Dialect is the T-SQL flavour. Upserts use MERGE with HOLDLOCK.
var Dialect = sqldoc.Dialect{
	Name:        "mssql",
	Driver:      "sqlserver",
	Quote:       msIdent,
	Placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
	Schema: func(t sqldoc.Tables) []string {
		return []string{
			fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	oid VARCHAR(64) NOT NULL PRIMARY KEY
)`, sqlString(t.Objects), t.Objects),
			fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	oid VARCHAR(64) NOT NULL REFERENCES %s(oid) ON DELETE CASCADE,
	pid NVARCHAR(255) NOT NULL,
	content_type NVARCHAR(255) NOT NULL,
	data VARBINARY(MAX) NOT NULL,
	PRIMARY KEY (oid, pid)
)`, sqlString(t.Payloads), t.Payloads, t.Objects),
			fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	oid VARCHAR(64) NOT NULL REFERENCES %s(oid) ON DELETE CASCADE,
	name NVARCHAR(255) NOT NULL,
	value NVARCHAR(MAX) NOT NULL,
	PRIMARY KEY (oid, name)
)`, sqlString(t.Properties), t.Properties, t.Objects),
		}
	},
	InsertObject: func(t sqldoc.Tables, ph func(int) string) string {
		return fmt.Sprintf(`MERGE %s WITH (HOLDLOCK) AS T
USING (SELECT %s AS oid) AS S ON T.oid = S.oid
WHEN NOT MATCHED THEN INSERT (oid) VALUES (S.oid);`, t.Objects, ph(1))
	},
	UpsertPayload: func(t sqldoc.Tables, ph func(int) string) string {
		return fmt.Sprintf(`MERGE %s WITH (HOLDLOCK) AS T
USING (SELECT %s AS oid, %s AS pid, %s AS content_type, %s AS data) AS S
ON T.oid = S.oid AND T.pid = S.pid
WHEN MATCHED THEN UPDATE SET content_type = S.content_type, data = S.data
WHEN NOT MATCHED THEN INSERT (oid, pid, content_type, data) VALUES (S.oid, S.pid, S.content_type, S.data);`,
			t.Payloads, ph(1), ph(2), ph(3), ph(4))
	},
	UpsertProperty: func(t sqldoc.Tables, ph func(int) string) string {
		return fmt.Sprintf(`MERGE %s WITH (HOLDLOCK) AS T
USING (SELECT %s AS oid, %s AS name, %s AS value) AS S
ON T.oid = S.oid AND T.name = S.name
WHEN MATCHED THEN UPDATE SET value = S.value
WHEN NOT MATCHED THEN INSERT (oid, name, value) VALUES (S.oid, S.name, S.value);`,
			t.Properties, ph(1), ph(2), ph(3))
	},
}

// openStore is a test hook that points to sqldoc.Open by default.
var openStore = sqldoc.Open

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		// Validate DSN early to fail fast on obvious mistakes.
		if _, err := msdsn.Parse(cfg.DSN); err != nil {
			return nil, fmt.Errorf("mssql dsn: %w", err)
		}
		st, err := openStore(ctx, Dialect, cfg.DSN, sqldoc.OptionsFrom(cfg.Options))
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

// msIdent bracket-quotes an identifier.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func sqlString(s string) string { return strings.ReplaceAll(s, `'`, `''`) }

// Package mysql wires a MySQL document store into the storage factory under
// kind "mysql".
package mysql

import (
	"context"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"csvharvest/internal/storage"
	"csvharvest/internal/storage/sqldoc"
)

// Dialect is the MySQL (InnoDB) SQL flavour.
var Dialect = sqldoc.Dialect{
	Name:        "mysql",
	Driver:      "mysql",
	Quote:       quoteIdent,
	Placeholder: sqldoc.QuestionMark,
	Schema: func(t sqldoc.Tables) []string {
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid VARCHAR(64) NOT NULL PRIMARY KEY
) ENGINE=InnoDB`, t.Objects),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid VARCHAR(64) NOT NULL,
	pid VARCHAR(255) NOT NULL,
	content_type VARCHAR(255) NOT NULL,
	data LONGBLOB NOT NULL,
	PRIMARY KEY (oid, pid),
	FOREIGN KEY (oid) REFERENCES %s(oid) ON DELETE CASCADE
) ENGINE=InnoDB`, t.Payloads, t.Objects),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	oid VARCHAR(64) NOT NULL,
	name VARCHAR(255) NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (oid, name),
	FOREIGN KEY (oid) REFERENCES %s(oid) ON DELETE CASCADE
) ENGINE=InnoDB`, t.Properties, t.Objects),
		}
	},
	InsertObject: func(t sqldoc.Tables, _ func(int) string) string {
		return fmt.Sprintf("INSERT IGNORE INTO %s (oid) VALUES (?)", t.Objects)
	},
	UpsertPayload: func(t sqldoc.Tables, _ func(int) string) string {
		return fmt.Sprintf(`INSERT INTO %s (oid, pid, content_type, data) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE content_type = VALUES(content_type), data = VALUES(data)`, t.Payloads)
	},
	UpsertProperty: func(t sqldoc.Tables, _ func(int) string) string {
		return fmt.Sprintf(`INSERT INTO %s (oid, name, value) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value)`, t.Properties)
	},
}

// openStore is a test hook that points to sqldoc.Open by default.
var openStore = sqldoc.Open

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		dsn, err := normalizeDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		st, err := openStore(ctx, Dialect, dsn, sqldoc.OptionsFrom(cfg.Options))
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

// normalizeDSN validates dsn and turns on the settings the store relies on.
func normalizeDSN(dsn string) (string, error) {
	c, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if _, ok := c.Params["charset"]; !ok {
		c.Params["charset"] = "utf8mb4"
	}
	return c.FormatDSN(), nil
}

func quoteIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

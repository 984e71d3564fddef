package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvharvest/internal/config"
	"csvharvest/internal/storage"
)

func TestIdentQuoting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"a""b"`, pgIdent(`a"b`))
	assert.Equal(t, `"harvest"."objects"`, pgFQN("harvest.objects"))
	assert.Equal(t, `"objects"`, pgFQN("objects"))
}

func TestTableNames(t *testing.T) {
	t.Parallel()

	s := newWithPool(nil, Config{TablePrefix: "h_"})
	assert.Equal(t, `"h_objects"`, s.objects)

	s = newWithPool(nil, Config{Schema: "harvest", TablePrefix: "h_"})
	assert.Equal(t, `"harvest"."h_payloads"`, s.payloads)

	ddl := s.schemaSQL()
	require.Len(t, ddl, 3)
	assert.Contains(t, ddl[1], "BYTEA")
	assert.Contains(t, ddl[2], `REFERENCES "harvest"."h_objects"(oid)`)
}

func TestForeignKeyViolation(t *testing.T) {
	t.Parallel()

	fk := &pgconn.PgError{Code: "23503", Detail: "Key (oid)=(x) is not present"}
	assert.True(t, isForeignKeyViolation(fmt.Errorf("wrapped: %w", fk)))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.Contains(t, describe(fk).Error(), "is not present")
}

func TestNewStore_EmptyDSN(t *testing.T) {
	t.Parallel()
	_, err := NewStore(context.Background(), Config{})
	require.EqualError(t, err, "postgres: DSN must not be empty")
}

func TestRegistrationUsesHook(t *testing.T) {
	orig := newStore
	defer func() { newStore = orig }()

	var got Config
	newStore = func(ctx context.Context, cfg Config) (*Store, error) {
		got = cfg
		return nil, assert.AnError
	}

	_, err := storage.New(context.Background(), storage.Config{
		Kind:    "postgres",
		DSN:     "postgres://u:p@localhost/harvest",
		Options: config.Options{"schema": "h", "table_prefix": "x_"},
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, Config{DSN: "postgres://u:p@localhost/harvest", Schema: "h", TablePrefix: "x_", AutoCreate: true}, got)
}

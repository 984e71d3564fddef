package all

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"csvharvest/internal/storage"
)

func TestAllKindsRegistered(t *testing.T) {
	t.Parallel()
	kinds := storage.ListKinds()
	for _, k := range []string{"memory", "ram", "mssql", "mysql", "pebble", "postgres", "sqlite"} {
		assert.Contains(t, kinds, k)
	}
}

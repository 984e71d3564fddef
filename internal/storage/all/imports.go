// Package all registers every built-in storage backend. Import it for side
// effects:
//
//	import _ "csvharvest/internal/storage/all"
//
// Binaries that need only a subset can import the backend packages directly.
package all

import (
	_ "csvharvest/internal/storage/memory"
	_ "csvharvest/internal/storage/mssql"
	_ "csvharvest/internal/storage/mysql"
	_ "csvharvest/internal/storage/pebble"
	_ "csvharvest/internal/storage/postgres"
	_ "csvharvest/internal/storage/sqlite"
)

package core

import (
	"context"
	"fmt"
	"os"

	"configforge/internal/infra/persistence/memory"
	"configforge/internal/infra/persistence/postgres"
	"configforge/internal/infra/persistence/sqlite"
	"configforge/pkg/domain"
)

// StorageDriver identifies a snapshot persistence backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a snapshot backend. Empty fields
// fall back to the environment.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenSnapshotStore opens the configured backend. Defaults to sqlite.
//
//	CONFIGFORGE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CONFIGFORGE_SQLITE_PATH: path to sqlite file (default ./configforge.db)
//	CONFIGFORGE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenSnapshotStore(ctx context.Context, opts StorageOptions) (domain.SnapshotStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageDriver(os.Getenv("CONFIGFORGE_STORAGE_DRIVER"))
	}
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = os.Getenv("CONFIGFORGE_SQLITE_PATH")
		}
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := opts.PostgresDSN
		if dsn == "" {
			dsn = os.Getenv("CONFIGFORGE_POSTGRES_DSN")
		}
		return postgres.NewStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

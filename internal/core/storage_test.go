package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"configforge/internal/infra/persistence/memory"
	"configforge/internal/infra/persistence/postgres"
	"configforge/internal/infra/persistence/postgres/testutil"
	"configforge/internal/infra/persistence/sqlite"
)

func TestOpenSnapshotStoreMemoryFromEnv(t *testing.T) {
	t.Setenv("CONFIGFORGE_STORAGE_DRIVER", "memory")
	store, err := OpenSnapshotStore(context.Background(), StorageOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenSnapshotStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "forge.db")
	t.Setenv("CONFIGFORGE_STORAGE_DRIVER", "")
	t.Setenv("CONFIGFORGE_SQLITE_PATH", path)
	store, err := OpenSnapshotStore(context.Background(), StorageOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if sq.Path() != path {
		t.Fatalf("expected env path %s, got %s", path, sq.Path())
	}

	// Explicit options win over the environment.
	explicit := filepath.Join(t.TempDir(), "explicit.db")
	store2, err := OpenSnapshotStore(context.Background(), StorageOptions{Driver: StorageSQLite, SQLitePath: explicit})
	if err != nil {
		t.Fatalf("open explicit: %v", err)
	}
	t.Cleanup(func() { _ = store2.Close() })
	if store2.(*sqlite.Store).Path() != explicit {
		t.Fatalf("expected explicit path")
	}
}

func TestOpenSnapshotStorePostgresUsesDSN(t *testing.T) {
	db, _ := testutil.NewStubDB()
	var gotDSN string
	restore := postgres.OverrideSQLOpen(func(_ string, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, nil
	})
	t.Cleanup(restore)
	t.Setenv("CONFIGFORGE_POSTGRES_DSN", "postgres://forge@db/forge")

	store, err := OpenSnapshotStore(context.Background(), StorageOptions{Driver: StoragePostgres})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if gotDSN != "postgres://forge@db/forge" {
		t.Fatalf("expected env dsn, got %q", gotDSN)
	}
}

func TestOpenSnapshotStoreUnknownDriver(t *testing.T) {
	_, err := OpenSnapshotStore(context.Background(), StorageOptions{Driver: "etcd"})
	if err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"configforge/pkg/domain"
)

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Hierarchy: domain.Hierarchy{IndustryID: "datacenter", TechnologyID: "cooling", SolutionID: "air-cooling"},
		Parameters: []domain.Parameter{
			{ID: "cooling_load", Name: "Cooling Load", Level: domain.LevelTechnology, Units: "kW", DefaultValue: domain.Float(500)},
			{ID: "delta_t", Name: "Delta T", Level: domain.LevelSolution, Units: "K", DefaultValue: domain.Float(8), Value: domain.Float(10)},
		},
		Calculations: []domain.Calculation{
			{ID: "half_load", Name: "Half", Formula: "cooling_load / 2", Units: "kW", Value: domain.Float(250)},
		},
		CurrentStep: 4,
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, found, err := store.Load(ctx); err != nil || found {
		t.Fatalf("expected empty database, found=%v err=%v", found, err)
	}
	want := testSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	got, found, err := reloaded.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reloaded snapshot mismatch:\n got %+v\nwant %+v", got, want)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreOverwritesBuckets(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	next := testSnapshot()
	next.Calculations = nil
	next.CurrentStep = 1
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("second save: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(domain.SnapshotBuckets) {
		t.Fatalf("expected one row per bucket, got %d", count)
	}
	got, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Calculations) != 0 || got.CurrentStep != 1 {
		t.Fatalf("expected overwritten snapshot, got %+v", got)
	}
}

func TestSQLiteStoreCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES(?,?)`, domain.BucketParameters, []byte("{")); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	if _, _, err := store.Load(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}

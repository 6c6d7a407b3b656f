package postgres

import (
	"context"
	"database/sql"
	"os"
	"reflect"
	"strings"
	"testing"

	"configforge/internal/infra/persistence/postgres/testutil"
	"configforge/pkg/domain"
)

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Hierarchy: domain.Hierarchy{IndustryID: "datacenter"},
		Parameters: []domain.Parameter{
			{ID: "facility_size", Name: "Facility Size", Level: domain.LevelIndustry, Units: "m²", DefaultValue: domain.Float(1000), Value: domain.Float(1200)},
		},
		Calculations: []domain.Calculation{
			{ID: "half_size", Name: "Half", Formula: "facility_size / 2", Units: "m²", Value: domain.Float(600)},
		},
		CurrentStep: 2,
	}
}

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.Execs)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	if _, found, err := store.Load(ctx); err != nil || found {
		t.Fatalf("expected empty state, found=%v err=%v", found, err)
	}
	want := testSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if got := len(conn.Tables["state"]); got != len(domain.SnapshotBuckets) {
		t.Fatalf("expected one row per bucket, got %d", got)
	}
	got, found, err := store.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestSaveFailures(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)

	conn.FailBegin = true
	if err := store.Save(ctx, testSnapshot()); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin failure, got %v", err)
	}
	conn.FailBegin = false

	conn.FailCommit = true
	if err := store.Save(ctx, testSnapshot()); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false

	conn.FailExec = true
	if err := store.Save(ctx, testSnapshot()); err == nil || !strings.Contains(err.Error(), "upsert") {
		t.Fatalf("expected upsert failure, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "ignored"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestLoadQueryFailure(t *testing.T) {
	store, conn := openStub(t)
	conn.FailQuery = true
	if _, _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected query failure")
	}
}

// TestLiveRoundTrip runs against a real server when CONFIGFORGE_TEST_POSTGRES_DSN is set.
func TestLiveRoundTrip(t *testing.T) {
	dsn := os.Getenv("CONFIGFORGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CONFIGFORGE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	want := testSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := store.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot mismatch")
	}
}

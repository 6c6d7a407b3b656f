package core

import (
	"context"
	"fmt"
	"math"
	"testing"

	"configforge/internal/infra/persistence/memory"
	"configforge/pkg/domain"
)

func newTestStore(t *testing.T, opts ...StoreOption) *ConfigStore {
	t.Helper()
	store, err := NewConfigStore(context.Background(), nil, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newPersistedStore(t *testing.T) (*ConfigStore, *memory.Store) {
	t.Helper()
	snapshots := memory.NewStore()
	return newTestStore(t, WithSnapshotStore(snapshots)), snapshots
}

// sequentialIDs returns an id generator yielding calc_1, calc_2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("calc_%d", n)
	}
}

func mustCalc(t *testing.T, store *ConfigStore, id string) domain.Calculation {
	t.Helper()
	calc, ok := store.Calculation(id)
	if !ok {
		t.Fatalf("calculation %s missing", id)
	}
	return calc
}

func mustParam(t *testing.T, store *ConfigStore, id string) domain.Parameter {
	t.Helper()
	p, ok := store.Parameter(id)
	if !ok {
		t.Fatalf("parameter %s missing", id)
	}
	return p
}

func assertValue(t *testing.T, calc domain.Calculation, want float64) {
	t.Helper()
	if calc.Value == nil {
		t.Fatalf("%s: expected value %v, got nil", calc.ID, want)
	}
	if math.Abs(*calc.Value-want) > 1e-9 {
		t.Fatalf("%s: expected value %v, got %v", calc.ID, want, *calc.Value)
	}
}

type errSnapshotStore struct {
	loadErr error
	saveErr error
}

func (e errSnapshotStore) Load(context.Context) (domain.Snapshot, bool, error) {
	return domain.Snapshot{}, false, e.loadErr
}

func (e errSnapshotStore) Save(context.Context, domain.Snapshot) error { return e.saveErr }

func (errSnapshotStore) Close() error { return nil }

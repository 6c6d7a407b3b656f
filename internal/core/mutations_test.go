package core

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"configforge/pkg/domain"
)

func TestApplyPatchBatchQueuesInOrderWithOnePass(t *testing.T) {
	ctx := context.Background()
	store, snapshots := newPersistedStore(t)
	if _, err := store.AddCalculation(ctx, domain.Calculation{ID: "airflow", Name: "Airflow", Formula: "air_flow_rate / 10", Units: "u"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	passes := store.RecalcPasses()
	saves := snapshots.Saves()

	batch := []domain.Patch{
		domain.UpdatePatch{ID: "air_flow_rate", Field: domain.FieldValue, NewValue: 1500.0},
		domain.CreateCalculationPatch{Calculation: domain.Calculation{ID: "per_unit", Name: "Per Unit", Formula: "cooling_load / number_of_units", Units: "kW"}},
		domain.UpdatePatch{ID: "airflow", Field: domain.FieldFormula, NewValue: "air_flow_rate / 100"},
	}
	if err := store.ApplyPatch(ctx, batch...); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := store.RecalcPasses() - passes; got != 1 {
		t.Fatalf("expected exactly one recompute pass, got %d", got)
	}
	if got := snapshots.Saves() - saves; got != 1 {
		t.Fatalf("expected one save, got %d", got)
	}

	queue := store.Patches()
	if len(queue) != len(batch) {
		t.Fatalf("expected %d queued, got %d", len(batch), len(queue))
	}
	for i := range batch {
		if queue[i].Action() != batch[i].Action() {
			t.Fatalf("queue order mismatch at %d", i)
		}
	}
	assertValue(t, mustCalc(t, store, "airflow"), 15)
	assertValue(t, mustCalc(t, store, "per_unit"), 25)
	if v := mustParam(t, store, "air_flow_rate").Value; v == nil || *v != 1500 {
		t.Fatalf("expected override 1500, got %v", v)
	}
}

func TestApplyPatchLenientSemantics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithIDGenerator(sequentialIDs()))
	before := store.Parameters()

	err := store.ApplyPatch(ctx,
		domain.UpdatePatch{ID: "ghost", Field: domain.FieldValue, NewValue: 1.0},
		domain.UpdatePatch{ID: "cooling_load", Field: domain.FieldValue, NewValue: "not a number"},
		domain.UpdatePatch{ID: "cooling_load", Field: domain.FieldFormula, NewValue: "1"},
		domain.CreateCalculationPatch{Calculation: domain.Calculation{Name: "Anon", Formula: "2", Units: "u"}},
		domain.CreateCalculationPatch{Calculation: domain.Calculation{ID: "calc_1", Name: "Dup", Formula: "3", Units: "u"}},
		domain.CreateCalculationPatch{Calculation: domain.Calculation{ID: "bad id", Name: "Bad", Formula: "3", Units: "u"}},
	)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(store.Patches()) != 6 {
		t.Fatalf("every patch is queued, got %d", len(store.Patches()))
	}
	after := store.Parameters()
	for i := range before {
		if before[i].Overridden() != after[i].Overridden() {
			t.Fatalf("parameter %s changed unexpectedly", before[i].ID)
		}
	}
	calcs := store.Calculations()
	if len(calcs) != 1 || calcs[0].ID != "calc_1" || calcs[0].Name != "Anon" {
		t.Fatalf("expected only the generated calculation, got %+v", calcs)
	}
	assertValue(t, calcs[0], 2)
}

func TestApplyPatchDescriptionUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.AddCalculation(ctx, domain.Calculation{ID: "k", Name: "K", Formula: "1", Units: "u"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.ApplyPatch(ctx,
		domain.UpdatePatch{ID: "delta_t", Field: domain.FieldDescription, NewValue: "split"},
		domain.UpdatePatch{ID: "k", Field: domain.FieldDescription, NewValue: "constant"},
		domain.UpdatePatch{ID: "k", Field: domain.FieldValue, NewValue: 42.0},
	); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if mustParam(t, store, "delta_t").Description != "split" {
		t.Fatalf("parameter description not applied")
	}
	k := mustCalc(t, store, "k")
	if k.Description != "constant" {
		t.Fatalf("calculation description not applied")
	}
	// Calculation values are derived; a value patch does not stick.
	assertValue(t, k, 1)
}

func TestApplyPatchEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	passes := store.RecalcPasses()
	if err := store.ApplyPatch(context.Background()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if store.RecalcPasses() != passes {
		t.Fatalf("empty batch must not recompute")
	}
}

func TestRollbackKeepsAppliedMutations(t *testing.T) {
	ctx := context.Background()
	store, snapshots := newPersistedStore(t)
	if err := store.ApplyPatch(ctx, domain.UpdatePatch{ID: "delta_t", Field: domain.FieldValue, NewValue: 10.0}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := store.ApplyPatch(ctx, domain.UpdatePatch{ID: "delta_t", Field: domain.FieldValue, NewValue: 12.0}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	saves := snapshots.Saves()
	passes := store.RecalcPasses()

	store.Rollback()
	if len(store.Patches()) != 1 {
		t.Fatalf("expected one queued patch, got %d", len(store.Patches()))
	}
	if v := mustParam(t, store, "delta_t").Value; v == nil || *v != 12 {
		t.Fatalf("rollback must not revert applied values, got %v", v)
	}
	if snapshots.Saves() != saves || store.RecalcPasses() != passes {
		t.Fatalf("rollback must not persist or recompute")
	}

	store.Rollback()
	store.Rollback()
	if len(store.Patches()) != 0 {
		t.Fatalf("rollback on empty queue should stay empty")
	}
}

func TestRollbackTo(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, v := range []float64{1, 2, 3, 4} {
		if err := store.ApplyPatch(ctx, domain.UpdatePatch{ID: "delta_t", Field: domain.FieldValue, NewValue: v}); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if err := store.RollbackTo(4); !errors.Is(err, domain.ErrRollbackOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := store.RollbackTo(-1); !errors.Is(err, domain.ErrRollbackOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := store.RollbackTo(2); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	queue := store.Patches()
	if len(queue) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(queue))
	}
	if up := queue[1].(domain.UpdatePatch); up.NewValue != 2.0 {
		t.Fatalf("expected prefix kept, got %v", up.NewValue)
	}
	if err := store.RollbackTo(0); err != nil {
		t.Fatalf("rollback to zero: %v", err)
	}
	if len(store.Patches()) != 0 {
		t.Fatalf("expected empty queue")
	}
	if err := store.RollbackTo(0); !errors.Is(err, domain.ErrRollbackOutOfRange) {
		t.Fatalf("empty queue: expected out of range, got %v", err)
	}
}

func TestCommitPatchesClearsQueueOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.ApplyPatch(ctx, domain.UpdatePatch{ID: "cooling_load", Field: domain.FieldValue, NewValue: 700.0}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	store.CommitPatches()
	if len(store.Patches()) != 0 {
		t.Fatalf("expected empty queue")
	}
	if v := mustParam(t, store, "cooling_load").Value; v == nil || *v != 700 {
		t.Fatalf("commit must keep values")
	}
}

func TestCoerceNumber(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		want    *float64
		wantErr bool
	}{
		{"nil clears", nil, nil, false},
		{"float", 2.5, domain.Float(2.5), false},
		{"int", 7, domain.Float(7), false},
		{"int64", int64(-3), domain.Float(-3), false},
		{"json number", json.Number("12.5"), domain.Float(12.5), false},
		{"string", " 42 ", domain.Float(42), false},
		{"pointer", domain.Float(1.5), domain.Float(1.5), false},
		{"bad string", "4x", nil, true},
		{"bool", true, nil, true},
		{"nan", math.NaN(), nil, true},
		{"inf string", "Inf", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerceNumber(tc.in)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidValue) {
					t.Fatalf("expected invalid value, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != (tc.want == nil) || (got != nil && *got != *tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"configforge/internal/blob"
	"configforge/pkg/domain"
)

type unreachableStore struct {
	blob.Store
}

func (unreachableStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("bucket unreachable")
}

func TestSaveConfigurationKeepsQueueWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithBlobStore(unreachableStore{Store: blob.NewMemory()}))
	if err := svc.ApplyPatches(ctx, domain.UpdatePatch{ID: "cooling_load", Field: domain.FieldValue, NewValue: 800.0}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := svc.SaveConfiguration(ctx); err == nil || !strings.Contains(err.Error(), "bucket unreachable") {
		t.Fatalf("expected write failure, got %v", err)
	}
	if n := len(svc.State().Patches); n != 1 {
		t.Fatalf("failed save must keep the queue, got %d entries", n)
	}
	if got := mustParam(t, svc.Store(), "cooling_load").EffectiveValue(); got != 800 {
		t.Fatalf("expected applied value kept, got %v", got)
	}
	if err := svc.RollbackTo(ctx, 0); err != nil {
		t.Fatalf("rollback after failed save: %v", err)
	}
	if n := len(svc.State().Patches); n != 0 {
		t.Fatalf("expected empty queue after rollback, got %d", n)
	}
}

func TestSavedConfigurationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	svc := newTestService(t, WithBlobStore(store))
	if err := svc.SelectHierarchy(ctx, domain.LevelIndustry, "datacenter"); err != nil {
		t.Fatalf("select: %v", err)
	}
	first, err := svc.SaveConfiguration(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.SaveConfiguration(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Blobs outside the export prefix or without .json are ignored.
	if _, err := store.Put(ctx, "configurations/notes.txt", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "other/stray.json", strings.NewReader("{}"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	list, err := svc.ListConfigurations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 saved configurations, got %+v", list)
	}

	name := strings.TrimPrefix(first.Key, "configurations/")
	doc, info, err := svc.GetConfiguration(ctx, name)
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if info.Key != first.Key || len(doc.Selections) != 1 || doc.Selections[0].Name != "Data Centre" {
		t.Fatalf("unexpected document %s: %+v", info.Key, doc.Selections)
	}
	if _, _, err := svc.GetConfiguration(ctx, first.Key); err != nil {
		t.Fatalf("get by full key: %v", err)
	}
	if _, _, err := svc.GetConfiguration(ctx, "../escape.json"); !errors.Is(err, blob.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}

	if _, err := svc.ConfigurationURL(ctx, first.Key, 0); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("memory driver has no links, got %v", err)
	}

	if err := svc.DeleteConfiguration(ctx, first.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteConfiguration(ctx, first.Key); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
	if _, _, err := svc.GetConfiguration(ctx, first.Key); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("get deleted: expected not found, got %v", err)
	}
	list, err = svc.ListConfigurations(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 configuration after delete, got %d (%v)", len(list), err)
	}
}

func TestConfigurationURLOnFilesystem(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	svc := newTestService(t, WithBlobStore(store))
	info, err := svc.SaveConfiguration(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	link, err := svc.ConfigurationURL(ctx, info.Key, 0)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if !strings.HasPrefix(link, "file://") || !strings.HasSuffix(link, info.Key) {
		t.Fatalf("unexpected link %s", link)
	}
	if _, err := svc.ConfigurationURL(ctx, "missing.json", 0); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfigurationReadsWithoutBlobStore(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.ListConfigurations(ctx); !errors.Is(err, ErrNoBlobStore) {
		t.Fatalf("list: expected no blob store, got %v", err)
	}
	if _, _, err := svc.GetConfiguration(ctx, "x.json"); !errors.Is(err, ErrNoBlobStore) {
		t.Fatalf("get: expected no blob store, got %v", err)
	}
	if err := svc.DeleteConfiguration(ctx, "x.json"); !errors.Is(err, ErrNoBlobStore) {
		t.Fatalf("delete: expected no blob store, got %v", err)
	}
}

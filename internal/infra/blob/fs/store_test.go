package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"configforge/internal/blob/core"
)

func TestStorePutGetHeadListDelete(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Root() != root || store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected root/driver")
	}
	ctx := context.Background()

	info, err := store.Put(ctx, "configurations/a.json", strings.NewReader(`{"a":1}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"industry": "data_centre"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ETag == "" || !strings.HasPrefix(info.URL, "file://") {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.LastModified.Location().String() != "UTC" {
		t.Fatalf("expected UTC timestamp, got %v", info.LastModified)
	}
	if _, err := os.Stat(filepath.Join(root, "configurations", "a.json.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}

	got, body, err := store.Get(ctx, "configurations/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != `{"a":1}` || got.ContentType != "application/json" || got.Metadata["industry"] != "data_centre" {
		t.Fatalf("unexpected get %q %+v", data, got)
	}

	head, err := store.Head(ctx, "configurations/a.json")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head: %+v %v", head, err)
	}

	if _, err := store.Put(ctx, "configurations/a.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "other.json", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}

	list, err := store.List(ctx, "configurations/")
	if err != nil || len(list) != 1 || list[0].Key != "configurations/a.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key != "configurations/a.json" {
		t.Fatalf("unexpected full list %+v %v", all, err)
	}

	if ok, err := store.Delete(ctx, "configurations/a.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "configurations/a.json"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "configurations/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "configurations/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "../x", "/abs", `a\..\..\b`} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStorePresign(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	url, err := store.PresignURL(context.Background(), "a.json", core.SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "/a.json") {
		t.Fatalf("unexpected url %q %v", url, err)
	}
	if _, err := store.PresignURL(context.Background(), "a.json", core.SignedURLOptions{Method: "DELETE"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestListCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bad.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected sidecar decode error")
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(filepath.Join(file, "sub")); err == nil {
		t.Fatalf("expected error for root under a file")
	}
}

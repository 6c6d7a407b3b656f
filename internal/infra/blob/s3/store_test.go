package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"

	"configforge/internal/blob/core"
)

func TestStorePutGetHeadDelete(t *testing.T) {
	store, fake := NewFake()
	ctx := context.Background()
	if store.Driver() != core.DriverS3 || store.Bucket() != FakeBucket {
		t.Fatalf("unexpected driver/bucket %s %s", store.Driver(), store.Bucket())
	}

	info, err := store.Put(ctx, "configurations/a.json", strings.NewReader(`{"a":1}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"industry": "data_centre"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := info.Metadata["industry"]; got != "data_centre" {
		t.Fatalf("metadata not round-tripped: %+v", info.Metadata)
	}

	got, body, err := store.Get(ctx, "configurations/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != `{"a":1}` || got.Key != "configurations/a.json" {
		t.Fatalf("unexpected get %q %+v", data, got)
	}

	if _, err := store.Put(ctx, "configurations/a.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	removed, err := store.Delete(ctx, "configurations/a.json")
	if err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	removed, err = store.Delete(ctx, "configurations/a.json")
	if err != nil || removed {
		t.Fatalf("second delete: %v %v", removed, err)
	}
	if keys := fake.Keys(); len(keys) != 0 {
		t.Fatalf("expected empty bucket, got %v", keys)
	}
}

func TestStoreNotFound(t *testing.T) {
	store, _ := NewFake()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func TestMapErrorClassifiesAPIErrorCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"NoSuchKey", core.ErrNotFound},
		{"NotFound", core.ErrNotFound},
		{"KeyTooLongError", core.ErrInvalidKey},
		{"InvalidObjectName", core.ErrInvalidKey},
	}
	for _, tc := range cases {
		err := mapError("a/b.json", &smithy.GenericAPIError{Code: tc.code, Message: "x"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.code, tc.want, err)
		}
	}

	err := mapError("a/b.json", &smithy.GenericAPIError{Code: "NoSuchBucket"})
	if errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing bucket must not read as a missing key: %v", err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NoSuchBucket" {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	other := errors.New("boom")
	if got := mapError("k", other); got != other {
		t.Fatalf("unclassified errors pass through, got %v", got)
	}
}

func TestStoreListPaginates(t *testing.T) {
	store, fake := NewFake()
	fake.PageSize = 2
	ctx := context.Background()
	for _, key := range []string{"b/3", "a/1", "a/2", "a/0", "c"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Key != "a/0" || list[2].Key != "a/2" {
		t.Fatalf("unexpected listing %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 5 {
		t.Fatalf("list all: %v %d", err, len(all))
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	store, fake := NewFake()
	if _, err := store.Put(context.Background(), "../escape", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if fake.Requests != 0 {
		t.Fatalf("invalid key should not reach the bucket")
	}
}

func TestStorePresign(t *testing.T) {
	store, _ := NewFake()
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "configurations/a.json", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "configurations/a.json") || !strings.Contains(url, "X-Amz-Expires=60") {
		t.Fatalf("unexpected url %s", url)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIGFORGE_BLOB_S3_BUCKET", "exports")
	t.Setenv("CONFIGFORGE_BLOB_S3_REGION", "eu-west-1")
	t.Setenv("CONFIGFORGE_BLOB_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("CONFIGFORGE_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	if cfg.Bucket != "exports" || cfg.Region != "eu-west-1" || cfg.Endpoint != "http://localhost:9000" || !cfg.PathStyle {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	t.Setenv("CONFIGFORGE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected env bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "exports",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Bucket() != "exports" {
		t.Fatalf("unexpected bucket %s", store.Bucket())
	}
}

package blob

import (
	"context"

	infraS3 "configforge/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// OpenFromEnv constructs an S3 store from CONFIGFORGE_BLOB_S3_* variables.
func OpenFromEnv(ctx context.Context) (Store, error) {
	return infraS3.OpenFromEnv(ctx)
}

// NewFakeS3 returns an S3 store backed by an in-process fake bucket, for
// tests in other packages.
func NewFakeS3() Store {
	store, _ := infraS3.NewFake()
	return store
}

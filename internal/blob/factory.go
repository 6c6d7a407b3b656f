package blob

import (
	"context"
	"fmt"
	"os"
)

// Options selects and configures a driver. Empty fields fall back to the
// environment.
type Options struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open selects a Store using environment variables.
//
//	CONFIGFORGE_BLOB_DRIVER: fs|s3|memory (default fs)
//	CONFIGFORGE_BLOB_FS_ROOT: directory root when driver=fs (default ./exports)
//	(S3 specific variables documented in the s3 driver)
func Open(ctx context.Context) (Store, error) {
	return OpenWith(ctx, Options{})
}

// OpenWith is Open with explicit settings taking precedence over the
// environment.
func OpenWith(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = Driver(os.Getenv("CONFIGFORGE_BLOB_DRIVER"))
	}
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		root := opts.FSRoot
		if root == "" {
			root = os.Getenv("CONFIGFORGE_BLOB_FS_ROOT")
		}
		return NewFilesystem(root)
	case DriverS3:
		if opts.S3.Bucket != "" {
			return NewS3(ctx, opts.S3)
		}
		return OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

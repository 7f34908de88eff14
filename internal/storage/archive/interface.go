// Package archive stores dataset blobs (parquet tables) on the local
// filesystem or an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"

	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/core"
)

// Storage defines the blob store datasets are read from and written to.
// Keys are slash separated and relative to the store root.
type Storage interface {
	// Read retrieves the blob at key. A missing key yields an error matching
	// core.ErrDatasetNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores data at key, replacing any existing blob
	Write(ctx context.Context, key string, data []byte) error

	// List returns all keys under prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if a blob exists at key
	Exists(ctx context.Context, key string) (bool, error)
}

// Open builds the store selected by the data section of the configuration.
func Open(cfg config.DataConfig) (Storage, error) {
	switch cfg.Source {
	case config.SourceLocalFS, "":
		return NewLocalFS(cfg.Path)
	case config.SourceS3:
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown data source %q", cfg.Source))
	}
}

func notFound(key string) error {
	return core.WrapError(core.ErrDatasetNotFound, fmt.Errorf("key %q", key))
}

package storage

import (
	"context"
	"errors"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

const ParquetContentType = "application/vnd.apache.parquet"

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore moves whole objects between local files and a bucket.
type ObjectStore interface {
	PutFile(ctx context.Context, key, localPath string, opts PutOptions) (ObjectInfo, error)
	GetFile(ctx context.Context, key, localPath string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// DeleteAll removes every key, continuing past failures. The first error
// is returned.
func DeleteAll(ctx context.Context, store ObjectStore, keys []string) error {
	var firstErr error
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

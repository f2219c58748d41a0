// Package storage holds attachment blobs. The object store backend is used
// when configured; deployments without one fall back to local disk.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object key has no stored blob.
var ErrNotFound = errors.New("object not found")

// Store is the blob backend for idea attachments. Keys are opaque to the
// backend; callers derive them from idea and attachment IDs.
type Store interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

package storage

import (
	"context"
	"io"
)

// Package storage holds the object store abstraction for original document
// files. Implementations stream to an S3-compatible backend; nothing is
// written to local disk.

// ObjectInfo contains basic information about a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string
	ContentType string
}

// ObjectStore persists and retrieves original document files by key.
type ObjectStore interface {
	// Put uploads an object under the given key. size must be the exact
	// number of bytes the reader yields.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader with its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

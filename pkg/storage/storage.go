package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors every backend maps its native failures onto.
var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrPermission = errors.New("storage: permission denied")
)

// PutOptions carries optional upload hints. Size is -1 when unknown.
type PutOptions struct {
	Size        int64
	ContentType string
}

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Backend is the opaque blob store documents are written to.
// Delete must succeed when the key is already absent.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// IsNotFound reports whether err means the blob does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermission reports whether err is a permission class failure.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// Package storage holds the object store abstraction that backs schema
// snapshot archiving, plus the key layout used inside the bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"time"
)

// ErrObjectNotFound is returned by Get and Stat when no object exists at key.
var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// BaseName is the last path element of the key.
func (o ObjectInfo) BaseName() string {
	return path.Base(o.Key)
}

type PutOptions struct {
	ContentType string
}

type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

type ObjectWriter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectStore is a flat key space. List returns every object whose key starts
// with prefix; ordering is unspecified.
type ObjectStore interface {
	ObjectReader
	ObjectWriter
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

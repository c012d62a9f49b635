package storage

import (
	"context"
	"io"
)

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
}

// ObjectStore is the write side of an object store. Journal parts are
// append-only, so nothing in the service reads them back.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}

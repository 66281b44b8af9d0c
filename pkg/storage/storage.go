// Package storage persists uploaded audio artifacts. Keys are slash
// separated relative paths such as "audio/2026/10/<id>.wav".
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("storage: object not found")

type Store interface {
	// Put writes the whole reader under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Open returns a reader for key or ErrNotFound. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
}

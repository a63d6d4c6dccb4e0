// Package object stores snapshot backups as opaque blobs under slash-separated keys.
package object

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidKey is returned for keys that escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
	ErrNotFound   = errors.New("object not found")
)

// Store defines the contract for saving and retrieving binary objects.
type Store interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

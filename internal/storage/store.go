// Package storage keeps finished meditation files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for absent or expired keys.
var ErrNotFound = errors.New("artifact not found")

// Store persists finished artifacts. Keys are unique per run and are never
// overwritten. A ttl of zero keeps the artifact until it is deleted.
type Store interface {
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New opens the configured backend: "file" (default) or "memory".
func New(backend, dir string) (Store, error) {
	switch backend {
	case "", "file":
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

// ErrExists is returned by Put when the key is already taken.
var ErrExists = errors.New("artifact key already exists")

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("invalid storage key %q", key)
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

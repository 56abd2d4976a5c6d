package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const expirySuffix = ".expires"

// FileStore saves artifacts under Dir, one file per key. Expiry times live
// in a sidecar file so that every process sharing Dir sees them.
type FileStore struct {
	Dir string
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "meditations"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &FileStore{Dir: dir, now: time.Now}, nil
}

func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.Dir, key)
}

func (fs *FileStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Write to a temp file and link it into place so readers never see a
	// partial artifact and an existing key is never replaced.
	tmp, err := os.CreateTemp(fs.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), fs.path(key)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return err
	}

	if ttl > 0 {
		expires := strconv.FormatInt(fs.now().Add(ttl).Unix(), 10)
		if err := os.WriteFile(fs.path(key)+expirySuffix, []byte(expires), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, ErrNotFound
	}
	if fs.expired(key) {
		_ = fs.Delete(ctx, key)
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(fs.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(fs.path(key) + expirySuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (fs *FileStore) expired(key string) bool {
	raw, err := os.ReadFile(fs.path(key) + expirySuffix)
	if err != nil {
		return false
	}
	unix, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return false
	}
	return !fs.now().Before(time.Unix(unix, 0))
}

// Sweep removes every expired artifact and returns how many were removed.
func (fs *FileStore) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(fs.Dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		if !strings.HasSuffix(name, expirySuffix) {
			continue
		}
		key := strings.TrimSuffix(name, expirySuffix)
		if validateKey(key) != nil || !fs.expired(key) {
			continue
		}
		if err := fs.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

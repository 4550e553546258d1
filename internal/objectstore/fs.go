package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore writes objects as files below a base directory. Used for local replays.
type FSStore struct {
	basePath string
}

// NewFSStore creates the base directory if needed.
func NewFSStore(basePath string) (*FSStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("fs store: base path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &FSStore{basePath: basePath}, nil
}

// Put writes body to basePath/key via a temp file and rename.
func (s *FSStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("fs store: key %q escapes base path", key)
	}
	path := filepath.Join(s.basePath, rel)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit object %s: %w", key, err)
	}
	return nil
}

// Location returns the base directory.
func (s *FSStore) Location() string {
	return s.basePath
}

// Package objectstore puts archive objects into durable storage.
package objectstore

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
)

// Store writes whole objects. A Put to an existing key fully overwrites it.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	// Location names the container (bucket or directory) for log context.
	Location() string
}

// New builds the Store selected by cfg.Backend.
func New(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return NewS3Store(ctx, cfg)
	case config.BackendFS:
		return NewFSStore(cfg.BasePath)
	case config.BackendMemory:
		return NewMemoryStore(cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

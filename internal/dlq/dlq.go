// Package dlq keeps records that could not be archived so they can be inspected and replayed.
package dlq

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/messaging/nats"
	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

// Failure reasons.
const (
	ReasonMaterialize  = "materialize"
	ReasonArchiveWrite = "archive_write"
)

// ErrNotFound is returned by Delete when no entry has the given id.
var ErrNotFound = errors.New("dlq entry not found")

// FailedRecord captures one record the pipeline gave up on.
type FailedRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	Table     string    `json:"table,omitempty"`
	Bucket    string    `json:"bucket,omitempty"`
	Key       string    `json:"key,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	// Body is the serialized item for archive failures.
	Body json.RawMessage `json:"body,omitempty"`
	// Image is the raw prior image for materialization failures.
	Image    stream.Image `json:"image,omitempty"`
	Attempts int          `json:"attempts"`
}

// Queue stores failed records.
type Queue interface {
	Write(ctx context.Context, rec FailedRecord) error
	List(ctx context.Context, limit int) ([]FailedRecord, error)
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
	Close() error
}

// prepare fills in the id and timestamp of a new entry.
func prepare(rec *FailedRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Attempts == 0 {
		rec.Attempts = 1
	}
}

// New opens the queue selected by cfg. It returns nil, nil when the DLQ is disabled.
func New(ctx context.Context, cfg config.DLQConfig, logger *logging.Logger) (Queue, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.Backend {
	case config.DLQBackendFile, "":
		return NewFileQueue(cfg.BasePath, logger)
	case config.DLQBackendRedis:
		return NewRedisQueue(ctx, cfg.RedisURL, cfg.RedisKey, logger)
	case config.DLQBackendJetStream:
		conn, err := nats.Connect(nats.DefaultOptions(cfg.NatsURL), logger)
		if err != nil {
			return nil, fmt.Errorf("connect dlq jetstream: %w", err)
		}
		q, err := NewJetStreamQueue(ctx, conn, logger)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown dlq backend %q", cfg.Backend)
	}
}

// Package archive turns materialized items into keyed objects and writes them.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/materializer"
	"github.com/telhawk-systems/ttl-archiver/internal/objectstore"
)

// Object is a serialized item and the key it is stored under.
type Object struct {
	Key  string
	Body []byte
}

// WriteError is returned when an object could not be stored. It never aborts a batch.
type WriteError struct {
	ItemID   string
	Bucket   string
	Key      string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("archive item %s to %s/%s after %d attempt(s): %v", e.ItemID, e.Bucket, e.Key, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer stores items under <prefix><id><suffix>.
type Writer struct {
	store           objectstore.Store
	keyPrefix       string
	keySuffix       string
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          *logging.Logger
}

// NewWriter creates a Writer. A MaxAttempts below 1 is treated as 1.
func NewWriter(store objectstore.Store, cfg config.ArchiveConfig, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Default()
	}
	w := &Writer{
		store:           store,
		keyPrefix:       cfg.KeyPrefix,
		keySuffix:       cfg.KeySuffix,
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		logger:          logger,
	}
	if w.maxAttempts < 1 {
		w.maxAttempts = 1
	}
	return w
}

// Key returns the object key for an item id.
func (w *Writer) Key(id string) string {
	return w.keyPrefix + id + w.keySuffix
}

// Location returns the bucket or directory objects are written to.
func (w *Writer) Location() string {
	return w.store.Location()
}

// Serialize renders an item as JSON with sorted keys and numbers emitted verbatim.
// <, > and & are written as is. Equal items always produce identical bytes.
func Serialize(item materializer.Item) ([]byte, error) {
	return json.MarshalNoEscape(item)
}

// Build computes the archive object for item without writing it.
func (w *Writer) Build(item materializer.Item) (Object, error) {
	id, ok := item.ID()
	if !ok {
		return Object{}, &materializer.MaterializationError{Path: materializer.IDAttribute, Err: materializer.ErrMissingID}
	}
	body, err := Serialize(item)
	if err != nil {
		return Object{}, fmt.Errorf("serialize item %s: %w", id, err)
	}
	return Object{Key: w.Key(id), Body: body}, nil
}

// Archive writes item to the store. On failure the error is logged with the item id,
// bucket and key and returned as *WriteError. Writing the same item again overwrites
// the object with identical bytes.
func (w *Writer) Archive(ctx context.Context, item materializer.Item) (Object, error) {
	id, _ := item.ID()
	obj, err := w.Build(item)
	if err != nil {
		werr := &WriteError{ItemID: id, Bucket: w.store.Location(), Key: w.Key(id), Err: err}
		w.logFailure(ctx, werr)
		return Object{}, werr
	}
	return obj, w.Write(ctx, id, obj)
}

// Write stores an already built object, retrying up to the configured attempts.
func (w *Writer) Write(ctx context.Context, itemID string, obj Object) error {
	attempts, err := w.put(ctx, obj)
	if err != nil {
		werr := &WriteError{ItemID: itemID, Bucket: w.store.Location(), Key: obj.Key, Attempts: attempts, Err: err}
		w.logFailure(ctx, werr)
		return werr
	}

	w.logger.InfoContext(ctx, "Archived expired record",
		logging.ItemID(itemID),
		logging.Bucket(w.store.Location()),
		logging.Key(obj.Key),
		logging.Attempts(attempts),
	)
	return nil
}

func (w *Writer) put(ctx context.Context, obj Object) (int, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	if w.initialInterval > 0 {
		backoffCfg.InitialInterval = w.initialInterval
	}
	if w.maxInterval > 0 {
		backoffCfg.MaxInterval = w.maxInterval
	}

	attempt := 0
	for {
		attempt++
		err := w.store.Put(ctx, obj.Key, obj.Body)
		if err == nil {
			return attempt, nil
		}
		if attempt >= w.maxAttempts || ctx.Err() != nil {
			return attempt, err
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			return attempt, err
		}
		w.logger.WarnContext(ctx, "Archive put failed, retrying",
			logging.Key(obj.Key),
			logging.Attempts(attempt),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return attempt, err
		case <-time.After(sleep):
		}
	}
}

func (w *Writer) logFailure(ctx context.Context, werr *WriteError) {
	w.logger.ErrorContext(ctx, "Failed to archive expired record",
		logging.ItemID(werr.ItemID),
		logging.Bucket(werr.Bucket),
		logging.Key(werr.Key),
		logging.Attempts(werr.Attempts),
		logging.Error(werr.Err),
	)
}

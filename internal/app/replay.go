package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/telhawk-systems/ttl-archiver/internal/archive"
	"github.com/telhawk-systems/ttl-archiver/internal/dlq"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/materializer"
)

// ErrDLQDisabled is returned by DLQ operations when no queue is configured.
var ErrDLQDisabled = errors.New("dlq not enabled")

// ReplayResult counts what a DLQ replay did.
type ReplayResult struct {
	Replayed int `json:"replayed" yaml:"replayed"`
	Failed   int `json:"failed" yaml:"failed"`
}

// ReplayDLQ re-archives up to limit dead-lettered records. Entries that are
// written successfully are removed from the queue; the rest stay for inspection.
func (a *App) ReplayDLQ(ctx context.Context, limit int) (ReplayResult, error) {
	var res ReplayResult
	if a.DLQ == nil {
		return res, ErrDLQDisabled
	}

	entries, err := a.DLQ.List(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("list dlq: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		itemID, obj, err := a.rebuild(entry)
		if err != nil {
			res.Failed++
			a.Logger.WarnContext(ctx, "DLQ entry still cannot be archived",
				logging.EventID(entry.EventID),
				logging.Reason(entry.Reason),
				logging.Error(err),
			)
			continue
		}

		if err := a.Writer.Write(ctx, itemID, obj); err != nil {
			res.Failed++
			continue
		}

		if err := a.DLQ.Delete(ctx, entry.ID); err != nil {
			a.Logger.WarnContext(ctx, "Replayed DLQ entry could not be removed",
				logging.ItemID(itemID),
				logging.Error(err),
			)
		}
		res.Replayed++
	}
	return res, nil
}

// rebuild recovers the archive object of a dead-lettered record.
func (a *App) rebuild(entry dlq.FailedRecord) (string, archive.Object, error) {
	if entry.Reason == dlq.ReasonArchiveWrite && len(entry.Body) > 0 && entry.Key != "" {
		var body bytes.Buffer
		if err := json.Compact(&body, entry.Body); err != nil {
			return "", archive.Object{}, fmt.Errorf("stored body: %w", err)
		}
		return entry.ItemID, archive.Object{Key: entry.Key, Body: body.Bytes()}, nil
	}

	item, err := materializer.Materialize(entry.Image)
	if err != nil {
		return "", archive.Object{}, err
	}
	obj, err := a.Writer.Build(item)
	if err != nil {
		return "", archive.Object{}, err
	}
	id, _ := item.ID()
	return id, obj, nil
}

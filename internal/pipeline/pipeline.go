// Package pipeline drives a delivered batch of change records through
// classification, materialization and archival.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/ttl-archiver/internal/archive"
	"github.com/telhawk-systems/ttl-archiver/internal/classifier"
	"github.com/telhawk-systems/ttl-archiver/internal/dlq"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/materializer"
	"github.com/telhawk-systems/ttl-archiver/internal/metrics"
	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

// StatusCompleted is reported for every batch that was accepted, whatever its
// per-record failures.
const StatusCompleted = "TTL processing completed"

// Outcome summarizes one batch.
type Outcome struct {
	Status            string `json:"status" yaml:"status"`
	Received          int    `json:"received" yaml:"received"`
	Qualified         int    `json:"qualified" yaml:"qualified"`
	Skipped           int    `json:"skipped" yaml:"skipped"`
	Archived          int    `json:"archived" yaml:"archived"`
	MaterializeFailed int    `json:"materialize_failed" yaml:"materialize_failed"`
	ArchiveFailed     int    `json:"archive_failed" yaml:"archive_failed"`
	DeadLettered      int    `json:"dead_lettered" yaml:"dead_lettered"`
	// Unprocessed counts records left untouched because the invocation was cancelled.
	Unprocessed int `json:"unprocessed" yaml:"unprocessed"`
}

// Failed returns the number of qualifying records that were not archived.
func (o Outcome) Failed() int {
	return o.MaterializeFailed + o.ArchiveFailed
}

// Options holds the optional collaborators of an Orchestrator.
type Options struct {
	// DLQ receives records that failed. Nil means log and continue.
	DLQ     dlq.Queue
	Metrics *metrics.Recorder
	Logger  *logging.Logger
	// Table names the source table in logs.
	Table string
}

// Orchestrator processes batches strictly in delivery order. It holds no
// per-batch state and never aborts a batch because of one record.
type Orchestrator struct {
	classifier *classifier.Classifier
	writer     *archive.Writer
	dlq        dlq.Queue
	metrics    *metrics.Recorder
	logger     *logging.Logger
	table      string
}

// New creates an orchestrator.
func New(cls *classifier.Classifier, writer *archive.Writer, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Table != "" {
		logger = logger.With(logging.Table(opts.Table))
	}
	return &Orchestrator{
		classifier: cls,
		writer:     writer,
		dlq:        opts.DLQ,
		metrics:    opts.Metrics,
		logger:     logger,
		table:      opts.Table,
	}
}

// Process runs every record of the batch through the pipeline and reports what
// happened. Per-record failures are logged and counted. If ctx is cancelled the
// remaining records are left unprocessed.
func (o *Orchestrator) Process(ctx context.Context, records []stream.ChangeRecord) Outcome {
	start := time.Now()
	out := Outcome{Status: StatusCompleted, Received: len(records)}

	for i := range records {
		if err := ctx.Err(); err != nil {
			out.Unprocessed = len(records) - i
			o.logger.WarnContext(ctx, "Invocation cancelled, leaving remaining records unprocessed",
				"unprocessed", out.Unprocessed,
				logging.Error(err),
			)
			break
		}
		o.processRecord(ctx, &records[i], &out)
	}

	elapsed := time.Since(start)
	o.metrics.ObserveBatch(len(records), elapsed)
	o.logger.InfoContext(ctx, "Batch processed",
		"received", out.Received,
		"qualified", out.Qualified,
		"archived", out.Archived,
		"failed", out.Failed(),
		"dead_lettered", out.DeadLettered,
		"duration_ms", elapsed.Milliseconds(),
	)
	return out
}

func (o *Orchestrator) processRecord(ctx context.Context, rec *stream.ChangeRecord, out *Outcome) {
	if !o.classifier.IsTTLExpiry(rec) {
		out.Skipped++
		o.metrics.ObserveRecord(metrics.OutcomeSkipped)
		o.logger.DebugContext(ctx, "Skipping non-TTL record",
			logging.EventID(rec.EventID),
			logging.EventName(string(rec.EventName)),
		)
		return
	}
	out.Qualified++

	item, err := materializer.Materialize(rec.OldImage())
	if err != nil {
		out.MaterializeFailed++
		o.metrics.ObserveRecord(metrics.OutcomeMaterializeFailed)
		o.logger.WarnContext(ctx, "Failed to materialize expired record",
			logging.EventID(rec.EventID),
			logging.Error(err),
		)
		o.deadLetter(ctx, out, dlq.FailedRecord{
			Reason:  dlq.ReasonMaterialize,
			Error:   err.Error(),
			EventID: rec.EventID,
			Image:   rec.OldImage(),
		})
		return
	}

	putStart := time.Now()
	obj, err := o.writer.Archive(ctx, item)
	if err != nil {
		out.ArchiveFailed++
		o.metrics.ObserveRecord(metrics.OutcomeArchiveFailed)

		// The writer has already logged the failure with its id, bucket and key.
		id, _ := item.ID()
		failed := dlq.FailedRecord{
			Reason:  dlq.ReasonArchiveWrite,
			Error:   err.Error(),
			Bucket:  o.writer.Location(),
			Key:     obj.Key,
			ItemID:  id,
			EventID: rec.EventID,
			Body:    obj.Body,
		}
		var werr *archive.WriteError
		if errors.As(err, &werr) {
			failed.Key = werr.Key
			failed.Attempts = werr.Attempts
		}
		o.deadLetter(ctx, out, failed)
		return
	}

	out.Archived++
	o.metrics.ObserveRecord(metrics.OutcomeArchived)
	o.metrics.ObserveArchive(len(obj.Body), time.Since(putStart))
}

// deadLetter hands a failed record to the DLQ when one is configured. The write
// outlives cancellation of the invocation context.
func (o *Orchestrator) deadLetter(ctx context.Context, out *Outcome, failed dlq.FailedRecord) {
	if o.dlq == nil {
		return
	}
	failed.Table = o.table

	if err := o.dlq.Write(context.WithoutCancel(ctx), failed); err != nil {
		o.logger.ErrorContext(ctx, "Failed to write record to DLQ",
			logging.EventID(failed.EventID),
			logging.Reason(failed.Reason),
			logging.Error(err),
		)
		return
	}
	out.DeadLettered++
	o.metrics.ObserveRecord(metrics.OutcomeDeadLettered)
}

// Package handler adapts Lambda stream invocations to the archiving pipeline.
package handler

import (
	"bytes"
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/metrics"
	"github.com/telhawk-systems/ttl-archiver/internal/pipeline"
	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

// Handler is the function entrypoint. It is built once per process and reused
// across invocations.
type Handler struct {
	pipeline   *pipeline.Orchestrator
	metrics    *metrics.Recorder
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
}

// New creates a Handler. metrics may be nil.
func New(p *pipeline.Orchestrator, rec *metrics.Recorder, metricsCfg config.MetricsConfig, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		pipeline:   p,
		metrics:    rec,
		metricsCfg: metricsCfg,
		logger:     logger,
	}
}

// Handle processes one delivered batch and returns the completion status. It
// returns an error only when the payload is not a change stream batch, which
// makes the platform retry the whole batch.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (string, error) {
	out, err := h.Invoke(ctx, payload)
	if err != nil {
		return "", err
	}
	return out.Status, nil
}

// Invoke decodes payload, runs the pipeline and reports the batch outcome.
func (h *Handler) Invoke(ctx context.Context, payload []byte) (pipeline.Outcome, error) {
	event, err := stream.Decode(bytes.NewReader(payload))
	if err != nil {
		h.logger.ErrorContext(ctx, "Rejecting malformed batch", logging.Error(err))
		return pipeline.Outcome{}, fmt.Errorf("decode batch: %w", err)
	}
	return h.InvokeEvent(ctx, event), nil
}

// InvokeEvent runs an already decoded batch.
func (h *Handler) InvokeEvent(ctx context.Context, event *stream.Event) pipeline.Outcome {
	out := h.pipeline.Process(ctx, event.Records)

	if err := h.metrics.Push(context.WithoutCancel(ctx), h.metricsCfg.PushgatewayURL, h.metricsCfg.Job); err != nil {
		h.logger.WarnContext(ctx, "Failed to push metrics", logging.Error(err))
	}
	return out
}

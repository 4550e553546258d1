// Package app wires configuration into a ready-to-use archiver.
package app

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/ttl-archiver/internal/archive"
	"github.com/telhawk-systems/ttl-archiver/internal/classifier"
	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/dlq"
	"github.com/telhawk-systems/ttl-archiver/internal/handler"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/metrics"
	"github.com/telhawk-systems/ttl-archiver/internal/objectstore"
	"github.com/telhawk-systems/ttl-archiver/internal/pipeline"
)

// App holds the process-wide collaborators, constructed once at cold start.
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Store      objectstore.Store
	Writer     *archive.Writer
	Classifier *classifier.Classifier
	DLQ        dlq.Queue
	Metrics    *metrics.Recorder
	Pipeline   *pipeline.Orchestrator
	Handler    *handler.Handler
}

// Build validates cfg and constructs every collaborator. A DLQ that cannot be
// opened is logged and skipped.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}

	store, err := objectstore.New(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}

	queue, err := dlq.New(ctx, cfg.DLQ, logger)
	if err != nil {
		logger.WarnContext(ctx, "Failed to initialize DLQ, continuing without DLQ", logging.Error(err))
		queue = nil
	} else if queue != nil {
		logger.InfoContext(ctx, "DLQ enabled", "backend", cfg.DLQ.Backend)
	}

	rec := metrics.New()
	cls := classifier.New(cfg.Source.ServicePrincipal)
	writerLogger := logger
	if cfg.Source.TableName != "" {
		writerLogger = logger.With(logging.Table(cfg.Source.TableName))
	}
	writer := archive.NewWriter(store, cfg.Archive, writerLogger)
	orchestrator := pipeline.New(cls, writer, pipeline.Options{
		DLQ:     queue,
		Metrics: rec,
		Logger:  logger,
		Table:   cfg.Source.TableName,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Writer:     writer,
		Classifier: cls,
		DLQ:        queue,
		Metrics:    rec,
		Pipeline:   orchestrator,
		Handler:    handler.New(orchestrator, rec, cfg.Metrics, logger),
	}, nil
}

// Close releases the DLQ connection, if any.
func (a *App) Close() error {
	if a.DLQ == nil {
		return nil
	}
	return a.DLQ.Close()
}

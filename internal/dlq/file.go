package dlq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/telhawk-systems/ttl-archiver/internal/logging"
)

// FileQueue writes failed records to a directory, one JSON file each.
type FileQueue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	written  uint64
}

// NewFileQueue creates a DLQ that writes to basePath.
func NewFileQueue(basePath string, logger *logging.Logger) (*FileQueue, error) {
	if basePath == "" {
		basePath = "/tmp/ttl-archiver/dlq"
	}
	if logger == nil {
		logger = logging.Default()
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	return &FileQueue{basePath: basePath, logger: logger}, nil
}

// Write records a failed record as failed_<unix>_<id>.json.
func (q *FileQueue) Write(ctx context.Context, rec FailedRecord) error {
	if q == nil {
		return nil
	}
	prepare(&rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	filename := fmt.Sprintf("failed_%d_%s.json", rec.Timestamp.Unix(), rec.ID)
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0644); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	q.logger.InfoContext(ctx, "DLQ: wrote failed record",
		logging.Key(filename),
		logging.Reason(rec.Reason),
		logging.ItemID(rec.ItemID),
	)
	return nil
}

// List returns up to limit entries, oldest first. A limit of 0 returns everything.
func (q *FileQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return nil, err
	}

	var records []FailedRecord
	for _, name := range files {
		if limit > 0 && len(records) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.ErrorContext(ctx, "Failed to read DLQ file", logging.Key(name), logging.Error(err))
			continue
		}

		var rec FailedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			q.logger.ErrorContext(ctx, "Failed to parse DLQ file", logging.Key(name), logging.Error(err))
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Delete removes the entry with the given id.
func (q *FileQueue) Delete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(q.basePath, fmt.Sprintf("failed_*_%s.json", id)))
	if err != nil {
		return fmt.Errorf("search dlq files: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("delete dlq file: %w", err)
		}
	}
	return nil
}

// Purge removes all entries.
func (q *FileQueue) Purge(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return err
	}

	deleted := 0
	for _, name := range files {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.ErrorContext(ctx, "Failed to delete DLQ file", logging.Key(name), logging.Error(err))
			continue
		}
		deleted++
	}

	q.logger.InfoContext(ctx, "DLQ: purged entries", "deleted", deleted)
	return nil
}

// Stats returns DLQ metrics.
func (q *FileQueue) Stats(ctx context.Context) map[string]interface{} {
	if q == nil {
		return map[string]interface{}{"enabled": false}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return map[string]interface{}{
			"enabled": true,
			"backend": "file",
			"written": q.written,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"enabled":       true,
		"backend":       "file",
		"written":       q.written,
		"pending_files": len(files),
		"base_path":     q.basePath,
	}
}

// Close is a no-op for the file backend.
func (q *FileQueue) Close() error {
	return nil
}

// entries lists DLQ file names in directory order. Caller holds q.mu.
func (q *FileQueue) entries() ([]string, error) {
	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var names []string
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "failed_") || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		names = append(names, file.Name())
	}
	return names, nil
}

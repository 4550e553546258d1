package dlq

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func archiveFailure() FailedRecord {
	return FailedRecord{
		Reason:  ReasonArchiveWrite,
		Error:   "AccessDenied",
		Table:   "sessions",
		Bucket:  "archive-bucket",
		Key:     "records/42.json",
		ItemID:  "42",
		EventID: "evt-1",
		Body:    json.RawMessage(`{"id":"42","ttl":1700000000}`),
	}
}

func materializeFailure() FailedRecord {
	return FailedRecord{
		Reason:  ReasonMaterialize,
		Error:   "materialize ttl: unsupported attribute type",
		EventID: "evt-2",
		Image:   stream.Image{"id": json.RawMessage(`{"S":"7"}`), "ttl": json.RawMessage(`{"XN":"1"}`)},
	}
}

// queueContract exercises behaviour every backend must share.
func queueContract(t *testing.T, q Queue) {
	ctx := context.Background()

	require.NoError(t, q.Write(ctx, archiveFailure()))
	require.NoError(t, q.Write(ctx, materializeFailure()))

	records, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byReason := map[string]FailedRecord{}
	for _, rec := range records {
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.Timestamp.IsZero())
		assert.Equal(t, 1, rec.Attempts)
		byReason[rec.Reason] = rec
	}

	archived := byReason[ReasonArchiveWrite]
	assert.Equal(t, "42", archived.ItemID)
	assert.Equal(t, "records/42.json", archived.Key)
	assert.JSONEq(t, `{"id":"42","ttl":1700000000}`, string(archived.Body))

	materialized := byReason[ReasonMaterialize]
	assert.Equal(t, "evt-2", materialized.EventID)
	assert.JSONEq(t, `{"XN":"1"}`, string(materialized.Image["ttl"]))

	limited, err := q.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, q.Delete(ctx, archived.ID))
	assert.ErrorIs(t, q.Delete(ctx, archived.ID), ErrNotFound)

	records, err = q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, materialized.ID, records[0].ID)

	require.NoError(t, q.Purge(ctx))
	records, err = q.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileQueue(t *testing.T) {
	q, err := NewFileQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	defer q.Close()

	queueContract(t, q)
}

func TestFileQueue_CreatesNestedDirectories(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "path", "dlq")
	q, err := NewFileQueue(nested, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, q)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileQueue_SkipsForeignAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	q, err := NewFileQueue(dir, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failed_1_bad.json"), []byte("{"), 0644))
	require.NoError(t, q.Write(context.Background(), archiveFailure()))

	records, err := q.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	stats := q.Stats(context.Background())
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 2, stats["pending_files"])
	assert.Equal(t, uint64(1), stats["written"])
}

func TestFileQueue_NilStats(t *testing.T) {
	var q *FileQueue
	assert.Equal(t, false, q.Stats(context.Background())["enabled"])
	assert.NoError(t, q.Write(context.Background(), archiveFailure()))
}

func TestRedisQueue(t *testing.T) {
	_, client := setupTestRedis(t)
	q := NewRedisQueueWithClient(client, "", logging.Discard())
	defer q.Close()

	queueContract(t, q)
}

func TestRedisQueue_Stats(t *testing.T) {
	mr, client := setupTestRedis(t)
	q := NewRedisQueueWithClient(client, "custom:dlq", logging.Discard())
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Write(ctx, archiveFailure()))
	assert.True(t, mr.Exists("custom:dlq"))

	stats := q.Stats(ctx)
	assert.Equal(t, "redis", stats["backend"])
	assert.Equal(t, int64(1), stats["pending"])
}

func TestNewRedisQueue_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisQueue(context.Background(), "redis://"+addr+"/0", "", logging.Discard())
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled returns nil queue", func(t *testing.T) {
		q, err := New(ctx, config.DLQConfig{Enabled: false, Backend: config.DLQBackendFile}, logging.Discard())
		require.NoError(t, err)
		assert.Nil(t, q)
	})

	t.Run("file backend", func(t *testing.T) {
		q, err := New(ctx, config.DLQConfig{Enabled: true, Backend: config.DLQBackendFile, BasePath: t.TempDir()}, logging.Discard())
		require.NoError(t, err)
		assert.IsType(t, &FileQueue{}, q)
	})

	t.Run("redis backend", func(t *testing.T) {
		mr, _ := setupTestRedis(t)
		q, err := New(ctx, config.DLQConfig{Enabled: true, Backend: config.DLQBackendRedis, RedisURL: "redis://" + mr.Addr() + "/0"}, logging.Discard())
		require.NoError(t, err)
		defer q.Close()
		assert.IsType(t, &RedisQueue{}, q)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(ctx, config.DLQConfig{Enabled: true, Backend: "kafka"}, logging.Discard())
		assert.Error(t, err)
	})
}

func TestErrNotFound(t *testing.T) {
	q, err := NewFileQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	err = q.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

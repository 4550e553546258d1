package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/dlq"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/materializer"
	"github.com/telhawk-systems/ttl-archiver/internal/objectstore"
	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

func testConfig(t *testing.T) *config.Config {
	t.Setenv("ARCHIVER_ARCHIVE_BACKEND", config.BackendMemory)
	t.Setenv("BUCKET_NAME", "archive-bucket")
	t.Setenv("DYNAMODB_TABLE_NAME", "sessions")

	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)

	a, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &objectstore.MemoryStore{}, a.Store)
	assert.Equal(t, "archive-bucket", a.Writer.Location())
	assert.Equal(t, "records/9.json", a.Writer.Key("9"))
	assert.Nil(t, a.DLQ)
	assert.NotNil(t, a.Handler)
}

func TestBuild_ArchiveLogsCarryTable(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	a, err := Build(context.Background(), cfg, logging.NewWithWriter(&buf, slog.LevelInfo, "json"))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Writer.Archive(context.Background(), materializer.Item{"id": "9"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"msg":"Archived expired record"`)
	assert.Contains(t, buf.String(), `"table":"sessions"`)
	assert.Contains(t, buf.String(), `"item_id":"9"`)
}

func TestBuild_WithFileDLQ(t *testing.T) {
	cfg := testConfig(t)
	cfg.DLQ.Enabled = true
	cfg.DLQ.Backend = config.DLQBackendFile
	cfg.DLQ.BasePath = t.TempDir()

	a, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &dlq.FileQueue{}, a.DLQ)
}

func TestBuild_UnreachableDLQIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.DLQ.Enabled = true
	cfg.DLQ.Backend = config.DLQBackendRedis
	cfg.DLQ.RedisURL = "redis://127.0.0.1:1/0"

	a, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, a.DLQ)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Backend = config.BackendS3
	cfg.Archive.Bucket = ""

	_, err := Build(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestReplayDLQ(t *testing.T) {
	cfg := testConfig(t)
	cfg.DLQ.Enabled = true
	cfg.DLQ.Backend = config.DLQBackendFile
	cfg.DLQ.BasePath = t.TempDir()

	a, err := Build(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.DLQ.Write(ctx, dlq.FailedRecord{
		Reason: dlq.ReasonArchiveWrite,
		Key:    "records/42.json",
		ItemID: "42",
		Body:   []byte(`{"id":"42","ttl":1700000000}`),
	}))
	require.NoError(t, a.DLQ.Write(ctx, dlq.FailedRecord{
		Reason: dlq.ReasonMaterialize,
		Image:  stream.Image{"ttl": []byte(`{"N":"1"}`)},
	}))

	res, err := a.ReplayDLQ(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	assert.Equal(t, 1, res.Failed)

	store := a.Store.(*objectstore.MemoryStore)
	body, ok := store.Get("records/42.json")
	require.True(t, ok)
	assert.Equal(t, `{"id":"42","ttl":1700000000}`, string(body))

	remaining, err := a.DLQ.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, dlq.ReasonMaterialize, remaining[0].Reason)
}

func TestReplayDLQ_Disabled(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)

	_, err = a.ReplayDLQ(context.Background(), 0)
	assert.ErrorIs(t, err, ErrDLQDisabled)
}

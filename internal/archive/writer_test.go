package archive

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/materializer"
	"github.com/telhawk-systems/ttl-archiver/internal/objectstore"
)

func testArchiveConfig() config.ArchiveConfig {
	return config.ArchiveConfig{
		Backend:         config.BackendMemory,
		Bucket:          "archive-bucket",
		KeyPrefix:       "records/",
		KeySuffix:       ".json",
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestSerialize_Canonical(t *testing.T) {
	item := materializer.Item{
		"ttl": json.Number("1700000000"),
		"id":  "42",
	}

	body, err := Serialize(item)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"42","ttl":1700000000}`, string(body))
}

func TestSerialize_NoHTMLEscaping(t *testing.T) {
	item := materializer.Item{
		"id":   "42",
		"zeta": "a<b>&c",
	}

	body, err := Serialize(item)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"42","zeta":"a<b>&c"}`, string(body))
}

func TestSerialize_Nested(t *testing.T) {
	item := materializer.Item{
		"id":    "user-1",
		"zeta":  nil,
		"alpha": map[string]any{"b": true, "a": []any{json.Number("1.5"), "x"}},
		"blob":  []byte("hi"),
		"nums":  []json.Number{"3", "1"},
	}

	body, err := Serialize(item)
	require.NoError(t, err)
	assert.Equal(t,
		`{"alpha":{"a":[1.5,"x"],"b":true},"blob":"aGk=","id":"user-1","nums":[3,1],"zeta":null}`,
		string(body))
}

func TestSerialize_Deterministic(t *testing.T) {
	build := func() materializer.Item {
		return materializer.Item{
			"id": "7", "c": "3", "b": "2", "a": "1",
			"m": map[string]any{"y": json.Number("2"), "x": json.Number("1")},
		}
	}

	first, err := Serialize(build())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Serialize(build())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestWriter_Key(t *testing.T) {
	w := NewWriter(objectstore.NewMemoryStore("b"), testArchiveConfig(), logging.Discard())
	assert.Equal(t, "records/42.json", w.Key("42"))
	assert.Equal(t, "records/a b.json", w.Key("a b"))
}

func TestWriter_Archive(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	w := NewWriter(store, testArchiveConfig(), logging.Discard())

	obj, err := w.Archive(context.Background(), materializer.Item{
		"id":  "42",
		"ttl": json.Number("1700000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "records/42.json", obj.Key)

	body, ok := store.Get("records/42.json")
	require.True(t, ok)
	assert.Equal(t, `{"id":"42","ttl":1700000000}`, string(body))
}

func TestWriter_ArchiveLogsSuccessAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelInfo, "json").With(logging.Table("sessions"))
	w := NewWriter(objectstore.NewMemoryStore("archive-bucket"), testArchiveConfig(), logger)

	_, err := w.Archive(context.Background(), materializer.Item{"id": "42"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"msg":"Archived expired record"`)
	assert.Contains(t, out, `"item_id":"42"`)
	assert.Contains(t, out, `"table":"sessions"`)
	assert.Contains(t, out, `"bucket":"archive-bucket"`)
	assert.Contains(t, out, `"key":"records/42.json"`)
}

func TestWriter_ArchiveIsIdempotent(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	w := NewWriter(store, testArchiveConfig(), logging.Discard())
	item := materializer.Item{"id": "42", "name": "Ada"}

	ctx := context.Background()
	_, err := w.Archive(ctx, item)
	require.NoError(t, err)
	_, err = w.Archive(ctx, item)
	require.NoError(t, err)

	puts := store.Puts()
	require.Len(t, puts, 2)
	assert.Equal(t, puts[0].Key, puts[1].Key)
	assert.Equal(t, puts[0].Body, puts[1].Body)
	assert.Equal(t, 1, store.Len())
}

func TestWriter_ArchiveFailureIsLoggedAndReturned(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	denied := errors.New("AccessDenied")
	store.FailWith(func(string) error { return denied })

	var buf bytes.Buffer
	w := NewWriter(store, testArchiveConfig(), logging.NewWithWriter(&buf, slog.LevelDebug, "json"))

	_, err := w.Archive(context.Background(), materializer.Item{"id": "42"})
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "42", werr.ItemID)
	assert.Equal(t, "archive-bucket", werr.Bucket)
	assert.Equal(t, "records/42.json", werr.Key)
	assert.Equal(t, 1, werr.Attempts)

	logged := buf.String()
	assert.Contains(t, logged, `"item_id":"42"`)
	assert.Contains(t, logged, `"bucket":"archive-bucket"`)
	assert.Contains(t, logged, `"key":"records/42.json"`)
	assert.Contains(t, logged, "AccessDenied")
}

func TestWriter_RetriesTransientFailures(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	failures := 2
	store.FailWith(func(string) error {
		if failures > 0 {
			failures--
			return errors.New("SlowDown")
		}
		return nil
	})

	cfg := testArchiveConfig()
	cfg.MaxAttempts = 3
	w := NewWriter(store, cfg, logging.Discard())

	_, err := w.Archive(context.Background(), materializer.Item{"id": "42"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestWriter_RetriesAreBounded(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	calls := 0
	store.FailWith(func(string) error {
		calls++
		return errors.New("SlowDown")
	})

	cfg := testArchiveConfig()
	cfg.MaxAttempts = 3
	w := NewWriter(store, cfg, logging.Discard())

	_, err := w.Archive(context.Background(), materializer.Item{"id": "42"})
	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, 3, werr.Attempts)
	assert.Equal(t, 3, calls)
}

func TestWriter_ZeroAttemptsMeansOne(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	calls := 0
	store.FailWith(func(string) error {
		calls++
		return errors.New("boom")
	})

	cfg := testArchiveConfig()
	cfg.MaxAttempts = 0
	w := NewWriter(store, cfg, logging.Discard())

	_, err := w.Archive(context.Background(), materializer.Item{"id": "1"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWriter_MissingID(t *testing.T) {
	store := objectstore.NewMemoryStore("archive-bucket")
	w := NewWriter(store, testArchiveConfig(), logging.Discard())

	_, err := w.Archive(context.Background(), materializer.Item{"name": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, materializer.ErrMissingID)
	assert.Equal(t, 0, store.Len())
}

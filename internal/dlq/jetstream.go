package dlq

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/ttl-archiver/internal/logging"
	"github.com/telhawk-systems/ttl-archiver/internal/messaging/nats"
)

const subjectPrefix = "ttlarchiver.dlq."

// JetStreamQueue publishes failed records to a JetStream stream.
// Subjects are ttlarchiver.dlq.<reason>.
type JetStreamQueue struct {
	conn    *nats.Conn
	stream  jetstream.Stream
	logger  *logging.Logger
	written uint64
}

// NewJetStreamQueue ensures the DLQ stream exists.
func NewJetStreamQueue(ctx context.Context, conn *nats.Conn, logger *logging.Logger) (*JetStreamQueue, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := nats.DLQStreamConfig()
	stream, err := conn.EnsureStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	logger.InfoContext(ctx, "DLQ: JetStream stream ready", "stream", cfg.Name)

	return &JetStreamQueue{conn: conn, stream: stream, logger: logger}, nil
}

// Write publishes rec and waits for the ack.
func (q *JetStreamQueue) Write(ctx context.Context, rec FailedRecord) error {
	prepare(&rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.conn.Publish(ctx, subjectPrefix+rec.Reason, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	atomic.AddUint64(&q.written, 1)
	q.logger.InfoContext(ctx, "DLQ: published failed record",
		logging.Reason(rec.Reason),
		logging.ItemID(rec.ItemID),
	)
	return nil
}

const scanPage = 256

type storedRecord struct {
	seq uint64
	rec FailedRecord
}

// scan walks every entry stored when it starts, oldest first, through an
// ephemeral consumer that acks nothing. It stops early when fn returns false.
func (q *JetStreamQueue) scan(ctx context.Context, fn func(storedRecord) bool) error {
	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject:     nats.DLQSubjects,
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create scan consumer: %w", err)
	}
	info := consumer.CachedInfo()
	defer func() {
		if err := q.stream.DeleteConsumer(context.WithoutCancel(ctx), info.Name); err != nil {
			q.logger.DebugContext(ctx, "DLQ: scan consumer not removed", logging.Error(err))
		}
	}()

	remaining := info.NumPending
	for remaining > 0 {
		msgs, err := consumer.Fetch(int(min(remaining, scanPage)), jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return fmt.Errorf("fetch messages: %w", err)
		}

		got, done := 0, false
		for msg := range msgs.Messages() {
			got++
			if done {
				continue
			}
			var rec FailedRecord
			if err := json.Unmarshal(msg.Data(), &rec); err != nil {
				q.logger.ErrorContext(ctx, "Failed to parse DLQ message", logging.Error(err))
				continue
			}
			var seq uint64
			if meta, err := msg.Metadata(); err == nil {
				seq = meta.Sequence.Stream
			}
			done = !fn(storedRecord{seq: seq, rec: rec})
		}
		if err := msgs.Error(); err != nil {
			q.logger.WarnContext(ctx, "DLQ fetch completed with error", logging.Error(err))
		}
		if done || got == 0 {
			return nil
		}
		remaining -= uint64(got)
	}
	return nil
}

// List returns up to limit entries, oldest first. A limit of 0 returns all.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	var records []FailedRecord
	err := q.scan(ctx, func(s storedRecord) bool {
		records = append(records, s.rec)
		return limit <= 0 || len(records) < limit
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes the message carrying the given entry id.
func (q *JetStreamQueue) Delete(ctx context.Context, id string) error {
	var seq uint64
	err := q.scan(ctx, func(s storedRecord) bool {
		if s.rec.ID == id && s.seq != 0 {
			seq = s.seq
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if seq == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := q.stream.DeleteMsg(ctx, seq); err != nil {
		return fmt.Errorf("delete dlq message %d: %w", seq, err)
	}
	return nil
}

// Purge removes all messages from the DLQ stream.
func (q *JetStreamQueue) Purge(ctx context.Context) error {
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	q.logger.InfoContext(ctx, "DLQ: purged all messages from stream")
	return nil
}

// Stats returns DLQ metrics from JetStream.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]interface{} {
	info, err := q.stream.Info(ctx)
	if err != nil {
		return map[string]interface{}{
			"enabled":       true,
			"backend":       "jetstream",
			"written_local": atomic.LoadUint64(&q.written),
			"connected":     q.conn.Connected(),
			"error":         err.Error(),
		}
	}

	return map[string]interface{}{
		"enabled":        true,
		"backend":        "jetstream",
		"written_local":  atomic.LoadUint64(&q.written),
		"connected":      q.conn.Connected(),
		"total_messages": info.State.Msgs,
		"total_bytes":    info.State.Bytes,
		"first_seq":      info.State.FirstSeq,
		"last_seq":       info.State.LastSeq,
	}
}

// Close closes the NATS connection.
func (q *JetStreamQueue) Close() error {
	return q.conn.Close()
}

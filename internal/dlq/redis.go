package dlq

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/ttl-archiver/internal/logging"
)

// DefaultRedisKey is the list that holds DLQ entries.
const DefaultRedisKey = "ttl-archiver:dlq"

// RedisQueue appends failed records to a Redis list. Safe to share across function instances.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *logging.Logger
}

// NewRedisQueue connects to redisURL and verifies the connection.
func NewRedisQueue(ctx context.Context, redisURL, key string, logger *logging.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisQueueWithClient(client, key, logger), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client *redis.Client, key string, logger *logging.Logger) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisQueue{client: client, key: key, logger: logger}
}

// Write appends rec to the list.
func (q *RedisQueue) Write(ctx context.Context, rec FailedRecord) error {
	prepare(&rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push dlq entry: %w", err)
	}

	q.logger.InfoContext(ctx, "DLQ: pushed failed record",
		logging.Reason(rec.Reason),
		logging.ItemID(rec.ItemID),
	)
	return nil
}

// List returns up to limit entries, oldest first. A limit of 0 returns everything.
func (q *RedisQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	raw, err := q.rangeRaw(ctx, limit)
	if err != nil {
		return nil, err
	}

	records := make([]FailedRecord, 0, len(raw))
	for _, entry := range raw {
		var rec FailedRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			q.logger.ErrorContext(ctx, "Failed to parse DLQ entry", logging.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes the entry with the given id.
func (q *RedisQueue) Delete(ctx context.Context, id string) error {
	raw, err := q.rangeRaw(ctx, 0)
	if err != nil {
		return err
	}

	for _, entry := range raw {
		var rec FailedRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil || rec.ID != id {
			continue
		}
		if err := q.client.LRem(ctx, q.key, 1, entry).Err(); err != nil {
			return fmt.Errorf("delete dlq entry: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Purge drops the whole list.
func (q *RedisQueue) Purge(ctx context.Context) error {
	if err := q.client.Del(ctx, q.key).Err(); err != nil {
		return fmt.Errorf("purge dlq: %w", err)
	}
	q.logger.InfoContext(ctx, "DLQ: purged list", "key", q.key)
	return nil
}

// Stats returns DLQ metrics.
func (q *RedisQueue) Stats(ctx context.Context) map[string]interface{} {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return map[string]interface{}{
			"enabled": true,
			"backend": "redis",
			"error":   err.Error(),
		}
	}
	return map[string]interface{}{
		"enabled": true,
		"backend": "redis",
		"key":     q.key,
		"pending": n,
	}
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) rangeRaw(ctx context.Context, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := q.client.LRange(ctx, q.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read dlq list: %w", err)
	}
	return raw, nil
}

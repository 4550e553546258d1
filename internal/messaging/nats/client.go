// Package nats holds the archiver's JetStream connection.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/ttl-archiver/internal/logging"
)

// DLQSubjects is the subject space dead-lettered records are published under.
const DLQSubjects = "ttlarchiver.dlq.>"

// Options configures the connection. A function instance lives for minutes, so
// reconnects are bounded.
type Options struct {
	URL           string
	Name          string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultOptions returns connection options for url.
func DefaultOptions(url string) Options {
	if url == "" {
		url = nats.DefaultURL
	}
	return Options{
		URL:           url,
		Name:          "ttl-archiver",
		MaxReconnects: 5,
		ReconnectWait: time.Second,
		Timeout:       5 * time.Second,
	}
}

// DLQStreamConfig describes the stream backing the dead letter queue.
func DLQStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      "TTL_ARCHIVER_DLQ",
		Subjects:  []string{DLQSubjects},
		MaxAge:    14 * 24 * time.Hour,
		MaxBytes:  512 << 20,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
}

// Conn is a NATS connection paired with its JetStream context.
type Conn struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logging.Logger
}

// Connect dials the server and opens JetStream.
func Connect(opts Options, logger *logging.Logger) (*Conn, error) {
	if logger == nil {
		logger = logging.Default()
	}

	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.Timeout(opts.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("DLQ connection lost", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("DLQ connection restored", "url", nc.ConnectedUrlRedacted())
		}),
	}
	if opts.Token != "" {
		natsOpts = append(natsOpts, nats.Token(opts.Token))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	return &Conn{nc: nc, js: js, logger: logger}, nil
}

// EnsureStream creates the stream or brings an existing one up to cfg.
func (c *Conn) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	s, err := c.js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return s, nil
}

// Publish sends data and waits for the stream to store it.
func (c *Conn) Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}

func (c *Conn) Connected() bool {
	return c.nc.IsConnected()
}

// Close flushes pending publishes and closes the connection.
func (c *Conn) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	return c.nc.Drain()
}

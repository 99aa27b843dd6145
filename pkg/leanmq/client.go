package leanmq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the single gateway to the stream backend. All higher components
// funnel backend access through it so connection handling, retry, and
// teardown live in one place.
type Client struct {
	rdb    *redis.Client
	config Config
	logger *slog.Logger
	closed atomic.Bool
}

// NewClient creates a connected Client from the configuration.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		DB:          cfg.Redis.DB,
		Password:    cfg.Redis.Password,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: time.Duration(cfg.Redis.ConnectionTimeoutMs) * time.Millisecond,
	}
	if cfg.Redis.UseTLS {
		opts.TLSConfig = &tls.Config{
			ServerName: cfg.Redis.Host, // SNI for managed Redis offerings
		}
	}

	return &Client{
		rdb:    redis.NewClient(opts),
		config: cfg,
		logger: slog.Default(),
	}, nil
}

// NewClientWithRedis wraps an existing go-redis client. The caller keeps
// ownership of connection options; Close still closes the underlying client.
func NewClientWithRedis(rdb *redis.Client, cfg Config) *Client {
	return &Client{
		rdb:    rdb,
		config: cfg.WithDefaults(),
		logger: slog.Default(),
	}
}

// Redis exposes the underlying go-redis client for pipelines and direct
// stream calls.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Ping verifies backend liveness, with the usual retry envelope.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close releases pool resources. Further use fails with ErrClientClosed.
// Safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.rdb.Close()
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// do runs op, retrying connection-class failures with exponential backoff.
// Logic errors (bad arguments, missing keys) surface immediately. After
// exhausting retries the last error is wrapped in ErrConnection.
func (c *Client) do(ctx context.Context, op func(ctx context.Context) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	backoff := BackoffConfig{
		BaseDelayMs: c.config.Retry.RetryIntervalMs,
		MaxDelayMs:  c.config.Retry.MaxDelayMs,
		Jitter:      c.config.Retry.Jitter,
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil || !isConnError(err) {
			return err
		}
		if attempt >= c.config.Retry.MaxRetries {
			break
		}

		delay := time.Duration(ComputeDelay(attempt+1, backoff)) * time.Millisecond
		c.logger.Warn("backend call failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.config.Retry.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
		case <-time.After(delay):
		}
		if c.closed.Load() {
			return ErrClientClosed
		}
	}

	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// isConnError reports whether err is transient in character: the backend was
// unreachable, rather than rejecting a well-formed request.
func isConnError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

package redisclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrCacheMiss is returned by Get when the key does not exist
	ErrCacheMiss = errors.New("cache miss")
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32 // 0: closed, 1: open, 2: half-open
}

// New constructs a Client with sensible defaults & retry logic
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.New("invalid REDIS_URL: " + err.Error())
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Seconds()

	metrics.RedisOperationDuration.WithLabelValues(operation, getStatus(err)).Observe(duration)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}

	return err
}

// getStatus returns "success" or "error" for metrics
func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// checkCircuitBreaker checks if circuit breaker should be opened/closed
func (c *Client) checkCircuitBreaker(err error) {
	if err != nil {
		atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())

		// Open circuit breaker after 5 consecutive failures
		if atomic.LoadInt64(&c.failureCount) >= 5 {
			atomic.CompareAndSwapInt32(&c.state, 0, 1) // closed -> open
			logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"))
		}
	} else {
		// Reset failure count on success
		atomic.StoreInt64(&c.failureCount, 0)
		atomic.CompareAndSwapInt32(&c.state, 1, 2) // open -> half-open
	}
}

// Ping verifies the connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
		err := c.rdb.Ping(ctx).Err()
		c.checkCircuitBreaker(err)
		return err
	})
}

// Get fetches a string value; returns ErrCacheMiss when the key is absent
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.withMetrics("get", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		v, err := c.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrCacheMiss
		}
		c.checkCircuitBreaker(err)
		value = v
		return err
	})
	return value, err
}

// Set stores a string value with a TTL, retrying transient failures
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.withMetrics("set", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		op := func() error {
			// 100ms timeout per attempt
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := c.rdb.Set(ctx, key, value, ttl).Err()
			c.checkCircuitBreaker(err)
			return err
		}
		// exponential backoff: max 3 retries
		return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	})
}

// Del removes keys, retrying transient failures
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.withMetrics("del", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := c.rdb.Del(ctx, keys...).Err()
			c.checkCircuitBreaker(err)
			return err
		}
		return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Client returns the underlying Redis client for direct access
func (c *Client) Client() *redis.Client {
	return c.rdb
}

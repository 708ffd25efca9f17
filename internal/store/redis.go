package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/i474232898/temperature-display/internal/weather"
)

// RedisOptions configures the shared tier.
type RedisOptions struct {
	// Prefix is prepended to every key; defaults to "weather:".
	Prefix string
	// Retention is how long an entry survives in Redis, stale or not.
	Retention time.Duration
	// Timeout bounds each Redis call.
	Timeout time.Duration
}

// RedisStore is the shared cache tier. Calls go through a circuit breaker so
// an unreachable Redis fails fast instead of adding latency to every query.
type RedisStore struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	circuit *gobreaker.CircuitBreaker
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisStore(client redis.Cmdable, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "weather:"
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 150 * time.Millisecond
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &RedisStore{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.Retention,
		timeout: opts.Timeout,
		circuit: cb,
	}
}

func (s *RedisStore) redisKey(key weather.Key) string {
	return s.prefix + key.String()
}

// Get returns the shared entry for key. A missing key is (Entry{}, false, nil).
func (s *RedisStore) Get(ctx context.Context, key weather.Key) (weather.Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.circuit.Execute(func() (interface{}, error) {
		b, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return weather.Entry{}, false, err
	}
	if result == nil {
		return weather.Entry{}, false, nil
	}

	var e weather.Entry
	if err := json.Unmarshal(result.([]byte), &e); err != nil {
		return weather.Entry{}, false, fmt.Errorf("decode shared entry %s: %w", key, err)
	}
	return e, true, nil
}

// Set writes e under key. The Redis expiry is the retention window, never
// shorter than the entry's own freshness.
func (s *RedisStore) Set(ctx context.Context, key weather.Key, e weather.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	expiry := s.ttl
	if fresh := time.Until(e.ExpiresAt); fresh > expiry {
		expiry = fresh
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.circuit.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, s.redisKey(key), b, expiry).Err()
	})
	return err
}

// Ping checks connectivity, bypassing the circuit breaker.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Name() string { return "redis" }

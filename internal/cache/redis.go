package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Client wraps a Redis connection. A Client built without a URL, or one that failed to connect,
// is disabled: writes are no-ops and reads report redis.Nil.
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New sets up the Redis connection if redisURL is provided.
func New(redisURL string) *Client {
	if redisURL == "" {
		logrus.Info("Redis URL not provided, cache disabled")
		return &Client{}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logrus.WithError(err).Warn("failed to parse Redis URL, cache disabled")
		return &Client{}
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("failed to connect to Redis, cache disabled")
		rdb.Close()
		return &Client{}
	}

	logrus.WithField("addr", opt.Addr).Info("Redis cache initialized")
	return &Client{rdb: rdb, enabled: true}
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, enabled: rdb != nil}
}

// Enabled reports whether a Redis connection is available.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.Enabled() {
		return c.rdb.Close()
	}
	return nil
}

// Set stores a value as JSON with expiration. Zero expiration keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, data, expiration).Err()
}

// Get decodes the JSON value stored under key into dest.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Enabled() {
		return redis.Nil
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}

	return c.rdb.Del(ctx, key).Err()
}

// Keys returns all keys matching pattern using SCAN.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// SetHash writes fields into a hash and refreshes its expiration in one round trip.
func (c *Client) SetHash(ctx context.Context, key string, fields map[string]interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if expiration > 0 {
		pipe.Expire(ctx, key, expiration)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetHash returns all fields of a hash.
func (c *Client) GetHash(ctx context.Context, key string) (map[string]string, error) {
	if !c.Enabled() {
		return nil, redis.Nil
	}
	return c.rdb.HGetAll(ctx, key).Result()
}

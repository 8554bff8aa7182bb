package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = time.Hour

const keyPrefix = "cache:exact:"

// Key identifies a completion. Requests that differ in any field never share
// an entry.
type Key struct {
	Provider  string
	Model     string
	Prompt    string
	MaxTokens int
}

func (k Key) hash() string {
	h := sha256.New()
	for _, part := range []string{k.Provider, k.Model, strconv.Itoa(k.MaxTokens), k.Prompt} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Entry is a stored completion.
type Entry struct {
	Text       string    `json:"text"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	TokensUsed int64     `json:"tokens_used"`
	StoredAt   time.Time `json:"stored_at"`
}

// Redis is an exact-match completion cache stored in Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis server at url and verifies it responds.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisFromClient(client, ttl), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get returns the entry for k, or ErrMiss.
func (c *Redis) Get(ctx context.Context, k Key) (*Entry, error) {
	val, err := c.client.Get(ctx, k.hash()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}

// Set stores e under k for the cache TTL.
func (c *Redis) Set(ctx context.Context, k Key, e *Entry) error {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, k.hash(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"nyaymitra/client/internal/remote"
)

// DefaultCacheTTL bounds how long a cached result set is served.
const DefaultCacheTTL = 10 * time.Minute

type cachedResults struct {
	Query    string             `json:"query"`
	Cards    []remote.RightCard `json:"cards"`
	StoredAt time.Time          `json:"stored_at"`
}

// RedisCache implements Cache on Redis with a per-entry TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		client: client,
		prefix: "search:",
		ttl:    ttl,
	}
}

// key folds case and whitespace so "Bail " and "bail" share an entry.
func (c *RedisCache) key(query string) string {
	return c.prefix + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Get returns the cached cards for query; ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, query string) ([]remote.RightCard, bool, error) {
	raw, err := c.client.Get(ctx, c.key(query)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup cached results: %w", err)
	}

	var entry cachedResults
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached results: %w", err)
	}
	if entry.Cards == nil {
		entry.Cards = []remote.RightCard{}
	}
	return entry.Cards, true, nil
}

// Put stores cards for query.
func (c *RedisCache) Put(ctx context.Context, query string, cards []remote.RightCard) error {
	data, err := json.Marshal(cachedResults{Query: query, Cards: cards, StoredAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := c.client.Set(ctx, c.key(query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

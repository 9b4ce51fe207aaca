package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notesearch/note-search/internal/pkg/logger"
)

const (
	entryKeyPrefix = "search:cache:"
	userSetPrefix  = "search:cache:user:"

	bookkeepingTimeout = 2 * time.Second
)

// RedisCache stores entries in Redis with a server-side TTL. The embedded
// ExpiresAt is still checked on read so a clock-skewed or persisted entry
// can never be served stale.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping %s: %w", addr, err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}, nil
}

// Get fetches an entry. Hit bookkeeping is written back asynchronously and
// best effort; a bookkeeping failure never affects the returned entry.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := c.client.Get(ctx, entryKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache: get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry, treat as a miss and let it age out.
		c.log.WithError(err).Warn("dropping undecodable cache entry", "key", key)
		return nil, false, nil
	}
	if entry.Expired(c.now()) {
		return nil, false, nil
	}

	entry.HitCount++
	entry.LastHitAt = c.now()
	go c.writeBack(entry)

	return &entry, true, nil
}

func (c *RedisCache) writeBack(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()

	remaining := time.Until(entry.ExpiresAt)
	if remaining <= 0 {
		return
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, entryKeyPrefix+entry.Key, data, remaining).Err(); err != nil {
		c.log.WithError(err).Debug("cache hit bookkeeping failed", "key", entry.Key)
	}
}

// Put stores the entry under the configured TTL and tracks it in the
// owner's key set for invalidation.
func (c *RedisCache) Put(ctx context.Context, entry *Entry) error {
	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = c.now()
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = stored.CreatedAt.Add(c.ttl)
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("redis cache: marshal: %w", err)
	}

	ttl := time.Until(stored.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, entryKeyPrefix+stored.Key, data, ttl)
	pipe.SAdd(ctx, userSetPrefix+stored.UserID, stored.Key)
	pipe.Expire(ctx, userSetPrefix+stored.UserID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache: put: %w", err)
	}
	return nil
}

// InvalidateUser deletes every cached response belonging to userID.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) error {
	setKey := userSetPrefix + userID
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis cache: invalidate: %w", err)
	}

	if len(keys) > 0 {
		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = entryKeyPrefix + k
		}
		if err := c.client.Del(ctx, full...).Err(); err != nil {
			return fmt.Errorf("redis cache: invalidate: %w", err)
		}
	}
	if err := c.client.Del(ctx, setKey).Err(); err != nil {
		return fmt.Errorf("redis cache: invalidate: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

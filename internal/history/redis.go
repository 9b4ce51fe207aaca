package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/pkg/logger"
)

const historyKeyPrefix = "search:history:"

// RedisStore keeps each user's history as a Redis hash keyed by the
// normalized query, so the upsert is a single HSET.
type RedisStore struct {
	client *redis.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("history store: ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, log: log, now: time.Now}, nil
}

func (s *RedisStore) key(userID string) string {
	return historyKeyPrefix + userID
}

func (s *RedisStore) Record(ctx context.Context, userID, query, queryType string, filters *content.Filters, resultCount int) (*Entry, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, nil
	}

	var existing *Entry
	data, err := s.client.HGet(ctx, s.key(userID), normalized).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("history store: record: %w", err)
	default:
		var e Entry
		if uerr := json.Unmarshal(data, &e); uerr == nil {
			existing = &e
		}
	}

	entry := upsert(existing, userID, query, queryType, filters, resultCount, s.now())
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("history store: record: %w", err)
	}
	if err := s.client.HSet(ctx, s.key(userID), normalized, payload).Err(); err != nil {
		return nil, fmt.Errorf("history store: record: %w", err)
	}

	s.trim(ctx, userID)
	return entry, nil
}

// trim keeps the hash under the per-user cap. Best effort: a failed trim
// only delays the next one.
func (s *RedisStore) trim(ctx context.Context, userID string) {
	n, err := s.client.HLen(ctx, s.key(userID)).Result()
	if err != nil || n <= MaxEntriesPerUser {
		return
	}

	entries, err := s.load(ctx, userID)
	if err != nil {
		return
	}
	sortByRecency(entries)
	var stale []string
	for _, e := range entries[MaxEntriesPerUser:] {
		stale = append(stale, e.NormalizedQuery)
	}
	if len(stale) > 0 {
		if err := s.client.HDel(ctx, s.key(userID), stale...).Err(); err != nil {
			s.log.WithError(err).Debug("history trim failed", "user_id", userID)
		}
	}
}

func (s *RedisStore) load(ctx context.Context, userID string) ([]Entry, error) {
	raw, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("history store: load: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for field, data := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			s.log.WithError(err).Warn("skipping undecodable history entry", "field", field)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) List(ctx context.Context, userID string, q ListQuery) ([]Entry, int, error) {
	entries, err := s.load(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	paged, total := page(entries, q)
	return paged, total, nil
}

func (s *RedisStore) Suggest(ctx context.Context, userID, prefix string, limit int) ([]Entry, error) {
	entries, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(prefix)
	matched := entries[:0]
	for _, e := range entries {
		if normalized == "" || strings.HasPrefix(e.NormalizedQuery, normalized) {
			matched = append(matched, e)
		}
	}

	sortByUse(matched)
	return clip(matched, limit), nil
}

func (s *RedisStore) Delete(ctx context.Context, userID, entryID string) error {
	entries, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == entryID {
			if err := s.client.HDel(ctx, s.key(userID), e.NormalizedQuery).Err(); err != nil {
				return fmt.Errorf("history store: delete: %w", err)
			}
			return nil
		}
	}
	return nil
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	entries, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, e := range entries {
		if e.LastUsedAt.Before(cutoff) {
			stale = append(stale, e.NormalizedQuery)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.client.HDel(ctx, s.key(userID), stale...).Err(); err != nil {
		return 0, fmt.Errorf("history store: delete older than: %w", err)
	}
	return len(stale), nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("history store: clear: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

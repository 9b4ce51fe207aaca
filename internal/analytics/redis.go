package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notesearch/note-search/internal/pkg/logger"
)

const analyticsKeyPrefix = "search:analytics:"

// RedisStore keeps each user's records in a sorted set scored by the
// record timestamp, so range summaries and purges are single range
// operations.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	log       *logger.Logger
}

// NewRedisStore connects to Redis and verifies the connection. retention
// bounds how far back records are kept; zero disables trimming.
func NewRedisStore(ctx context.Context, addr, password string, db int, retention time.Duration, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("analytics store: ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, retention: retention, log: log}, nil
}

func (s *RedisStore) key(userID string) string {
	return analyticsKeyPrefix + userID
}

func (s *RedisStore) Record(ctx context.Context, rec *Record) error {
	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("analytics store: marshal: %w", err)
	}

	err = s.client.ZAdd(ctx, s.key(stored.UserID), redis.Z{
		Score:  float64(stored.Timestamp.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("analytics store: record: %w", err)
	}

	if s.retention > 0 {
		horizon := time.Now().Add(-s.retention).UnixMilli()
		if err := s.client.ZRemRangeByScore(ctx, s.key(stored.UserID), "-inf",
			strconv.FormatInt(horizon, 10)).Err(); err != nil {
			s.log.WithError(err).Debug("analytics retention trim failed", "user_id", stored.UserID)
		}
	}
	return nil
}

func (s *RedisStore) Summarize(ctx context.Context, userID string, from, to time.Time, mode string, topN int) (*Summary, error) {
	min, max := "-inf", "+inf"
	if !from.IsZero() {
		min = strconv.FormatInt(from.UnixMilli(), 10)
	}
	if !to.IsZero() {
		// Half-open upper bound.
		max = "(" + strconv.FormatInt(to.UnixMilli(), 10)
	}

	raw, err := s.client.ZRangeByScore(ctx, s.key(userID), &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("analytics store: summarize: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, data := range raw {
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.log.WithError(err).Warn("skipping undecodable analytics record", "user_id", userID)
			continue
		}
		records = append(records, r)
	}
	return summarize(records, mode, topN), nil
}

func (s *RedisStore) Purge(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, s.key(userID), "-inf",
		"("+strconv.FormatInt(cutoff.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("analytics store: purge: %w", err)
	}
	return int(removed), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "scraper:cache:"

// RedisStore keeps one key per URL, expiring with the entry's remaining TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore returns a store on client for entries living ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load scans every cached key. Undecodable values are skipped.
func (s *RedisStore) Load(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for start := 0; start < len(keys); start += 500 {
		end := min(start+500, len(keys))
		values, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("read cache values: %w", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var r record
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				slog.Warn("skipping undecodable cache value", slog.String("key", keys[start+i]), slog.Any("error", err))
				continue
			}
			entries = append(entries, Entry{
				URL:       strings.TrimPrefix(keys[start+i], redisKeyPrefix),
				Content:   r.Content,
				FetchedAt: fromUnixSeconds(r.Timestamp),
			})
		}
	}
	return entries, nil
}

// Save writes every entry with SETEX in one pipeline.
func (s *RedisStore) Save(ctx context.Context, entries []Entry) error {
	now := s.now()
	pipe := s.client.Pipeline()
	queued := 0
	for _, e := range entries {
		remaining := s.ttl - now.Sub(e.FetchedAt)
		if remaining <= 0 {
			continue
		}
		data, err := json.Marshal(record{Content: e.Content, Timestamp: toUnixSeconds(e.FetchedAt)})
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		pipe.SetEx(ctx, redisKeyPrefix+e.URL, data, remaining)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cache entries: %w", err)
	}
	return nil
}

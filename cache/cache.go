// Package cache keeps recently fetched page bodies with a time-to-live and
// persists them to a durable store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrCorrupt marks persisted cache contents that could not be decoded.
var ErrCorrupt = errors.New("cache: corrupt store")

// Entry is one cached response body.
type Entry struct {
	URL       string
	Content   string
	FetchedAt time.Time
}

// Valid reports whether the entry is younger than ttl at now.
func (e Entry) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Store loads and saves the whole cache at once.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Cache is an in-memory, size-bounded view of the persisted cache.
type Cache struct {
	store   Store
	ttl     time.Duration
	entries *lru.Cache[string, Entry]
	now     func() time.Time

	mu sync.Mutex // serializes Save
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New loads store into memory, dropping expired entries. A corrupt store is
// logged and replaced by an empty cache; other load failures are returned.
func New(ctx context.Context, store Store, ttl time.Duration, maxEntries int, opts ...Option) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	entries, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	c := &Cache{
		store:   store,
		ttl:     ttl,
		entries: entries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if store == nil {
		return c, nil
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, fmt.Errorf("load cache: %w", err)
		}
		slog.Warn("discarding corrupt cache", slog.Any("error", err))
		loaded = nil
	}

	now := c.now()
	expired := 0
	for _, e := range loaded {
		if !e.Valid(now, ttl) {
			expired++
			continue
		}
		c.entries.Add(e.URL, e)
	}
	slog.Debug("cache loaded",
		slog.Int("entries", c.entries.Len()),
		slog.Int("expired", expired),
	)
	return c, nil
}

// Get returns the cached body for url when it has not expired.
func (c *Cache) Get(url string) (string, bool) {
	e, ok := c.entries.Get(url)
	if !ok {
		return "", false
	}
	if !e.Valid(c.now(), c.ttl) {
		c.entries.Remove(url)
		return "", false
	}
	return e.Content, true
}

// Put stores content for url, stamped with the current time.
func (c *Cache) Put(url, content string) {
	c.entries.Add(url, Entry{URL: url, Content: content, FetchedAt: c.now()})
}

// Set stores a fully specified entry.
func (c *Cache) Set(e Entry) {
	c.entries.Add(e.URL, e)
}

// Remove drops url from the cache.
func (c *Cache) Remove(url string) {
	c.entries.Remove(url)
}

// Len returns the number of entries held in memory, expired ones included.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Save writes every unexpired entry to the store.
func (c *Cache) Save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := c.entries.Keys()
	snapshot := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e, ok := c.entries.Peek(k)
		if !ok || !e.Valid(now, c.ttl) {
			continue
		}
		snapshot = append(snapshot, e)
	}
	if err := c.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// record is the on-disk shape of one entry: a map keyed by URL of
// {content, timestamp} with timestamp in fractional unix seconds.
type record struct {
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// FileStore persists the cache as a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the whole file. A missing file is an empty cache.
func (s *FileStore) Load(context.Context) ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records map[string]record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	entries := make([]Entry, 0, len(records))
	for url, r := range records {
		entries = append(entries, Entry{
			URL:       url,
			Content:   r.Content,
			FetchedAt: fromUnixSeconds(r.Timestamp),
		})
	}
	return entries, nil
}

// Save rewrites the file with entries, replacing it atomically.
func (s *FileStore) Save(_ context.Context, entries []Entry) error {
	records := make(map[string]record, len(entries))
	for _, e := range entries {
		records[e.URL] = record{Content: e.Content, Timestamp: toUnixSeconds(e.FetchedAt)}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}

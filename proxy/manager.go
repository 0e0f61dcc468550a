// Package proxy rotates outbound proxy paths and evicts the ones that keep
// failing.
package proxy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-market/config"
)

// EvictAfter is the error count at which a path leaves the rotation.
const EvictAfter = 5

// Record tracks the health of one proxy path.
type Record struct {
	URL        string
	ErrorCount int
	ErrorTypes map[string]int
}

// Manager hands out proxy paths round-robin. It disables itself when it has
// no usable path left, after which NextPath always reports "no proxy".
type Manager struct {
	mu      sync.Mutex
	active  []string
	records map[string]*Record
	cursor  int
	enabled bool
}

// NewManager builds a manager over a fixed list of proxy URLs. An empty list
// yields a disabled manager.
func NewManager(proxies []string) *Manager {
	m := &Manager{records: make(map[string]*Record)}
	seen := make(map[string]struct{}, len(proxies))
	for _, p := range proxies {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		m.active = append(m.active, p)
		m.records[p] = &Record{URL: p, ErrorTypes: make(map[string]int)}
	}
	m.enabled = len(m.active) > 0
	return m
}

// FromConfig resolves the configured proxy source. Resolution failures are
// logged and produce a disabled manager; the fetcher then runs without a
// proxy.
func FromConfig(ctx context.Context, enabled bool, cfg config.ProxyConfig, provider Provider) *Manager {
	if !enabled || cfg.Type == "" || cfg.Type == config.ProxyNone {
		return NewManager(nil)
	}
	if provider == nil {
		switch cfg.Type {
		case config.ProxyList:
			provider = StaticProvider(cfg.List)
		case config.ProxyService:
			provider = NewServiceProvider(cfg, nil)
		}
	}
	if provider == nil {
		slog.Warn("unknown proxy type, running without proxies", slog.String("type", cfg.Type))
		return NewManager(nil)
	}

	proxies, err := provider.Proxies(ctx)
	if err != nil {
		slog.Error("resolve proxy list", slog.String("type", cfg.Type), slog.Any("error", err))
		return NewManager(nil)
	}
	m := NewManager(proxies)
	if !m.IsEnabled() {
		slog.Warn("proxy list is empty, running without proxies", slog.String("type", cfg.Type))
	} else {
		slog.Info("proxy rotation enabled", slog.String("type", cfg.Type), slog.Int("proxies", len(proxies)))
	}
	return m
}

// NextPath returns the next proxy in rotation, or false when rotation is off.
func (m *Manager) NextPath() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || len(m.active) == 0 {
		return "", false
	}
	if m.cursor >= len(m.active) {
		m.cursor = 0
	}
	p := m.active[m.cursor]
	m.cursor = (m.cursor + 1) % len(m.active)
	return p, true
}

// ReportError counts a failure against path and evicts it once it reaches
// EvictAfter errors.
func (m *Manager) ReportError(path, kind string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[path]
	if !ok {
		return
	}
	rec.ErrorCount++
	rec.ErrorTypes[kind]++

	if rec.ErrorCount < EvictAfter {
		return
	}
	idx := m.indexLocked(path)
	if idx < 0 {
		return
	}
	m.active = append(m.active[:idx], m.active[idx+1:]...)
	if idx < m.cursor {
		m.cursor--
	}
	if len(m.active) == 0 {
		m.cursor = 0
		m.enabled = false
		slog.Warn("all proxies evicted, continuing without proxy",
			slog.String("last_proxy", path),
			slog.Any("error_types", rec.ErrorTypes),
		)
		return
	}
	if m.cursor >= len(m.active) {
		m.cursor = 0
	}
	slog.Warn("proxy evicted",
		slog.String("proxy", path),
		slog.Int("errors", rec.ErrorCount),
		slog.Int("remaining", len(m.active)),
	)
}

// ReportSuccess decrements the error count of path, floored at zero.
func (m *Manager) ReportSuccess(path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[path]; ok && rec.ErrorCount > 0 {
		rec.ErrorCount--
	}
}

// IsEnabled reports whether requests should go through a proxy.
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Active returns the proxies still in rotation.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.active))
	copy(out, m.active)
	return out
}

// Record returns a copy of the bookkeeping for path.
func (m *Manager) Record(path string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[path]
	if !ok {
		return Record{}, false
	}
	types := make(map[string]int, len(rec.ErrorTypes))
	for k, v := range rec.ErrorTypes {
		types[k] = v
	}
	return Record{URL: rec.URL, ErrorCount: rec.ErrorCount, ErrorTypes: types}, true
}

func (m *Manager) indexLocked(path string) int {
	for i, p := range m.active {
		if p == path {
			return i
		}
	}
	return -1
}

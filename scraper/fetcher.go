package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-market/cache"
	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/aluiziolira/go-scrape-market/delay"
	"github.com/aluiziolira/go-scrape-market/proxy"
)

// RequestOptions tunes a single Fetch call.
type RequestOptions struct {
	// NoCache skips the cache lookup. The response is still stored.
	NoCache bool
	// ForceNew refetches even when a fresh cached body exists.
	ForceNew bool
}

// Fetcher retrieves pages while respecting a per-minute request budget,
// adaptive delays, proxy rotation and the response cache. Calls are
// serialized: one Fetch runs at a time.
type Fetcher struct {
	cfg     *config.Config
	cache   *cache.Cache
	delays  *delay.Controller
	proxies *proxy.Manager
	Metrics *Metrics

	mu         sync.Mutex
	session    *session
	window     requestWindow
	sinceReset int
	stored     int
	lowTraffic atomic.Bool
	requests   atomic.Int64

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	transport http.RoundTripper
	rng       *rand.Rand
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClock replaces the wall clock and the sleep used for every wait.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		f.now = now
		f.sleep = sleep
	}
}

// WithTransport replaces the proxy-aware transport of every session.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.transport = rt
	}
}

// WithRand sets the random source for header selection.
func WithRand(r *rand.Rand) Option {
	return func(f *Fetcher) {
		f.rng = r
	}
}

// WithMetrics shares a metrics bundle instead of creating one.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.Metrics = m
	}
}

// NewFetcher wires the fetcher. c may be nil to disable caching; nil delays
// or proxies are built from cfg.
func NewFetcher(cfg *config.Config, c *cache.Cache, delays *delay.Controller, proxies *proxy.Manager, opts ...Option) *Fetcher {
	if delays == nil {
		delays = delay.New(delay.Settings{
			Min:           cfg.DelayMin,
			Max:           cfg.DelayMax,
			BackoffFactor: cfg.BackoffFactor,
			MaxBackoff:    cfg.MaxBackoff,
			Adaptive:      cfg.UseAdaptiveDelay,
		})
	}
	if proxies == nil {
		proxies = proxy.NewManager(nil)
	}

	f := &Fetcher{
		cfg:     cfg,
		cache:   c,
		delays:  delays,
		proxies: proxies,
		now:     time.Now,
		sleep:   sleepContext,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.Metrics == nil {
		f.Metrics = NewMetrics()
	}
	f.session = newSession(cfg.Timeout, f.transport)
	f.Metrics.SetProxiesActive(len(proxies.Active()))
	return f
}

// Delays exposes the adaptive delay controller.
func (f *Fetcher) Delays() *delay.Controller {
	return f.delays
}

// Proxies exposes the proxy rotation.
func (f *Fetcher) Proxies() *proxy.Manager {
	return f.proxies
}

// Stats is a point-in-time view of the fetcher for health reporting.
type Stats struct {
	Requests      int64
	CacheEntries  int
	CacheTTL      time.Duration
	LowTraffic    bool
	Delay         delay.State
	Backoff       time.Duration
	ErrorsByKind  map[string]int
	ActiveProxies int
}

// Stats does not wait for an in-flight Fetch.
func (f *Fetcher) Stats() Stats {
	s := Stats{
		Requests:      f.requests.Load(),
		LowTraffic:    f.lowTraffic.Load(),
		Delay:         f.delays.State(),
		Backoff:       f.delays.Backoff(),
		ErrorsByKind:  f.delays.ErrorsByKind(),
		ActiveProxies: len(f.proxies.Active()),
	}
	if f.cache != nil {
		s.CacheEntries = f.cache.Len()
		s.CacheTTL = f.cache.TTL()
	}
	return s
}

// Get fetches rawURL with default options.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (string, error) {
	return f.Fetch(ctx, rawURL, RequestOptions{})
}

// Fetch returns the body for rawURL, from cache when fresh, otherwise over
// the network with retries for rate limits, server errors and transport
// failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts RequestOptions) (string, error) {
	if err := validateURL(rawURL); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cache != nil && !opts.NoCache && !opts.ForceNew {
		body, ok := f.cache.Get(rawURL)
		f.Metrics.IncCacheLookup(ok)
		if ok {
			slog.Debug("cache hit", slog.String("url", rawURL))
			f.Metrics.IncRequest("cache_hit")
			return body, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			f.Metrics.IncRetries()
			slog.Debug("retrying request",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr),
			)
		}

		body, err := f.attempt(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Retryable() {
			return "", err
		}
	}
	return "", lastErr
}

// Close flushes the cache to its store.
func (f *Fetcher) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache == nil {
		return nil
	}
	return f.cache.Save(ctx)
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (string, error) {
	lim := f.currentLimits()
	if err := f.waitForSlot(ctx, lim.rpm); err != nil {
		return "", err
	}

	if f.cfg.SessionResetAfter > 0 && f.sinceReset >= f.cfg.SessionResetAfter {
		f.resetSession()
	}

	wait := scaleDuration(f.delays.DelayBeforeRequest(), lim.delayScale)
	f.Metrics.ObserveDelay(wait)
	if err := f.sleep(ctx, wait); err != nil {
		return "", err
	}

	path, proxyURL := f.nextProxy()

	f.window.add(f.now())
	f.sinceReset++
	f.requests.Add(1)

	start := time.Now()
	res := f.session.get(rawURL, randomHeaders(f.rng), proxyURL)
	f.Metrics.ObserveDuration(time.Since(start))

	switch {
	case res.err != nil:
		return "", f.fail(ctx, path, newConnectionError(rawURL, res.err))
	case res.status < 200 || res.status >= 300:
		return "", f.fail(ctx, path, newHTTPError(rawURL, res.status))
	}

	f.delays.ReportSuccess()
	if path != "" {
		f.proxies.ReportSuccess(path)
	}
	f.Metrics.IncRequest("success")
	f.store(ctx, rawURL, res.body)
	return res.body, nil
}

// nextProxy picks the next rotation path. Paths that are not usable proxy
// URLs are reported as invalid_proxy until the manager evicts them; when no
// usable path is left the request goes direct.
func (f *Fetcher) nextProxy() (string, *url.URL) {
	for range len(f.proxies.Active())*proxy.EvictAfter + 1 {
		path, ok := f.proxies.NextPath()
		if !ok {
			return "", nil
		}
		u, err := url.Parse(path)
		if err == nil && u.Scheme != "" && u.Host != "" {
			return path, u
		}
		slog.Warn("invalid proxy", slog.String("proxy", path), slog.Any("error", err))
		f.proxies.ReportError(path, "invalid_proxy")
		f.Metrics.SetProxiesActive(len(f.proxies.Active()))
	}
	return "", nil
}

// fail feeds an error into the delay controller and proxy rotation, taking
// the long pause when the error streak calls for it.
func (f *Fetcher) fail(ctx context.Context, path string, fe *FetchError) error {
	reason := fe.Reason()
	f.Metrics.IncRequest(string(fe.Kind) + "_error")
	f.Metrics.IncError(reason)

	pause := f.delays.ReportError(reason)
	if path != "" {
		f.proxies.ReportError(path, reason)
		f.Metrics.SetProxiesActive(len(f.proxies.Active()))
	}

	slog.Warn("request failed",
		slog.String("url", fe.URL),
		slog.String("category", reason),
		slog.Int("status", fe.Status),
		slog.Int("consecutive_errors", f.delays.State().ConsecutiveErrors),
	)

	if pause {
		f.Metrics.IncLongPause()
		slog.Warn("too many consecutive errors, pausing", slog.Duration("pause", f.cfg.LongPause))
		if err := f.sleep(ctx, f.cfg.LongPause); err != nil {
			return err
		}
	}
	return fe
}

func (f *Fetcher) store(ctx context.Context, rawURL, body string) {
	if f.cache == nil {
		return
	}
	f.cache.Put(rawURL, body)
	f.stored++
	if f.cfg.CacheSaveEvery > 0 && f.stored%f.cfg.CacheSaveEvery == 0 {
		if err := f.cache.Save(ctx); err != nil {
			slog.Warn("cache save failed", slog.Any("error", err))
		}
	}
}

func (f *Fetcher) waitForSlot(ctx context.Context, rpm int) error {
	for {
		wait := f.window.wait(f.now(), rpm)
		if wait <= 0 {
			return nil
		}
		f.Metrics.IncRateLimitWait()
		slog.Info("request budget exhausted, waiting",
			slog.Int("limit", rpm),
			slog.Duration("wait", wait),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (f *Fetcher) currentLimits() limits {
	lim, low := limitsFor(f.now(), f.cfg)
	if f.lowTraffic.Swap(low) != low {
		slog.Info("low traffic window changed",
			slog.Bool("active", low),
			slog.Int("requests_per_minute", lim.rpm),
		)
	}
	return lim
}

func (f *Fetcher) resetSession() {
	slog.Info("resetting http session", slog.Int("requests", f.sinceReset))
	f.session = newSession(f.cfg.Timeout, f.transport)
	f.sinceReset = 0
	f.Metrics.IncSessionReset()
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

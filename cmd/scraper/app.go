package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-market/api"
	"github.com/aluiziolira/go-scrape-market/cache"
	"github.com/aluiziolira/go-scrape-market/proxy"
	"github.com/aluiziolira/go-scrape-market/scheduler"
	"github.com/aluiziolira/go-scrape-market/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// components is the wired fetch layer plus whatever must be released.
type components struct {
	fetcher *scraper.Fetcher
	metrics *scraper.Metrics
	checks  map[string]api.HealthCheck
	closers []func() error
}

func (c *components) Close(ctx context.Context) {
	if c.fetcher != nil {
		if err := c.fetcher.Close(ctx); err != nil {
			slog.Error("save cache failed", slog.Any("error", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			slog.Error("close backend failed", slog.Any("error", err))
		}
	}
}

func (a *app) buildFetcher(ctx context.Context) (*components, error) {
	cfg := a.cfg
	comp := &components{
		metrics: scraper.NewMetrics(),
		checks:  map[string]api.HealthCheck{},
	}

	var store cache.Store
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rs := cache.NewRedisStore(client, cfg.CacheTTL)
		store = rs
		comp.checks["redis"] = rs.Ping
		comp.closers = append(comp.closers, client.Close)
	default:
		store = cache.NewFileStore(cfg.CacheFile)
	}

	c, err := cache.New(ctx, store, cfg.CacheTTL, cfg.CacheMaxEntries)
	if err != nil {
		comp.Close(ctx)
		return nil, err
	}

	proxies := proxy.FromConfig(ctx, cfg.EnableProxy, cfg.Proxy, nil)
	comp.fetcher = scraper.NewFetcher(cfg, c, nil, proxies, scraper.WithMetrics(comp.metrics))

	slog.Debug("fetcher ready",
		slog.String("cache_backend", cfg.CacheBackend),
		slog.Int("cache_entries", c.Len()),
		slog.Int("proxies", len(proxies.Active())),
		slog.Int("max_rpm", cfg.MaxRequestsPerMinute),
	)
	return comp, nil
}

// openScheduler returns the scheduler over the configured store, the
// store's health check (nil for files) and a release func.
func (a *app) openScheduler(ctx context.Context) (*scheduler.Scheduler, api.HealthCheck, func(), error) {
	cfg := a.cfg
	if cfg.TaskBackend == "postgres" {
		ps, err := scheduler.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return scheduler.New(ctx, ps), ps.Ping, ps.Close, nil
	}
	return scheduler.New(ctx, scheduler.NewFileStore(cfg.TasksFile)), nil, func() {}, nil
}

// startMetricsServer serves /metrics on addr until the returned func runs.
func startMetricsServer(addr string, m *scraper.Metrics) func() {
	if addr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

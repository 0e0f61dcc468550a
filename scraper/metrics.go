package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the fetch layer.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	CacheLookupsTotal   *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
	RateLimitWaitsTotal prometheus.Counter
	LongPausesTotal     prometheus.Counter
	SessionResetsTotal  prometheus.Counter
	DelaySeconds        prometheus.Histogram
	ProxiesActive       prometheus.Gauge
	TasksTotal          *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the fetcher, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for fetcher requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	rateLimitWaits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_rate_limit_waits_total",
			Help: "Times a request blocked on the per-minute request window.",
		},
	)
	longPauses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_long_pauses_total",
			Help: "Long pauses taken after consecutive errors.",
		},
	)
	sessionResets := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_session_resets_total",
			Help: "Times the HTTP session was discarded and recreated.",
		},
	)
	delaySeconds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_delay_seconds",
			Help:    "Adaptive delay applied before each request.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
	)
	proxiesActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_proxies_active",
			Help: "Proxies currently in rotation.",
		},
	)
	tasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_tasks_total",
			Help: "Scheduled tasks executed, by kind and final status.",
		},
		[]string{"kind", "status"},
	)

	registry.MustRegister(requests, requestDuration, cacheLookups, retries, errorsTotal,
		rateLimitWaits, longPauses, sessionResets, delaySeconds, proxiesActive, tasks)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		CacheLookupsTotal:   cacheLookups,
		RetriesTotal:        retries,
		ErrorsTotal:         errorsTotal,
		RateLimitWaitsTotal: rateLimitWaits,
		LongPausesTotal:     longPauses,
		SessionResetsTotal:  sessionResets,
		DelaySeconds:        delaySeconds,
		ProxiesActive:       proxiesActive,
		TasksTotal:          tasks,
	}
}

// IncRequest increments the requests counter for an outcome label.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncCacheLookup counts a cache hit or miss.
func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRateLimitWait counts a block on the request window.
func (m *Metrics) IncRateLimitWait() {
	if m == nil {
		return
	}
	m.RateLimitWaitsTotal.Inc()
}

// IncLongPause counts a long pause.
func (m *Metrics) IncLongPause() {
	if m == nil {
		return
	}
	m.LongPausesTotal.Inc()
}

// IncSessionReset counts a session rebuild.
func (m *Metrics) IncSessionReset() {
	if m == nil {
		return
	}
	m.SessionResetsTotal.Inc()
}

// ObserveDelay records an applied pre-request delay.
func (m *Metrics) ObserveDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.DelaySeconds.Observe(d.Seconds())
}

// SetProxiesActive publishes the rotation size.
func (m *Metrics) SetProxiesActive(n int) {
	if m == nil {
		return
	}
	m.ProxiesActive.Set(float64(n))
}

// IncTask counts an executed scheduled task.
func (m *Metrics) IncTask(kind, status string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(kind, status).Inc()
}

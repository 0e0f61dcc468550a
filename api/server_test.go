package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/delay"
	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/scheduler"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

type staticStats scraper.Stats

func (s staticStats) Stats() scraper.Stats { return scraper.Stats(s) }

func newTestServer(t *testing.T, opts ...Option) (*Server, *scheduler.Scheduler) {
	t.Helper()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ids := 0
	sched := scheduler.New(context.Background(), nil,
		scheduler.WithClock(func() time.Time { return now }),
		scheduler.WithIDFunc(func() string {
			ids++
			return "task-" + string(rune('0'+ids))
		}),
	)
	stats := staticStats{
		Requests:     7,
		CacheEntries: 3,
		CacheTTL:     24 * time.Hour,
		Delay:        delay.State{CurrentMin: 2 * time.Second, CurrentMax: 5 * time.Second, ConsecutiveErrors: 2},
		Backoff:      8 * time.Second,
		ErrorsByKind: map[string]int{"server_error": 2},
	}
	return NewServer(":0", sched, stats, scraper.NewMetrics(), opts...), sched
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsFetchStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Fetch == nil {
		t.Fatalf("body = %+v", body)
	}
	if body.Fetch.Requests != 7 || body.Fetch.CacheEntries != 3 || body.Fetch.DelayMaxSeconds != 5 {
		t.Fatalf("fetch stats = %+v", body.Fetch)
	}
	if body.Fetch.CacheTTLSeconds != 86400 || body.Fetch.BackoffSeconds != 8 || body.Fetch.ErrorsByKind["server_error"] != 2 {
		t.Fatalf("fetch stats = %+v", body.Fetch)
	}
}

func TestHealthDegradedOnFailingCheck(t *testing.T) {
	srv, _ := newTestServer(t,
		WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
		WithHealthCheck("postgres", func(context.Context) error { return nil }),
	)

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body healthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Checks["redis"] != "unhealthy" || body.Checks["postgres"] != "healthy" {
		t.Fatalf("checks = %v", body.Checks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.metrics.IncRequest("success")

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `scraper_requests_total{outcome="success"} 1`) {
		t.Fatalf("metrics output missing requests counter:\n%s", rec.Body.String())
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv, sched := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/tasks",
		`{"type":"product_search","params":{"query":"mate","max_pages":2},"recurrence":"daily"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.ScheduledTask
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != "task-1" || created.Recurrence != models.RecurDaily || created.Status != models.StatusPending {
		t.Fatalf("created = %+v", created)
	}
	if created.IntParam("max_pages") != 2 {
		t.Fatalf("params = %v", created.Params)
	}

	rec = do(t, h, http.MethodGet, "/tasks", "")
	var list []models.ScheduledTask
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list = %d %v", rec.Code, list)
	}

	rec = do(t, h, http.MethodGet, "/tasks?status=completed", "")
	list = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Fatalf("status filter returned %d tasks", len(list))
	}

	rec = do(t, h, http.MethodGet, "/tasks/task-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/tasks/task-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if len(sched.List()) != 0 {
		t.Fatalf("task still present after delete")
	}
}

func TestTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	if rec := do(t, h, http.MethodGet, "/tasks/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/tasks/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete status = %d, want 404", rec.Code)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	srv, sched := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"type":`},
		{name: "unknown type", body: `{"type":"crawl"}`},
		{name: "bad recurrence", body: `{"type":"seller_search","recurrence":"hourly"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/tasks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
	if len(sched.List()) != 0 {
		t.Fatalf("invalid requests created tasks")
	}
}

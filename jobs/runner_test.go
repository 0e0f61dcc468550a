package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/aluiziolira/go-scrape-market/scheduler"
	"github.com/aluiziolira/go-scrape-market/scraper"
	"github.com/aluiziolira/go-scrape-market/search"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSearcher struct {
	products []*models.Product
	err      error
	queries  []search.Params
	sellers  []string
}

func (f *fakeSearcher) result(label string) *models.SearchResult {
	return &models.SearchResult{
		Query:     label,
		Products:  f.products,
		Summary:   parser.Analyze(f.products),
		PageCount: 1,
		StartTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeSearcher) Products(_ context.Context, p search.Params) (*models.SearchResult, error) {
	f.queries = append(f.queries, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(p.Query), nil
}

func (f *fakeSearcher) Seller(_ context.Context, seller string, p search.Params) (*models.SearchResult, error) {
	f.sellers = append(f.sellers, seller)
	f.queries = append(f.queries, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(seller), nil
}

func newScheduler(now time.Time) (*scheduler.Scheduler, *time.Time) {
	clock := now
	return scheduler.New(context.Background(), nil, scheduler.WithClock(func() time.Time { return clock })), &clock
}

func TestRunDueExecutesProductSearch(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	sched, _ := newScheduler(start)
	ctx := context.Background()

	id, err := sched.AddTask(ctx, models.TaskProductSearch, map[string]any{
		"query": "mate", "max_pages": float64(2), "min_price": 100, "exact_match": true,
	}, nil, models.RecurNone)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	searcher := &fakeSearcher{products: []*models.Product{
		{Title: "mate a", Price: 300, Link: "a"},
		{Title: "mate b", Price: 100, Link: "b"},
	}}
	metrics := scraper.NewMetrics()
	runner := NewRunner(sched, searcher, time.Minute, WithClock(func() time.Time { return start }), WithMetrics(metrics))

	ran, err := runner.RunDue(ctx)
	if err != nil || ran != 1 {
		t.Fatalf("RunDue() = %d, %v", ran, err)
	}

	got := searcher.queries[0]
	if got.Query != "mate" || got.MaxPages != 2 || got.MinPrice != 100 || !got.ExactMatch {
		t.Fatalf("search params = %+v", got)
	}

	task, _ := sched.Get(id)
	if task.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", task.Status)
	}
	res, ok := task.LastResult.(Result)
	if !ok || res.Products != 2 || res.AveragePrice != 200 || res.Cheapest.Title != "mate b" {
		t.Fatalf("last result = %#v", task.LastResult)
	}
	if got := testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("product_search", "completed")); got != 1 {
		t.Fatalf("tasks metric = %v, want 1", got)
	}

	if ran, _ := runner.RunDue(ctx); ran != 0 {
		t.Fatalf("completed one-shot task ran again")
	}
}

func TestRunDueRecordsFailure(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	sched, _ := newScheduler(start)
	ctx := context.Background()

	id, _ := sched.AddTask(ctx, models.TaskSellerSearch, map[string]any{"seller": "Tienda Mate"}, nil, models.RecurNone)
	searcher := &fakeSearcher{err: errors.New("fetch first page: blocked")}
	runner := NewRunner(sched, searcher, time.Minute, WithClock(func() time.Time { return start }))

	if _, err := runner.RunDue(ctx); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if len(searcher.sellers) != 1 || searcher.sellers[0] != "Tienda Mate" {
		t.Fatalf("sellers = %v", searcher.sellers)
	}
	task, _ := sched.Get(id)
	res, _ := task.LastResult.(Result)
	if task.Status != models.StatusFailed || res.Error == "" {
		t.Fatalf("task = %+v", task)
	}
}

func TestSellerTaskWithoutSellerFails(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	sched, _ := newScheduler(start)
	ctx := context.Background()

	id, _ := sched.AddTask(ctx, models.TaskSellerSearch, nil, nil, models.RecurNone)
	searcher := &fakeSearcher{}
	runner := NewRunner(sched, searcher, time.Minute, WithClock(func() time.Time { return start }))

	if _, err := runner.RunDue(ctx); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if task, _ := sched.Get(id); task.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if len(searcher.sellers) != 0 {
		t.Fatalf("searcher should not be called")
	}
}

func TestRecurringTaskRescheduled(t *testing.T) {
	start := time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)
	sched, clock := newScheduler(start)
	ctx := context.Background()

	id, _ := sched.AddTask(ctx, models.TaskProductSearch, map[string]any{"query": "termo"}, nil, models.RecurMonthly)
	runner := NewRunner(sched, &fakeSearcher{}, time.Minute, WithClock(func() time.Time { return *clock }))

	if ran, _ := runner.RunDue(ctx); ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
	task, _ := sched.Get(id)
	want := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	if task.Status != models.StatusPending || !task.NextRun.Equal(want) {
		t.Fatalf("task = status %s next %v, want pending %s", task.Status, task.NextRun, want)
	}

	if ran, _ := runner.RunDue(ctx); ran != 0 {
		t.Fatalf("task should wait for its next run")
	}
	*clock = want
	if ran, _ := runner.RunDue(ctx); ran != 1 {
		t.Fatalf("task should run again at its next run")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sched, _ := newScheduler(time.Now())
	runner := NewRunner(sched, &fakeSearcher{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
}

func TestFileExporterWritesProducts(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	sched, _ := newScheduler(start)
	ctx := context.Background()
	dir := t.TempDir()

	id, _ := sched.AddTask(ctx, models.TaskProductSearch, map[string]any{"query": "mate"}, nil, models.RecurNone)
	searcher := &fakeSearcher{products: []*models.Product{{Title: "mate a", Price: 300, Link: "a"}}}
	runner := NewRunner(sched, searcher, time.Minute,
		WithClock(func() time.Time { return start }),
		WithExporter(FileExporter{Dir: dir, Format: "csv"}),
	)

	if _, err := runner.RunDue(ctx); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	task, _ := sched.Get(id)
	res := task.LastResult.(Result)
	if res.Export != filepath.Join(dir, id+"-20240301-100000.csv") {
		t.Fatalf("export path = %q", res.Export)
	}
	if info, err := os.Stat(res.Export); err != nil || info.Size() == 0 {
		t.Fatalf("export missing: %v", err)
	}
}

// Package jobs executes scheduled tasks when they fall due.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/scraper"
	"github.com/aluiziolira/go-scrape-market/search"
)

// Searcher runs the searches a task can describe.
type Searcher interface {
	Products(ctx context.Context, p search.Params) (*models.SearchResult, error)
	Seller(ctx context.Context, seller string, p search.Params) (*models.SearchResult, error)
}

// Scheduler is the task store the runner polls.
type Scheduler interface {
	PendingDue(now time.Time) []models.ScheduledTask
	MarkRunning(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, result any) error
}

// Exporter receives the products of each successful run.
type Exporter interface {
	Export(ctx context.Context, task models.ScheduledTask, result *models.SearchResult) (string, error)
}

// Result is stored as a task's last_result.
type Result struct {
	Products      int             `json:"products" yaml:"products"`
	Pages         int             `json:"pages" yaml:"pages"`
	Skipped       int             `json:"skipped" yaml:"skipped"`
	Failed        int             `json:"failed" yaml:"failed"`
	AveragePrice  int             `json:"average_price" yaml:"average_price"`
	Cheapest      *models.Product `json:"cheapest,omitempty" yaml:"cheapest,omitempty"`
	MostExpensive *models.Product `json:"most_expensive,omitempty" yaml:"most_expensive,omitempty"`
	Export        string          `json:"export,omitempty" yaml:"export,omitempty"`
	Error         string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Runner polls the scheduler and runs due tasks one at a time.
type Runner struct {
	scheduler Scheduler
	searcher  Searcher
	interval  time.Duration
	exporter  Exporter
	metrics   *scraper.Metrics
	now       func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithExporter writes each run's products through e.
func WithExporter(e Exporter) Option {
	return func(r *Runner) {
		r.exporter = e
	}
}

// WithMetrics counts executed tasks.
func WithMetrics(m *scraper.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner builds a runner polling every interval.
func NewRunner(s Scheduler, searcher Searcher, interval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		scheduler: s,
		searcher:  searcher,
		interval:  interval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.interval
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("task runner started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunDue(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			slog.Error("task poll failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			slog.Info("task runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunDue runs every task due now and returns how many ran.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	due := r.scheduler.PendingDue(r.now())
	ran := 0
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		r.runTask(ctx, task)
		ran++
	}
	return ran, nil
}

func (r *Runner) runTask(ctx context.Context, task models.ScheduledTask) {
	logger := slog.With(slog.String("task", task.ID), slog.String("type", string(task.Type)))
	if err := r.scheduler.MarkRunning(ctx, task.ID); err != nil {
		logger.Warn("task vanished before running", slog.Any("error", err))
		return
	}
	logger.Info("running task")

	status := models.StatusCompleted
	res, err := r.execute(ctx, task)
	if err != nil {
		status = models.StatusFailed
		res.Error = err.Error()
		logger.Error("task failed", slog.Any("error", err))
	} else {
		logger.Info("task completed", slog.Int("products", res.Products), slog.Int("pages", res.Pages))
	}

	r.metrics.IncTask(string(task.Type), string(status))
	// The run outcome is recorded even when ctx was cancelled mid-run.
	if err := r.scheduler.UpdateStatus(context.WithoutCancel(ctx), task.ID, status, res); err != nil {
		logger.Error("record task status failed", slog.Any("error", err))
	}
}

func (r *Runner) execute(ctx context.Context, task models.ScheduledTask) (Result, error) {
	params := search.Params{
		Query:      task.StringParam("query"),
		ExactMatch: task.BoolParam("exact_match"),
		MaxPages:   task.IntParam("max_pages"),
		MinPrice:   task.IntParam("min_price"),
		MinSales:   task.IntParam("min_sales"),
		Seller:     task.StringParam("seller_filter"),
	}

	var (
		out *models.SearchResult
		err error
	)
	switch task.Type {
	case models.TaskProductSearch:
		out, err = r.searcher.Products(ctx, params)
	case models.TaskSellerSearch:
		seller := task.StringParam("seller")
		if seller == "" {
			return Result{}, errors.New("seller_search task without seller param")
		}
		out, err = r.searcher.Seller(ctx, seller, params)
	default:
		return Result{}, fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		return summarize(out), err
	}

	res := summarize(out)
	if r.exporter != nil && len(out.Products) > 0 {
		path, err := r.exporter.Export(ctx, task, out)
		if err != nil {
			return res, fmt.Errorf("export results: %w", err)
		}
		res.Export = path
	}
	return res, nil
}

func summarize(out *models.SearchResult) Result {
	if out == nil {
		return Result{}
	}
	return Result{
		Products:      len(out.Products),
		Pages:         out.PageCount,
		Skipped:       out.Skipped,
		Failed:        out.Failed,
		AveragePrice:  out.Summary.AveragePrice,
		Cheapest:      out.Summary.Cheapest,
		MostExpensive: out.Summary.MostExpensive,
	}
}

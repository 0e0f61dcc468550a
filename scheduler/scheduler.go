// Package scheduler stores deferred and recurring search tasks and answers
// which of them are due. It never runs a task itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/google/uuid"
)

// ErrTaskNotFound is returned for unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// Store persists the full task list.
type Store interface {
	Load(ctx context.Context) ([]models.ScheduledTask, error)
	Save(ctx context.Context, tasks []models.ScheduledTask) error
}

// Scheduler keeps tasks in memory in insertion order and writes the whole
// list to its store after every mutation.
type Scheduler struct {
	mu    sync.Mutex
	store Store
	tasks []*models.ScheduledTask

	now   func() time.Time
	newID func() string
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithIDFunc replaces uuid generation.
func WithIDFunc(f func() string) Option {
	return func(s *Scheduler) {
		s.newID = f
	}
}

// New loads existing tasks from store. A nil store keeps tasks in memory
// only; a failing store is logged and the scheduler starts empty.
func New(ctx context.Context, store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if store == nil {
		return s
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		slog.Error("load scheduled tasks failed, starting empty", slog.Any("error", err))
		return s
	}
	for i := range loaded {
		t := loaded[i]
		s.tasks = append(s.tasks, &t)
	}
	slog.Debug("scheduled tasks loaded", slog.Int("count", len(s.tasks)))
	return s
}

// AddTask registers a task. next_run is scheduleTime when given, otherwise
// now, so an unscheduled task is due on the next poll.
func (s *Scheduler) AddTask(ctx context.Context, kind models.TaskKind, params map[string]any, scheduleTime *time.Time, recurrence models.Recurrence) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown task type %q", kind)
	}
	recurrence, err := models.ParseRecurrence(string(recurrence))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next := now
	if scheduleTime != nil {
		next = *scheduleTime
	}
	if params == nil {
		params = map[string]any{}
	}

	t := &models.ScheduledTask{
		ID:           s.newID(),
		Type:         kind,
		Params:       maps.Clone(params),
		CreatedAt:    now,
		ScheduleTime: cloneTime(scheduleTime),
		Recurrence:   recurrence,
		Status:       models.StatusPending,
		NextRun:      &next,
	}
	s.tasks = append(s.tasks, t)
	s.persistLocked(ctx)

	slog.Info("task scheduled",
		slog.String("id", t.ID),
		slog.String("type", string(kind)),
		slog.Time("next_run", next),
		slog.String("recurrence", string(recurrence)),
	)
	return t.ID, nil
}

// PendingDue returns pending tasks whose next_run is at or before now,
// ordered by next_run.
func (s *Scheduler) PendingDue(now time.Time) []models.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []models.ScheduledTask
	for _, t := range s.tasks {
		if t.Status != models.StatusPending || t.NextRun == nil || t.NextRun.After(now) {
			continue
		}
		due = append(due, copyTask(t))
	}
	slices.SortStableFunc(due, func(a, b models.ScheduledTask) int {
		return a.NextRun.Compare(*b.NextRun)
	})
	return due
}

// MarkRunning flags a task as in progress.
func (s *Scheduler) MarkRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t.Status = models.StatusRunning
	s.persistLocked(ctx)
	return nil
}

// UpdateStatus records a run outcome. Recurring tasks go back to pending
// with next_run advanced from this run, whatever status was passed.
func (s *Scheduler) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, result any) error {
	if !status.Valid() {
		return fmt.Errorf("unknown task status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	now := s.now()
	t.Status = status
	t.LastRun = &now
	if result != nil {
		t.LastResult = result
	}
	if next, ok := t.Recurrence.Next(now); ok {
		t.NextRun = &next
		t.Status = models.StatusPending
	}
	s.persistLocked(ctx)

	slog.Info("task status updated",
		slog.String("id", id),
		slog.String("reported", string(status)),
		slog.String("status", string(t.Status)),
	)
	return nil
}

// Delete removes a task.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.tasks, func(t *models.ScheduledTask) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	s.persistLocked(ctx)
	return nil
}

// Get returns a copy of the task with id.
func (s *Scheduler) Get(id string) (models.ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(id)
	if t == nil {
		return models.ScheduledTask{}, false
	}
	return copyTask(t), true
}

// List returns every task in insertion order.
func (s *Scheduler) List() []models.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, copyTask(t))
	}
	return out
}

func (s *Scheduler) findLocked(id string) *models.ScheduledTask {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// persistLocked saves the list. Failures leave the in-memory state as the
// source of truth for the rest of the process.
func (s *Scheduler) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	snapshot := make([]models.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		snapshot = append(snapshot, *t)
	}
	if err := s.store.Save(ctx, snapshot); err != nil {
		slog.Error("persist scheduled tasks failed", slog.Any("error", err))
	}
}

func copyTask(t *models.ScheduledTask) models.ScheduledTask {
	out := *t
	out.Params = maps.Clone(t.Params)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

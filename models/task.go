package models

import (
	"fmt"
	"time"
)

// TaskKind selects what a scheduled task runs.
type TaskKind string

const (
	TaskProductSearch TaskKind = "product_search"
	TaskSellerSearch  TaskKind = "seller_search"
)

// Valid reports whether k is a known kind.
func (k TaskKind) Valid() bool {
	return k == TaskProductSearch || k == TaskSellerSearch
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Recurrence is how often a task repeats. The zero value means once.
type Recurrence string

const (
	RecurNone    Recurrence = ""
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

// ParseRecurrence accepts "", "none" and the named periods.
func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(s) {
	case RecurNone, "none":
		return RecurNone, nil
	case RecurDaily, RecurWeekly, RecurMonthly:
		return Recurrence(s), nil
	}
	return RecurNone, fmt.Errorf("unknown recurrence %q", s)
}

// Next returns the run after t. Monthly keeps the day of month, clamped to
// the last day of the target month; December rolls into January.
func (r Recurrence) Next(t time.Time) (time.Time, bool) {
	switch r {
	case RecurDaily:
		return t.AddDate(0, 0, 1), true
	case RecurWeekly:
		return t.AddDate(0, 0, 7), true
	case RecurMonthly:
		year, month := t.Year(), t.Month()+1
		if month > time.December {
			month = time.January
			year++
		}
		day := min(t.Day(), daysIn(year, month))
		return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()), true
	}
	return time.Time{}, false
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ScheduledTask is a deferred or recurring search.
type ScheduledTask struct {
	ID           string         `json:"id" yaml:"id"`
	Type         TaskKind       `json:"type" yaml:"type"`
	Params       map[string]any `json:"params" yaml:"params"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	ScheduleTime *time.Time     `json:"schedule_time" yaml:"schedule_time"`
	Recurrence   Recurrence     `json:"recurrence" yaml:"recurrence"`
	Status       TaskStatus     `json:"status" yaml:"status"`
	LastRun      *time.Time     `json:"last_run" yaml:"last_run"`
	NextRun      *time.Time     `json:"next_run" yaml:"next_run"`
	LastResult   any            `json:"last_result" yaml:"last_result"`
}

// StringParam returns params[key] as a string.
func (t ScheduledTask) StringParam(key string) string {
	if v, ok := t.Params[key].(string); ok {
		return v
	}
	return ""
}

// IntParam returns params[key] as an int, accepting JSON numbers.
func (t ScheduledTask) IntParam(key string) int {
	switch v := t.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// BoolParam returns params[key] as a bool.
func (t ScheduledTask) BoolParam(key string) bool {
	v, _ := t.Params[key].(bool)
	return v
}

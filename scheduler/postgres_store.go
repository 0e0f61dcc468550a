package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id            TEXT PRIMARY KEY,
	position      INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	params        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	schedule_time TIMESTAMPTZ,
	recurrence    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	last_run      TIMESTAMPTZ,
	next_run      TIMESTAMPTZ,
	last_result   JSONB
)`

// PostgresStore keeps tasks in a scheduled_tasks table, rewritten as a
// whole inside one transaction on every save.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects and ensures the table exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create scheduled_tasks table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// Load returns tasks in their saved order.
func (s *PostgresStore) Load(ctx context.Context) ([]models.ScheduledTask, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, params, created_at, schedule_time, recurrence, status, last_run, next_run, last_result
		 FROM scheduled_tasks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.ScheduledTask
	for rows.Next() {
		var (
			t          models.ScheduledTask
			params     []byte
			lastResult []byte
		)
		if err := rows.Scan(&t.ID, &t.Type, &params, &t.CreatedAt, &t.ScheduleTime,
			&t.Recurrence, &t.Status, &t.LastRun, &t.NextRun, &lastResult); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return nil, fmt.Errorf("decode params of task %s: %w", t.ID, err)
		}
		if len(lastResult) > 0 {
			if err := json.Unmarshal(lastResult, &t.LastResult); err != nil {
				return nil, fmt.Errorf("decode result of task %s: %w", t.ID, err)
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Save replaces the table contents with tasks.
func (s *PostgresStore) Save(ctx context.Context, tasks []models.ScheduledTask) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scheduled_tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}

	if len(tasks) > 0 {
		batch := &pgx.Batch{}
		for i, t := range tasks {
			params, err := json.Marshal(t.Params)
			if err != nil {
				return fmt.Errorf("encode params of task %s: %w", t.ID, err)
			}
			var lastResult *string
			if t.LastResult != nil {
				data, err := json.Marshal(t.LastResult)
				if err != nil {
					return fmt.Errorf("encode result of task %s: %w", t.ID, err)
				}
				str := string(data)
				lastResult = &str
			}
			batch.Queue(`INSERT INTO scheduled_tasks
				(id, position, kind, params, created_at, schedule_time, recurrence, status, last_run, next_run, last_result)
				VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11::jsonb)`,
				t.ID, i, string(t.Type), string(params), t.CreatedAt, nullTime(t.ScheduleTime),
				string(t.Recurrence), string(t.Status), nullTime(t.LastRun), nullTime(t.NextRun), lastResult)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert tasks: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thinhkhuat/scribe/internal/draft"
)

// Schedule is a recurring research task driven by a cron expression.
type Schedule struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CronExpr  string             `json:"cron_expr"`
	Task      draft.ResearchTask `json:"task"`
	Enabled   bool               `json:"enabled"`
	LastRun   *time.Time         `json:"last_run,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// CreateSchedule inserts a schedule and returns its ID.
func (s *Store) CreateSchedule(ctx context.Context, name, cronExpr string, task draft.ResearchTask) (string, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	id := uuid.NewString()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO schedules (id, name, cron_expr, task, enabled, created_at)
		VALUES ($1, $2, $3, $4, TRUE, now())`,
		id, name, cronExpr, raw)
	if err != nil {
		return "", fmt.Errorf("inserting schedule: %w", err)
	}
	return id, nil
}

// ListSchedules returns all enabled schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, cron_expr, task, enabled, last_run, created_at
		FROM schedules WHERE enabled ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var sc Schedule
		var raw []byte
		var last *time.Time
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.CronExpr, &raw, &sc.Enabled, &last, &sc.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &sc.Task); err != nil {
			return nil, fmt.Errorf("decoding schedule %s task: %w", sc.ID, err)
		}
		sc.LastRun = last
		out = append(out, sc)
	}
	return out, rows.Err()
}

// TouchSchedule records that a schedule fired.
func (s *Store) TouchSchedule(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE schedules SET last_run = now() WHERE id = $1`, id)
	return err
}

// DisableSchedule turns a schedule off.
func (s *Store) DisableSchedule(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE schedules SET enabled = FALSE WHERE id = $1`, id)
	return err
}

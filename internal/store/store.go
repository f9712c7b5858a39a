// Package store persists research runs and their sections in Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/thinhkhuat/scribe/internal/draft"
)

type Store struct {
	DB *sql.DB
}

// RunRecord is the persisted view of a run.
type RunRecord struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Language   string     `json:"language,omitempty"`
	Tone       string     `json:"tone,omitempty"`
	Stage      string     `json:"stage"`
	RunError   string     `json:"run_error,omitempty"`
	Document   string     `json:"document,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SectionRecord is the persisted view of one section.
type SectionRecord struct {
	RunID     string    `json:"run_id"`
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
	Citations []string  `json:"citations,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New connects using DATABASE_URL or the POSTGRES_* environment.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// CreateRun inserts the run row at acceptance time.
func (s *Store) CreateRun(ctx context.Context, d *draft.Draft) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, query, language, tone, stage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.RunID, d.Task.Query, d.Task.Language, d.Task.Tone, d.Stage, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun records the run's terminal state and all section results.
func (s *Store) FinishRun(ctx context.Context, d *draft.Draft) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET stage = $2, run_error = $3, document = $4, finished_at = now()
		WHERE id = $1`,
		d.RunID, d.Stage, nullable(d.RunErr), nullable(d.Document))
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	for _, sec := range d.OrderedSections() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_sections (run_id, idx, title, status, content, error, citations, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id, idx) DO UPDATE SET
				status = EXCLUDED.status,
				content = EXCLUDED.content,
				error = EXCLUDED.error,
				citations = EXCLUDED.citations,
				updated_at = EXCLUDED.updated_at`,
			d.RunID, sec.Index, sec.Title, sec.Status, nullable(sec.Content), nullable(sec.Err),
			pq.Array(sec.Citations), sec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upserting section %d: %w", sec.Index, err)
		}
	}
	return tx.Commit()
}

// UpdateStage records an intermediate stage transition.
func (s *Store) UpdateStage(ctx context.Context, runID, stage string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE runs SET stage = $2 WHERE id = $1`, runID, stage)
	return err
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	var rec RunRecord
	var runErr, document sql.NullString
	var finished sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, query, language, tone, stage, run_error, document, created_at, finished_at
		FROM runs WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Query, &rec.Language, &rec.Tone, &rec.Stage, &runErr, &document, &rec.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, err
	}
	rec.RunError = runErr.String
	rec.Document = document.String
	if finished.Valid {
		rec.FinishedAt = &finished.Time
	}
	return rec, true, nil
}

// GetRunSections fetches a run's sections in plan order.
func (s *Store) GetRunSections(ctx context.Context, runID string) ([]SectionRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT run_id, idx, title, status, content, error, citations, updated_at
		FROM run_sections WHERE run_id = $1 ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SectionRecord
	for rows.Next() {
		var rec SectionRecord
		var content, secErr sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Title, &rec.Status, &content, &secErr,
			pq.Array(&rec.Citations), &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Content = content.String
		rec.Error = secErr.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, query, language, tone, stage, run_error, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var runErr sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Language, &rec.Tone, &rec.Stage, &runErr, &rec.CreatedAt, &finished); err != nil {
			return nil, err
		}
		rec.RunError = runErr.String
		if finished.Valid {
			rec.FinishedAt = &finished.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

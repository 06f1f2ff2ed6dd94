package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/romangod6/site-mapper/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS generation_runs (
            id UUID PRIMARY KEY,
            domain VARCHAR(255) NOT NULL,
            root TEXT NOT NULL,
            output TEXT NOT NULL,
            live_check BOOLEAN NOT NULL DEFAULT FALSE,
            status VARCHAR(32) NOT NULL,
            file_count INTEGER NOT NULL DEFAULT 0,
            liveness_skipped INTEGER NOT NULL DEFAULT 0,
            skipped JSONB,
            error TEXT,
            started_at TIMESTAMP WITH TIME ZONE NOT NULL,
            finished_at TIMESTAMP WITH TIME ZONE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_generation_runs_started_at ON generation_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_generation_runs_status ON generation_runs(status)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	query := `
        INSERT INTO generation_runs (id, domain, root, output, live_check, status, file_count,
            liveness_skipped, skipped, error, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12)
    `

	skippedJSON, err := marshalSkipped(run.Skipped)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Domain,
		run.Root,
		run.Output,
		run.LiveCheck,
		string(run.Status),
		run.FileCount,
		run.LivenessSkipped,
		skippedJSON,
		run.Error,
		run.StartedAt,
		pq.NullTime{Time: finishedTime(run), Valid: run.FinishedAt != nil},
	)

	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.GenerationRun) error {
	query := `
        UPDATE generation_runs SET
            status = $1,
            file_count = $2,
            liveness_skipped = $3,
            skipped = $4::jsonb,
            error = $5,
            finished_at = $6
        WHERE id = $7
    `

	skippedJSON, err := marshalSkipped(run.Skipped)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query,
		string(run.Status),
		run.FileCount,
		run.LivenessSkipped,
		skippedJSON,
		run.Error,
		pq.NullTime{Time: finishedTime(run), Valid: run.FinishedAt != nil},
		run.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("generation run %s not found", run.ID)
	}
	return nil
}

const postgresRunColumns = `id, domain, root, output, live_check, status, file_count,
            liveness_skipped, skipped::text, error, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.GenerationRun, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM generation_runs WHERE id = $1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*models.GenerationRun, error) {
	query := `
        SELECT ` + postgresRunColumns + `
        FROM generation_runs
        ORDER BY started_at DESC
        LIMIT $1 OFFSET $2
    `

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.GenerationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*models.GenerationRun, error) {
	query := `
        SELECT ` + postgresRunColumns + `
        FROM generation_runs
        WHERE status = $1
        ORDER BY started_at DESC
        LIMIT 1
    `

	run, err := scanRun(s.db.QueryRowContext(ctx, query, string(models.RunCompleted)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func finishedTime(run *models.GenerationRun) time.Time {
	if run.FinishedAt == nil {
		return time.Time{}
	}
	return *run.FinishedAt
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/romangod6/site-mapper/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS generation_runs (
            id TEXT PRIMARY KEY,
            domain TEXT NOT NULL,
            root TEXT NOT NULL,
            output TEXT NOT NULL,
            live_check BOOLEAN NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            file_count INTEGER NOT NULL DEFAULT 0,
            liveness_skipped INTEGER NOT NULL DEFAULT 0,
            skipped TEXT,
            error TEXT,
            started_at DATETIME NOT NULL,
            finished_at DATETIME
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	query := `
        INSERT INTO generation_runs (id, domain, root, output, live_check, status, file_count,
            liveness_skipped, skipped, error, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	skippedJSON, err := marshalSkipped(run.Skipped)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		run.ID.String(),
		run.Domain,
		run.Root,
		run.Output,
		run.LiveCheck,
		string(run.Status),
		run.FileCount,
		run.LivenessSkipped,
		skippedJSON,
		run.Error,
		run.StartedAt.UTC(),
		utcOrNil(run),
	)

	return err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.GenerationRun) error {
	query := `
        UPDATE generation_runs SET
            status = ?,
            file_count = ?,
            liveness_skipped = ?,
            skipped = ?,
            error = ?,
            finished_at = ?
        WHERE id = ?
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
		utcOrNil(run),
		run.ID.String(),
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

const sqliteRunColumns = `id, domain, root, output, live_check, status, file_count,
            liveness_skipped, skipped, error, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*models.GenerationRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM generation_runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*models.GenerationRun, error) {
	query := `
        SELECT ` + sqliteRunColumns + `
        FROM generation_runs
        ORDER BY started_at DESC
        LIMIT ? OFFSET ?
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

func (s *SQLiteStore) LatestRun(ctx context.Context) (*models.GenerationRun, error) {
	query := `
        SELECT ` + sqliteRunColumns + `
        FROM generation_runs
        WHERE status = ?
        ORDER BY started_at DESC
        LIMIT 1
    `

	run, err := scanRun(s.db.QueryRowContext(ctx, query, string(models.RunCompleted)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.GenerationRun, error) {
	run := &models.GenerationRun{}
	var (
		idStr      string
		status     string
		skipped    sql.NullString
		errText    sql.NullString
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&idStr,
		&run.Domain,
		&run.Root,
		&run.Output,
		&run.LiveCheck,
		&status,
		&run.FileCount,
		&run.LivenessSkipped,
		&skipped,
		&errText,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", idStr, err)
	}
	run.Status = models.RunStatus(status)
	run.Error = errText.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if err := unmarshalSkipped(skipped.String, &run.Skipped); err != nil {
		return nil, err
	}

	return run, nil
}

func marshalSkipped(skipped map[string]int) (string, error) {
	if len(skipped) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(skipped)
	if err != nil {
		return "", fmt.Errorf("failed to encode skip counts: %w", err)
	}
	return string(data), nil
}

func unmarshalSkipped(data string, into *map[string]int) error {
	if data == "" || data == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), into); err != nil {
		return fmt.Errorf("failed to decode skip counts: %w", err)
	}
	return nil
}

func utcOrNil(run *models.GenerationRun) interface{} {
	if run.FinishedAt == nil {
		return nil
	}
	return run.FinishedAt.UTC()
}

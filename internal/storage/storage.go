package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/romangod6/site-mapper/internal/models"
)

// Store keeps the history of generation runs. Lookups return nil, nil when
// the run does not exist.
type Store interface {
	Initialize() error
	Close() error

	CreateRun(ctx context.Context, run *models.GenerationRun) error
	UpdateRun(ctx context.Context, run *models.GenerationRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.GenerationRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.GenerationRun, error)
	// LatestRun returns the most recent completed run.
	LatestRun(ctx context.Context) (*models.GenerationRun, error)
}

// Open connects to the store selected by driver ("sqlite3" or "postgres")
// and creates its tables.
func Open(driver, url string) (Store, error) {
	var (
		store Store
		err   error
	)

	switch driver {
	case "sqlite3", "sqlite":
		store, err = NewSQLiteStore(url)
	case "postgres", "postgresql":
		store, err = NewPostgresStore(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}

	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}
	return store, nil
}

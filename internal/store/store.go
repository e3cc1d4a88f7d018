package store

import (
	"context"
	"errors"

	"github.com/joescharf/milesync/internal/models"
)

// ErrNotFound is returned when a run id matches nothing.
var ErrNotFound = errors.New("not found")

// RunListFilter specifies filters for listing runs.
type RunListFilter struct {
	Source string
	Target string
	Limit  int
}

// Store defines the persistence interface for milesync run history.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunListFilter) ([]*models.Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Mappings
	LatestIssueMapping(ctx context.Context, source, target string) (models.NumberMap, error)

	// Anomalies
	ListAnomalies(ctx context.Context, runID string) ([]models.Anomaly, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

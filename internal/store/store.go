// Package store persists mining runs to Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/biolit/litmine/internal/condense"
)

// Run statuses. A run is created running and finishes in one of the
// condense result statuses.
const (
	RunStatusRunning = "running"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = eris.New("store: run not found")

// Run is one persisted mining run.
type Run struct {
	ID         string               `json:"id"`
	Query      string               `json:"query"`
	Profile    string               `json:"profile"`
	Model      string               `json:"model"`
	Status     string               `json:"status"`
	Content    string               `json:"content,omitempty"`
	Confidence float64              `json:"confidence,omitempty"`
	Errors     []condense.BatchError `json:"errors,omitempty"`
	Calls      int                  `json:"backend_calls"`
	Levels     int                  `json:"levels"`
	DurationMS int64                `json:"duration_ms"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  string `json:"status,omitempty"`
	Profile string `json:"profile,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for mining runs.
type Store interface {
	// CreateRun records a new run in the running state.
	CreateRun(ctx context.Context, query, profile, model string) (*Run, error)
	// CompleteRun stores the terminal result of a run.
	CompleteRun(ctx context.Context, runID string, res *condense.Result) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

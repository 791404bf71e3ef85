package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
)

// ErrNotFound is returned when a run or result does not exist.
var ErrNotFound = errors.New("not found")

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// RunFilter selects runs. Zero fields match everything.
type RunFilter struct {
	Factory  string
	Scenario string
	Status   engine.RunStatus
	Limit    int
	Offset   int
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	SaveRun(ctx context.Context, run *engine.Run) error
	GetRun(ctx context.Context, id string) (*engine.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*engine.Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Result operations
	SaveResult(ctx context.Context, result *model.Result) error
	GetResult(ctx context.Context, runID string) (*model.Result, error)

	// Event operations
	SaveEvent(ctx context.Context, event *engine.Event) error
	GetEvents(ctx context.Context, filter engine.EventFilter, limit int) ([]*engine.Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

// Package store persists run bookkeeping and reads the firm registry.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = eris.New("store: not found")

// BatchQuery selects the next firms a run should handle.
type BatchQuery struct {
	RunID   int64
	Variant model.Variant
	Size    int
	// CreatedBefore excludes firms registered at or after this instant.
	CreatedBefore time.Time
	// Now is the clock leases are compared against.
	Now time.Time
}

// Lease claims firms for one activity until ExpiresAt.
type Lease struct {
	RunID      int64
	ActivityID int64
	Token      uuid.UUID
	ExpiresAt  time.Time
	Now        time.Time
}

// BatchResult is everything one batch writes.
type BatchResult struct {
	RunID      int64
	ActivityID int64
	FirmIDs    []int64
	Values     []model.GeneratedValue
	// LeaseToken, when set, releases the batch's leases in the same
	// transaction.
	LeaseToken uuid.UUID
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Run registry
	GetOrCreateRun(ctx context.Context, name, version string, description *string) (int64, error)
	FindRun(ctx context.Context, name, version string) (*model.ScriptRun, error)
	StartActivity(ctx context.Context, runID int64) (int64, error)
	EndActivity(ctx context.Context, activityID int64, errorCode, errorText *string) error
	ListActivities(ctx context.Context, runID int64, limit int) ([]model.ScriptActivity, error)

	// Batch selection
	NextBatch(ctx context.Context, q BatchQuery) ([]int64, error)
	LoadFirms(ctx context.Context, ids []int64) ([]model.Firm, error)
	AcquireLeases(ctx context.Context, l Lease, ids []int64) ([]int64, error)
	ReleaseLeases(ctx context.Context, runID int64, token uuid.UUID) error

	// Persistence
	WriteGeneratedValues(ctx context.Context, rows []model.GeneratedValue) (int64, error)
	WriteProcessedMarks(ctx context.Context, firmIDs []int64, runID, activityID int64) (int64, error)
	PersistBatch(ctx context.Context, b BatchResult) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

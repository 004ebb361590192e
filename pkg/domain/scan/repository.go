package scan

import (
	"context"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Repository defines the interface for scan persistence.
type Repository interface {
	// Create creates a new scan.
	Create(ctx context.Context, sc *Scan) error

	// GetByID retrieves a scan by ID.
	GetByID(ctx context.Context, id shared.ID) (*Scan, error)

	// Update updates scan fields other than status.
	Update(ctx context.Context, sc *Scan) error

	// UpdateStatus atomically moves a scan from one status to another.
	// It returns shared.ErrConflict when the persisted status no longer
	// matches from, which means a concurrent worker already advanced the
	// scan. Callers must treat that as "someone else finished it" and stop.
	UpdateStatus(ctx context.Context, id shared.ID, from, to Status) error

	// ListByProject lists scans belonging to a project, newest first.
	ListByProject(ctx context.Context, projectID shared.ID, limit int) ([]*Scan, error)

	// ListActive lists scans in a non-terminal status, used to resume
	// polling after a restart.
	ListActive(ctx context.Context) ([]*Scan, error)
}

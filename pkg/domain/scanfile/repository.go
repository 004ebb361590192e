package scanfile

import (
	"context"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Repository defines the interface for scan file persistence.
type Repository interface {
	// ListByScan lists the files uploaded for a scan.
	ListByScan(ctx context.Context, scanID shared.ID) ([]*File, error)

	// GetByID retrieves a single file.
	GetByID(ctx context.Context, id shared.ID) (*File, error)
}

// ResultRepository defines the interface for file result persistence.
type ResultRepository interface {
	// CreateBatch persists a batch of file results in one statement.
	CreateBatch(ctx context.Context, results []*Result) error

	// ListByScan lists file results belonging to a scan.
	ListByScan(ctx context.Context, scanID shared.ID) ([]*Result, error)
}

package project

import (
	"context"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Repository defines the read-only interface for project lookup.
type Repository interface {
	// GetByID retrieves a project by ID.
	GetByID(ctx context.Context, id shared.ID) (*Project, error)

	// List lists all projects.
	List(ctx context.Context) ([]*Project, error)
}

package mapping

import (
	"context"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Repository defines the interface for mapping persistence.
//
// At most one mapping may exist per (provider, type, external id), and at
// most one per (provider, type, linked entity) for the ci_upload type; Create
// must be safe to call twice with the same keys.
type Repository interface {
	// Create persists a mapping. Duplicate keys are not an error: the
	// existing record wins and the call succeeds.
	Create(ctx context.Context, m *Mapping) error

	// Find retrieves a mapping by its external identity. Returns
	// shared.ErrNotFound when absent.
	Find(ctx context.Context, provider string, typ Type, externalID string) (*Mapping, error)

	// FindByLinkedEntity retrieves a mapping by the internal entity it
	// points at. Returns shared.ErrNotFound when absent.
	FindByLinkedEntity(ctx context.Context, provider string, typ Type, linkedType LinkedType, linkedID shared.ID) (*Mapping, error)
}

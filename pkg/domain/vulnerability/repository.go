package vulnerability

import (
	"context"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Repository defines the interface for vulnerability persistence.
type Repository interface {
	// CreateBatch persists a batch of vulnerabilities in one statement.
	CreateBatch(ctx context.Context, vulns []*Vulnerability) error

	// ListByScan lists vulnerabilities belonging to a scan.
	ListByScan(ctx context.Context, scanID shared.ID) ([]*Vulnerability, error)

	// CountByScan counts vulnerabilities belonging to a scan.
	CountByScan(ctx context.Context, scanID shared.ID) (int, error)

	// SetIgnored updates the ignored flag of a single vulnerability.
	SetIgnored(ctx context.Context, id shared.ID, ignored bool) error
}

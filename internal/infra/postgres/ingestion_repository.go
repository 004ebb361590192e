package postgres

import (
	"context"
	"database/sql"

	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/vulnerability"
)

// IngestionRepository writes the artifacts of one completed scan result as a
// single batch.
type IngestionRepository struct {
	db *DB
}

// NewIngestionRepository creates a new IngestionRepository.
func NewIngestionRepository(db *DB) *IngestionRepository {
	return &IngestionRepository{db: db}
}

// WriteBatch persists vulnerabilities and file results in one transaction,
// so a crash mid-ingestion never leaves a half-ingested scan behind.
func (r *IngestionRepository) WriteBatch(ctx context.Context, vulns []*vulnerability.Vulnerability, results []*scanfile.Result) error {
	if len(vulns) == 0 && len(results) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if len(vulns) > 0 {
			if err := createVulnerabilitiesInTx(ctx, tx, vulns); err != nil {
				return err
			}
		}
		if len(results) > 0 {
			if err := createFileResultsInTx(ctx, tx, results); err != nil {
				return err
			}
		}
		return nil
	})
}

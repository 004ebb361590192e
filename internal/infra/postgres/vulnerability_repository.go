package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/domain/vulnerability"
)

// VulnerabilityRepository implements vulnerability.Repository using PostgreSQL.
type VulnerabilityRepository struct {
	db *DB
}

// NewVulnerabilityRepository creates a new VulnerabilityRepository.
func NewVulnerabilityRepository(db *DB) *VulnerabilityRepository {
	return &VulnerabilityRepository{db: db}
}

// CreateBatch persists a batch of vulnerabilities inside one transaction.
func (r *VulnerabilityRepository) CreateBatch(ctx context.Context, vulns []*vulnerability.Vulnerability) error {
	if len(vulns) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return createVulnerabilitiesInTx(ctx, tx, vulns)
	})
}

// createVulnerabilitiesInTx inserts vulnerabilities within an existing
// transaction so ingestion can write vulnerabilities and file results as one
// batch.
func createVulnerabilitiesInTx(ctx context.Context, tx *sql.Tx, vulns []*vulnerability.Vulnerability) error {
	query := `
		INSERT INTO vulnerabilities (
			id, scan_id, title, cve, severity, score,
			package_name, package_version, ecosystem,
			reference_links, ignored, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare vulnerability insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, v := range vulns {
		_, err := stmt.ExecContext(ctx,
			v.ID.String(),
			v.ScanID.String(),
			v.Title,
			nullString(v.CVE),
			string(v.Severity),
			v.Score,
			v.PackageName,
			nullString(v.PackageVersion),
			nullString(v.Ecosystem),
			pq.Array(v.References),
			v.Ignored,
			v.CreatedAt,
			v.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert vulnerability %s: %w", v.ID, err)
		}
	}

	return nil
}

// ListByScan lists vulnerabilities belonging to a scan.
func (r *VulnerabilityRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*vulnerability.Vulnerability, error) {
	query := `
		SELECT id, scan_id, title, cve, severity, score,
			package_name, package_version, ecosystem,
			reference_links, ignored, created_at, updated_at
		FROM vulnerabilities
		WHERE scan_id = $1
		ORDER BY score DESC, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, scanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list vulnerabilities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vulns []*vulnerability.Vulnerability
	for rows.Next() {
		var (
			v        vulnerability.Vulnerability
			cve      sql.NullString
			version  sql.NullString
			eco      sql.NullString
			severity string
			refs     pq.StringArray
		)

		err := rows.Scan(
			&v.ID,
			&v.ScanID,
			&v.Title,
			&cve,
			&severity,
			&v.Score,
			&v.PackageName,
			&version,
			&eco,
			&refs,
			&v.Ignored,
			&v.CreatedAt,
			&v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		v.CVE = nullStringValue(cve)
		v.PackageVersion = nullStringValue(version)
		v.Ecosystem = nullStringValue(eco)
		v.Severity = vulnerability.Severity(severity)
		v.References = refs

		vulns = append(vulns, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return vulns, nil
}

// CountByScan counts vulnerabilities belonging to a scan.
func (r *VulnerabilityRepository) CountByScan(ctx context.Context, scanID shared.ID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vulnerabilities WHERE scan_id = $1`, scanID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vulnerabilities: %w", err)
	}
	return count, nil
}

// SetIgnored updates the ignored flag of a single vulnerability.
func (r *VulnerabilityRepository) SetIgnored(ctx context.Context, id shared.ID, ignored bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vulnerabilities SET ignored = $2, updated_at = NOW() WHERE id = $1`,
		id.String(), ignored,
	)
	if err != nil {
		return fmt.Errorf("failed to update vulnerability: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return shared.ErrNotFound
	}

	return nil
}

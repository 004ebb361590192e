package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `
	id, project_id, branch, provider, status,
	vulnerability_count, summary,
	started_at, completed_at, created_at, updated_at
`

// Create persists a new scan.
func (r *ScanRepository) Create(ctx context.Context, sc *scan.Scan) error {
	query := `
		INSERT INTO scans (` + scanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		sc.ID.String(),
		sc.ProjectID.String(),
		nullString(sc.Branch),
		nullString(sc.Provider),
		string(sc.Status),
		sc.VulnerabilityCount,
		nullBytes(sc.Summary),
		nullTime(sc.StartedAt),
		nullTime(sc.CompletedAt),
		sc.CreatedAt,
		sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}

	return nil
}

// GetByID retrieves a scan by ID.
func (r *ScanRepository) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`
	return r.scanFromRow(r.db.QueryRowContext(ctx, query, id.String()))
}

// Update updates scan fields other than status.
func (r *ScanRepository) Update(ctx context.Context, sc *scan.Scan) error {
	query := `
		UPDATE scans SET
			branch = $2, provider = $3,
			vulnerability_count = $4, summary = $5,
			started_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		sc.ID.String(),
		nullString(sc.Branch),
		nullString(sc.Provider),
		sc.VulnerabilityCount,
		nullBytes(sc.Summary),
		nullTime(sc.StartedAt),
		nullTime(sc.CompletedAt),
		sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
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

// UpdateStatus atomically moves a scan from one status to another. The
// status predicate in the WHERE clause is the optimistic guard: if a
// concurrent worker already advanced the scan, zero rows match and the call
// reports shared.ErrConflict.
func (r *ScanRepository) UpdateStatus(ctx context.Context, id shared.ID, from, to scan.Status) error {
	query := `
		UPDATE scans SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.ExecContext(ctx, query, id.String(), string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to update scan status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing scan from a lost race.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return shared.ErrConflict
	}

	return nil
}

// ListByProject lists scans belonging to a project, newest first.
func (r *ScanRepository) ListByProject(ctx context.Context, projectID shared.ID, limit int) ([]*scan.Scan, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + scanColumns + ` FROM scans
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanFromRows(rows)
}

// ListActive lists scans in a non-terminal status.
func (r *ScanRepository) ListActive(ctx context.Context) ([]*scan.Scan, error) {
	query := `
		SELECT ` + scanColumns + ` FROM scans
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(scan.StatusCompleted), string(scan.StatusFailed), string(scan.StatusTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to list active scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanFromRows(rows)
}

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ScanRepository) scanFromRow(row rowScanner) (*scan.Scan, error) {
	var (
		sc       scan.Scan
		branch   sql.NullString
		provider sql.NullString
		summary  []byte
		started  sql.NullTime
		finished sql.NullTime
		status   string
	)

	err := row.Scan(
		&sc.ID,
		&sc.ProjectID,
		&branch,
		&provider,
		&status,
		&sc.VulnerabilityCount,
		&summary,
		&started,
		&finished,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	sc.Branch = nullStringValue(branch)
	sc.Provider = nullStringValue(provider)
	sc.Status = scan.Status(status)
	sc.Summary = summary
	sc.StartedAt = nullTimeValue(started)
	sc.CompletedAt = nullTimeValue(finished)

	return &sc, nil
}

func (r *ScanRepository) scanFromRows(rows *sql.Rows) ([]*scan.Scan, error) {
	var scans []*scan.Scan
	for rows.Next() {
		sc, err := r.scanFromRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return scans, nil
}

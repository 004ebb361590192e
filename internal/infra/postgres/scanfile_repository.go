package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
)

// ScanFileRepository implements scanfile.Repository using PostgreSQL.
type ScanFileRepository struct {
	db *DB
}

// NewScanFileRepository creates a new ScanFileRepository.
func NewScanFileRepository(db *DB) *ScanFileRepository {
	return &ScanFileRepository{db: db}
}

// ListByScan lists the files uploaded for a scan.
func (r *ScanFileRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*scanfile.File, error) {
	query := `
		SELECT id, scan_id, filename, path, size, created_at, updated_at
		FROM scan_files
		WHERE scan_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, scanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list scan files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*scanfile.File
	for rows.Next() {
		var f scanfile.File
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Filename, &f.Path, &f.Size, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return files, nil
}

// GetByID retrieves a single file.
func (r *ScanFileRepository) GetByID(ctx context.Context, id shared.ID) (*scanfile.File, error) {
	query := `
		SELECT id, scan_id, filename, path, size, created_at, updated_at
		FROM scan_files
		WHERE id = $1
	`

	var f scanfile.File
	err := r.db.QueryRowContext(ctx, query, id.String()).
		Scan(&f.ID, &f.ScanID, &f.Filename, &f.Path, &f.Size, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scan file: %w", err)
	}

	return &f, nil
}

// ScanFileResultRepository implements scanfile.ResultRepository using PostgreSQL.
type ScanFileResultRepository struct {
	db *DB
}

// NewScanFileResultRepository creates a new ScanFileResultRepository.
func NewScanFileResultRepository(db *DB) *ScanFileResultRepository {
	return &ScanFileResultRepository{db: db}
}

// CreateBatch persists a batch of file results inside one transaction.
func (r *ScanFileResultRepository) CreateBatch(ctx context.Context, results []*scanfile.Result) error {
	if len(results) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return createFileResultsInTx(ctx, tx, results)
	})
}

// createFileResultsInTx inserts file results within an existing transaction.
func createFileResultsInTx(ctx context.Context, tx *sql.Tx, results []*scanfile.Result) error {
	query := `
		INSERT INTO scan_file_results (id, file_id, scan_id, status, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare file result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, res := range results {
		_, err := stmt.ExecContext(ctx,
			res.ID.String(),
			res.FileID.String(),
			res.ScanID.String(),
			string(res.Status),
			nullBytes(res.Snapshot),
			res.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file result %s: %w", res.ID, err)
		}
	}

	return nil
}

// ListByScan lists file results belonging to a scan.
func (r *ScanFileResultRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*scanfile.Result, error) {
	query := `
		SELECT id, file_id, scan_id, status, snapshot, created_at
		FROM scan_file_results
		WHERE scan_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, scanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list file results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*scanfile.Result
	for rows.Next() {
		var (
			res      scanfile.Result
			status   string
			snapshot []byte
		)
		if err := rows.Scan(&res.ID, &res.FileID, &res.ScanID, &status, &snapshot, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		res.Status = scanfile.ResultStatus(status)
		res.Snapshot = snapshot
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}

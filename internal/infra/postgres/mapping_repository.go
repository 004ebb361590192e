package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/depsentry/api/pkg/domain/mapping"
	"github.com/depsentry/api/pkg/domain/shared"
)

// MappingRepository implements mapping.Repository using PostgreSQL.
type MappingRepository struct {
	db *DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *DB) *MappingRepository {
	return &MappingRepository{db: db}
}

const mappingColumns = `
	id, provider, mapping_type, external_id,
	linked_type, linked_id, raw_payload, created_at, updated_at
`

// Create persists a mapping. The unique index on (provider, mapping_type,
// external_id) enforces at-most-one semantics; a duplicate insert is not an
// error, the existing record wins.
func (r *MappingRepository) Create(ctx context.Context, m *mapping.Mapping) error {
	query := `
		INSERT INTO provider_mappings (` + mappingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, mapping_type, external_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(),
		m.Provider,
		string(m.Type),
		m.ExternalID,
		string(m.LinkedType),
		m.LinkedID.String(),
		nullBytes(m.RawPayload),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	return nil
}

// Find retrieves a mapping by its external identity.
func (r *MappingRepository) Find(ctx context.Context, provider string, typ mapping.Type, externalID string) (*mapping.Mapping, error) {
	query := `
		SELECT ` + mappingColumns + ` FROM provider_mappings
		WHERE provider = $1 AND mapping_type = $2 AND external_id = $3
	`
	return r.mappingFromRow(r.db.QueryRowContext(ctx, query, provider, string(typ), externalID))
}

// FindByLinkedEntity retrieves a mapping by the internal entity it points
// at. For ci_upload mappings there is at most one per linked entity; for
// other types the most recent one wins.
func (r *MappingRepository) FindByLinkedEntity(ctx context.Context, provider string, typ mapping.Type, linkedType mapping.LinkedType, linkedID shared.ID) (*mapping.Mapping, error) {
	query := `
		SELECT ` + mappingColumns + ` FROM provider_mappings
		WHERE provider = $1 AND mapping_type = $2 AND linked_type = $3 AND linked_id = $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.mappingFromRow(r.db.QueryRowContext(ctx, query, provider, string(typ), string(linkedType), linkedID.String()))
}

func (r *MappingRepository) mappingFromRow(row *sql.Row) (*mapping.Mapping, error) {
	var (
		m          mapping.Mapping
		typ        string
		linkedType string
		raw        []byte
	)

	err := row.Scan(
		&m.ID,
		&m.Provider,
		&typ,
		&m.ExternalID,
		&linkedType,
		&m.LinkedID,
		&raw,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	m.Type = mapping.Type(typ)
	m.LinkedType = mapping.LinkedType(linkedType)
	m.RawPayload = raw

	return &m, nil
}

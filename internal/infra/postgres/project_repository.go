package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/depsentry/api/pkg/domain/project"
	"github.com/depsentry/api/pkg/domain/shared"
)

// ProjectRepository implements project.Repository using PostgreSQL.
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `
	id, name, default_branch, notification_emails, created_at, updated_at
`

// GetByID retrieves a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id shared.ID) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	var (
		p      project.Project
		branch sql.NullString
		emails pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).
		Scan(&p.ID, &p.Name, &branch, &emails, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.DefaultBranch = nullStringValue(branch)
	p.NotificationEmails = emails

	return &p, nil
}

// List lists all projects.
func (r *ProjectRepository) List(ctx context.Context) ([]*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*project.Project
	for rows.Next() {
		var (
			p      project.Project
			branch sql.NullString
			emails pq.StringArray
		)
		if err := rows.Scan(&p.ID, &p.Name, &branch, &emails, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.DefaultBranch = nullStringValue(branch)
		p.NotificationEmails = emails
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return projects, nil
}

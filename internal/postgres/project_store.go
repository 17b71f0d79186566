package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhooker-io/webhooker/internal/domain"
)

const projectColumns = `id, tenant_id, name, slug, created_at, updated_at`

// ProjectStore persists projects.
type ProjectStore struct {
	pool *pgxpool.Pool
}

// NewProjectStore creates a ProjectStore backed by the given pool.
func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a project. A duplicate slug within the tenant returns
// domain.ErrAlreadyExists.
func (s *ProjectStore) Create(ctx context.Context, tenantID uuid.UUID, name, slug string) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (tenant_id, name, slug) VALUES ($1, $2, $3) RETURNING `+projectColumns,
		tenantID, name, slug)

	p, err := scanProject(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("project %q: %w", slug, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetByID returns the project, or nil when it does not exist.
func (s *ProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListByTenant returns the tenant's projects, newest first.
func (s *ProjectStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var result []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhooker-io/webhooker/internal/domain"
)

const tenantColumns = `id, name, slug, created_at, updated_at`

// TenantStore persists tenants.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a TenantStore backed by the given pool.
func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a tenant. A duplicate slug returns domain.ErrAlreadyExists.
func (s *TenantStore) Create(ctx context.Context, name, slug string) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING `+tenantColumns,
		name, slug)

	t, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("tenant %q: %w", slug, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

// GetByID returns the tenant, or nil when it does not exist.
func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)

	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// GetBySlug returns the tenant, or nil when it does not exist.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)

	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

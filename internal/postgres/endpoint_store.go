package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhooker-io/webhooker/internal/domain"
)

const endpointColumns = `id, project_id, name, slug, fields, settings, created_at, updated_at`

// EndpointStore persists endpoints.
type EndpointStore struct {
	pool *pgxpool.Pool
}

// NewEndpointStore creates an EndpointStore backed by the given pool.
func NewEndpointStore(pool *pgxpool.Pool) *EndpointStore {
	return &EndpointStore{pool: pool}
}

func scanEndpoint(row pgx.Row) (*domain.Endpoint, error) {
	var (
		ep       domain.Endpoint
		fields   []byte
		settings []byte
	)
	if err := row.Scan(&ep.ID, &ep.ProjectID, &ep.Name, &ep.Slug, &fields, &settings,
		&ep.CreatedAt, &ep.UpdatedAt); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &ep.Fields); err != nil {
			return nil, fmt.Errorf("decode endpoint fields: %w", err)
		}
	}
	if len(settings) > 0 {
		ep.Settings = json.RawMessage(settings)
	}
	return &ep, nil
}

// Create inserts an endpoint. fields may be nil for free-form endpoints;
// settings may be nil for defaults. A duplicate slug within the project
// returns domain.ErrAlreadyExists.
func (s *EndpointStore) Create(ctx context.Context, projectID uuid.UUID, name, slug string, fields []domain.FieldDef, settings json.RawMessage) (*domain.Endpoint, error) {
	var fieldsJSON any
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode endpoint fields: %w", err)
		}
		fieldsJSON = b
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO endpoints (project_id, name, slug, fields, settings)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+endpointColumns,
		projectID, name, slug, fieldsJSON, jsonbOrNull(settings))

	ep, err := scanEndpoint(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("endpoint %q: %w", slug, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	return ep, nil
}

// GetByID returns the endpoint, or nil when it does not exist.
func (s *EndpointStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = $1`, id)

	ep, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	return ep, nil
}

// UpdateSettings replaces the endpoint's settings JSON.
func (s *EndpointStore) UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE endpoints SET settings = $2, updated_at = now() WHERE id = $1`,
		id, jsonbOrNull(settings))
	if err != nil {
		return fmt.Errorf("update endpoint settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Owners resolves the endpoint's project and tenant in one round trip.
// Returns nils when the endpoint does not exist.
func (s *EndpointStore) Owners(ctx context.Context, endpointID uuid.UUID) (*domain.Project, *domain.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT p.id, p.tenant_id, p.name, p.slug, p.created_at, p.updated_at,
		       t.id, t.name, t.slug, t.created_at, t.updated_at
		FROM endpoints e
		JOIN projects p ON p.id = e.project_id
		JOIN tenants t ON t.id = p.tenant_id
		WHERE e.id = $1`, endpointID)

	var (
		p domain.Project
		t domain.Tenant
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.CreatedAt, &p.UpdatedAt,
		&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve endpoint owners: %w", err)
	}
	return &p, &t, nil
}

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

const actionColumns = `id, endpoint_id, action_type, config, position, enabled, created_at`

// ActionStore persists endpoint actions.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates an ActionStore backed by the given pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

func scanAction(row pgx.Row) (*domain.Action, error) {
	var (
		a      domain.Action
		config []byte
	)
	if err := row.Scan(&a.ID, &a.EndpointID, &a.ActionType, &config, &a.Position, &a.Enabled, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Config = json.RawMessage(config)
	return &a, nil
}

// Create inserts an action.
func (s *ActionStore) Create(ctx context.Context, endpointID uuid.UUID, actionType string, config json.RawMessage, position int, enabled bool) (*domain.Action, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO actions (endpoint_id, action_type, config, position, enabled)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+actionColumns,
		endpointID, actionType, jsonbOrNull(config), position, enabled)

	a, err := scanAction(row)
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return a, nil
}

// GetByID returns the action, or nil when it does not exist.
func (s *ActionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Action, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE id = $1`, id)

	a, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

// ListEnabled returns the endpoint's enabled actions in position order,
// ties broken by id.
func (s *ActionStore) ListEnabled(ctx context.Context, endpointID uuid.UUID) ([]domain.Action, error) {
	return s.list(ctx,
		`SELECT `+actionColumns+` FROM actions
		 WHERE endpoint_id = $1 AND enabled ORDER BY position ASC, id ASC`, endpointID)
}

// ListByEndpoint returns all of the endpoint's actions in position order.
func (s *ActionStore) ListByEndpoint(ctx context.Context, endpointID uuid.UUID) ([]domain.Action, error) {
	return s.list(ctx,
		`SELECT `+actionColumns+` FROM actions
		 WHERE endpoint_id = $1 ORDER BY position ASC, id ASC`, endpointID)
}

func (s *ActionStore) list(ctx context.Context, query string, endpointID uuid.UUID) ([]domain.Action, error) {
	rows, err := s.pool.Query(ctx, query, endpointID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var result []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// SetEnabled toggles an action.
func (s *ActionStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE actions SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set action enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

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

const submissionColumns = `id, endpoint_id, data, extras, raw, metadata, created_at`

// SubmissionStore persists submissions. Rows are immutable after insert.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

// NewSubmissionStore creates a SubmissionStore backed by the given pool.
func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		sub                     domain.Submission
		data, extras, raw, meta []byte
	)
	if err := row.Scan(&sub.ID, &sub.EndpointID, &data, &extras, &raw, &meta, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.Data = json.RawMessage(data)
	sub.Extras = json.RawMessage(extras)
	sub.Raw = json.RawMessage(raw)
	sub.Metadata = json.RawMessage(meta)
	return &sub, nil
}

// Create inserts a submission row.
func (s *SubmissionStore) Create(ctx context.Context, endpointID uuid.UUID, data, extras, raw, metadata json.RawMessage) (*domain.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO submissions (endpoint_id, data, extras, raw, metadata)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+submissionColumns,
		endpointID, jsonbOrNull(data), jsonbOrNull(extras), jsonbOrNull(raw), jsonbOrNull(metadata))

	sub, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	return sub, nil
}

// GetByID returns the submission, or nil when it does not exist.
func (s *SubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)

	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ListByEndpoint returns the endpoint's submissions, newest first.
func (s *SubmissionStore) ListByEndpoint(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]domain.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE endpoint_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		endpointID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var result []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		result = append(result, *sub)
	}
	return result, rows.Err()
}

// CountByEndpoint returns the endpoint's total submission count.
func (s *SubmissionStore) CountByEndpoint(ctx context.Context, endpointID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM submissions WHERE endpoint_id = $1`, endpointID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

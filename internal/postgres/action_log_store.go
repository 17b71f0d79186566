package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhooker-io/webhooker/internal/domain"
)

const actionLogColumns = `id, action_id, submission_id, status, response, executed_at`

// ActionLogStore is the append-only record of action execution outcomes.
type ActionLogStore struct {
	pool *pgxpool.Pool
}

// NewActionLogStore creates an ActionLogStore backed by the given pool.
func NewActionLogStore(pool *pgxpool.Pool) *ActionLogStore {
	return &ActionLogStore{pool: pool}
}

func scanActionLog(row pgx.Row) (*domain.ActionLog, error) {
	var (
		l        domain.ActionLog
		status   string
		response []byte
	)
	if err := row.Scan(&l.ID, &l.ActionID, &l.SubmissionID, &status, &response, &l.ExecutedAt); err != nil {
		return nil, err
	}
	l.Status = domain.LogStatus(status)
	l.Response = json.RawMessage(response)
	return &l, nil
}

// Append inserts one execution outcome.
func (s *ActionLogStore) Append(ctx context.Context, actionID, submissionID uuid.UUID, status domain.LogStatus, response json.RawMessage) (*domain.ActionLog, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO action_logs (action_id, submission_id, status, response)
		 VALUES ($1, $2, $3, $4) RETURNING `+actionLogColumns,
		actionID, submissionID, string(status), jsonbOrNull(response))

	l, err := scanActionLog(row)
	if err != nil {
		return nil, fmt.Errorf("append action log: %w", err)
	}
	return l, nil
}

// ListBySubmission returns the submission's logs in execution order.
func (s *ActionLogStore) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]domain.ActionLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+actionLogColumns+` FROM action_logs
		 WHERE submission_id = $1 ORDER BY executed_at ASC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	defer rows.Close()

	var result []domain.ActionLog
	for rows.Next() {
		l, err := scanActionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}

// ListByAction returns the action's logs, newest first.
func (s *ActionLogStore) ListByAction(ctx context.Context, actionID uuid.UUID, limit int) ([]domain.ActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+actionLogColumns+` FROM action_logs
		 WHERE action_id = $1 ORDER BY executed_at DESC LIMIT $2`, actionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	defer rows.Close()

	var result []domain.ActionLog
	for rows.Next() {
		l, err := scanActionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhooker-io/webhooker/internal/domain"
)

const queueColumns = `id, submission_id, action_id, status, attempts, max_attempts,
	last_error, next_retry_at, created_at, completed_at`

// QueueStore is the durable action queue. Every state transition is a
// single SQL statement, so N workers coordinate purely through row locks.
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewQueueStore creates a QueueStore backed by the given pool.
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

func scanQueueItem(row pgx.Row) (*domain.ActionQueueItem, error) {
	var (
		item        domain.ActionQueueItem
		status      string
		lastError   pgtype.Text
		completedAt *time.Time
	)
	if err := row.Scan(&item.ID, &item.SubmissionID, &item.ActionID, &status,
		&item.Attempts, &item.MaxAttempts, &lastError, &item.NextRetryAt,
		&item.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	item.Status = domain.QueueStatus(status)
	item.LastError = nullableTextToPtr(lastError)
	item.CompletedAt = completedAt
	return &item, nil
}

// Enqueue inserts a pending item ready for immediate claim.
func (s *QueueStore) Enqueue(ctx context.Context, submissionID, actionID uuid.UUID) (*domain.ActionQueueItem, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO action_queue (submission_id, action_id)
		 VALUES ($1, $2) RETURNING `+queueColumns,
		submissionID, actionID)

	item, err := scanQueueItem(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue action: %w", err)
	}
	return item, nil
}

// ClaimNext atomically claims the oldest ready item: status moves to
// processing and attempts increments in the same statement. FOR UPDATE
// SKIP LOCKED guarantees at most one worker observes any given row in a
// claimable state. Terminal failures (attempts ≥ max_attempts) are never
// reclaimed. Returns nil when there is no work.
func (s *QueueStore) ClaimNext(ctx context.Context) (*domain.ActionQueueItem, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE action_queue SET status = 'processing', attempts = attempts + 1, claimed_at = now()
		WHERE id = (
			SELECT id FROM action_queue
			WHERE status IN ('pending', 'failed')
			  AND next_retry_at <= now()
			  AND attempts < max_attempts
			ORDER BY next_retry_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueColumns)

	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queue item: %w", err)
	}
	return item, nil
}

// MarkCompleted transitions a claimed item to its terminal success state.
func (s *QueueStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE action_queue SET status = 'completed', completed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark queue item completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. attempts is the post-claim counter
// from the claimed item. At the retry budget the item becomes terminal;
// otherwise it is rescheduled with exponential backoff (1s, 2s, 4s, ...).
func (s *QueueStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts, maxAttempts int, errText string) error {
	if attempts >= maxAttempts {
		_, err := s.pool.Exec(ctx,
			`UPDATE action_queue SET status = 'failed', last_error = $2, completed_at = now()
			 WHERE id = $1`, id, errText)
		if err != nil {
			return fmt.Errorf("mark queue item failed: %w", err)
		}
		return nil
	}

	backoffSecs := int64(1) << (attempts - 1)
	_, err := s.pool.Exec(ctx, `
		UPDATE action_queue
		SET status = 'failed',
		    last_error = $2,
		    next_retry_at = now() + make_interval(secs => $3::double precision)
		WHERE id = $1`, id, errText, backoffSecs)
	if err != nil {
		return fmt.Errorf("mark queue item for retry: %w", err)
	}
	return nil
}

// ReclaimStuck recovers processing rows orphaned by a crashed process.
// Rows claimed longer ago than the threshold go back to pending with
// attempts untouched (only the claim transition counts delivery attempts);
// orphans already at their retry budget are closed out as failed instead.
// Returns the number of rows returned to pending.
func (s *QueueStore) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := olderThan.Seconds()

	_, err := s.pool.Exec(ctx, `
		UPDATE action_queue
		SET status = 'failed', last_error = 'Worker lost before completion', completed_at = now()
		WHERE status = 'processing'
		  AND attempts >= max_attempts
		  AND claimed_at < now() - make_interval(secs => $1::double precision)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("close out stuck queue items: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE action_queue
		SET status = 'pending', next_retry_at = now()
		WHERE status = 'processing'
		  AND claimed_at < now() - make_interval(secs => $1::double precision)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID returns the queue item, or nil when it does not exist.
func (s *QueueStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ActionQueueItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM action_queue WHERE id = $1`, id)

	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// ListBySubmission returns the submission's queue items, oldest first.
func (s *QueueStore) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]domain.ActionQueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM action_queue
		 WHERE submission_id = $1 ORDER BY created_at ASC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var result []domain.ActionQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

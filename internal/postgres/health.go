package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker backs the readiness endpoint with a pool ping. The queue
// and every store share this pool, so a failed ping means the whole
// service is degraded, not just one path.
type HealthChecker struct {
	pool *pgxpool.Pool
}

func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// HealthCheck reports nil when Postgres is reachable.
func (h *HealthChecker) HealthCheck(ctx context.Context) error {
	if err := h.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

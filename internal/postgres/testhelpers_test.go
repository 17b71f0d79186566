package postgres_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/webhooker-io/webhooker/internal/domain"
	"github.com/webhooker-io/webhooker/internal/postgres"
)

// testPool returns a pgxpool.Pool connected to the test database.
// It skips the test if DATABASE_URL is not set, runs migrations, and cleans
// all tables before returning.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cleanTables(t, pool)

	return pool
}

// cleanTables truncates all tables, children first.
func cleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	tables := []string{
		"action_logs", "action_queue", "actions", "submissions",
		"tenant_smtp_configs", "endpoints", "projects", "tenants",
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

// fixture is one tenant → project → endpoint chain with a webhook action.
type fixture struct {
	Tenant   *domain.Tenant
	Project  *domain.Project
	Endpoint *domain.Endpoint
	Action   *domain.Action
}

// seedFixture creates the standard test hierarchy.
func seedFixture(t *testing.T, pool *pgxpool.Pool) *fixture {
	t.Helper()
	ctx := context.Background()

	tenant, err := postgres.NewTenantStore(pool).Create(ctx, "Acme", "acme")
	require.NoError(t, err)

	project, err := postgres.NewProjectStore(pool).Create(ctx, tenant.ID, "Website", "website")
	require.NoError(t, err)

	endpoint, err := postgres.NewEndpointStore(pool).Create(ctx, project.ID, "Contact", "contact", nil, nil)
	require.NoError(t, err)

	action, err := postgres.NewActionStore(pool).Create(ctx, endpoint.ID, "webhook",
		json.RawMessage(`{"url":"https://example.com/hook"}`), 0, true)
	require.NoError(t, err)

	return &fixture{Tenant: tenant, Project: project, Endpoint: endpoint, Action: action}
}

// seedSubmission creates one submission on the fixture endpoint.
func seedSubmission(t *testing.T, pool *pgxpool.Pool, endpointID uuid.UUID) *domain.Submission {
	t.Helper()

	sub, err := postgres.NewSubmissionStore(pool).Create(context.Background(), endpointID,
		json.RawMessage(`{"name":"Alice"}`), json.RawMessage(`{}`),
		json.RawMessage(`{"name":"Alice"}`), json.RawMessage(`{"ip":"203.0.113.9"}`))
	require.NoError(t, err)
	return sub
}

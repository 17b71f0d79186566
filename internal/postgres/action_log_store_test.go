package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhooker-io/webhooker/internal/domain"
	"github.com/webhooker-io/webhooker/internal/postgres"
)

func TestActionLogStore_AppendAndList(t *testing.T) {
	pool := testPool(t)
	fix := seedFixture(t, pool)
	sub := seedSubmission(t, pool, fix.Endpoint.ID)
	store := postgres.NewActionLogStore(pool)
	ctx := context.Background()

	first, err := store.Append(ctx, fix.Action.ID, sub.ID, domain.LogFailed,
		json.RawMessage(`{"error":"Webhook returned status 500","status_code":500}`))
	require.NoError(t, err)
	assert.Equal(t, domain.LogFailed, first.Status)

	_, err = store.Append(ctx, fix.Action.ID, sub.ID, domain.LogSuccess,
		json.RawMessage(`{"status_code":200}`))
	require.NoError(t, err)

	logs, err := store.ListBySubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.LogFailed, logs[0].Status)
	assert.Equal(t, domain.LogSuccess, logs[1].Status)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Response, &resp))
	assert.Equal(t, "Webhook returned status 500", resp["error"])
}

func TestActionLogStore_ListByActionNewestFirst(t *testing.T) {
	pool := testPool(t)
	fix := seedFixture(t, pool)
	sub := seedSubmission(t, pool, fix.Endpoint.ID)
	store := postgres.NewActionLogStore(pool)
	ctx := context.Background()

	_, err := store.Append(ctx, fix.Action.ID, sub.ID, domain.LogFailed, nil)
	require.NoError(t, err)
	last, err := store.Append(ctx, fix.Action.ID, sub.ID, domain.LogSuccess, nil)
	require.NoError(t, err)

	logs, err := store.ListByAction(ctx, fix.Action.ID, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, last.ID, logs[0].ID)
}

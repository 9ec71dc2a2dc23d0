package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/caro-bet-platform/internal/shared/db"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

func TestInsertEvent(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	pg, err := db.ConnectPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, pg))

	code := uuid.NewString()[:6]
	repo := NewPostgresRepo(pg)
	env, err := events.New("match:"+code, events.MoveMade, code, events.MovePayload{X: 1, Y: 2, UserID: "alice"})
	require.NoError(t, err)
	require.NoError(t, repo.InsertEvent(ctx, env))
	require.NoError(t, repo.InsertEvent(ctx, events.Envelope{Type: events.GameStarted, MatchCode: code}))

	var n int
	require.NoError(t, pg.QueryRowContext(ctx, `SELECT count(*) FROM caro_match_events WHERE match_code = $1`, code).Scan(&n))
	assert.Equal(t, 2, n)

	var userID string
	require.NoError(t, pg.QueryRowContext(ctx,
		`SELECT payload->>'userId' FROM caro_match_events WHERE match_code = $1 AND event_type = $2`,
		code, events.MoveMade).Scan(&userID))
	assert.Equal(t, "alice", userID)
}

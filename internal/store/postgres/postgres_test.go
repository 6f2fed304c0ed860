package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// setupTestDB starts a PostgreSQL container, connects and applies the
// embedded migrations. Skips when no container provider is available.
func setupTestDB(t *testing.T) *Client {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("solbot"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.RunMigrations(ctx))
	require.Positive(t, client.Applied())
	// Second run is a no-op.
	require.NoError(t, client.RunMigrations(ctx))
	require.Zero(t, client.Applied())
	require.NoError(t, client.Ping(ctx))
	return client
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openPosition(id, token string) domain.Position {
	return domain.Position{
		ID:            id,
		Symbol:        "TKN",
		TokenAddress:  token,
		EntryPrice:    1,
		EntryTime:     t0,
		InitialSize:   100,
		Size:          100,
		CurrentPrice:  1,
		HighestPrice:  1,
		StopLossPrice: 0.88,
		TakeProfitLevels: []domain.TakeProfitLevel{
			{Multiplier: 1.5}, {Multiplier: 2},
		},
		Status:    domain.PositionStatusOpen,
		UpdatedAt: t0,
	}
}

func TestPositionJournal(t *testing.T) {
	client := setupTestDB(t)
	j := NewPositionJournal(client.Pool())
	ctx := context.Background()

	a := openPosition("MintA-1", "MintA")
	b := openPosition("MintB-1", "MintB")
	require.NoError(t, j.SavePosition(ctx, a))
	require.NoError(t, j.SavePosition(ctx, b))

	// Later snapshot replaces the first.
	hit := t0.Add(time.Minute)
	a.Size = 75
	a.StopLossPrice = 1.52
	a.TakeProfitLevels[0].Hit = true
	a.TakeProfitLevels[0].HitAt = &hit
	a.PendingExits = []domain.Action{{Kind: domain.ActionPartialTakeProfit, Level: 1.5, Quantity: 25, Attempts: 2, LastError: "rpc down"}}
	require.NoError(t, j.SavePosition(ctx, a))

	open, err := j.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	got := open[0]
	assert.Equal(t, "MintA-1", got.ID)
	assert.Equal(t, 75.0, got.Size)
	assert.Equal(t, 1.52, got.StopLossPrice)
	assert.Equal(t, []float64{1.5}, got.LevelsHit())
	require.Len(t, got.PendingExits, 1)
	assert.Equal(t, 2, got.PendingExits[0].Attempts)

	cp := domain.ClosedPosition{
		PositionID: b.ID, Symbol: b.Symbol, TokenAddress: b.TokenAddress,
		EntryPrice: 1, ExitPrice: 0.88, AvgExitPrice: 0.88,
		EntryTime: t0, ExitTime: t0.Add(time.Hour), InitialSize: 100,
		ExitReason: domain.ExitReasonStopLoss, ProfitLossPct: -12,
	}
	require.NoError(t, j.SaveClosed(ctx, cp))
	require.NoError(t, j.SaveClosed(ctx, cp), "closing twice is a no-op")

	// A snapshot written after the close must not resurrect the position.
	err = j.SavePosition(ctx, b)
	require.ErrorIs(t, err, domain.ErrPositionClosed)

	open, err = j.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "MintA-1", open[0].ID)

	second := cp
	second.PositionID = "MintC-1"
	second.ExitTime = t0.Add(2 * time.Hour)
	second.LevelsHit = []float64{1.5, 2}
	second.ExitReason = domain.ExitReasonTakeProfit
	second.ProfitLossPct = 75
	require.NoError(t, j.SaveClosed(ctx, second))

	closed, err := j.ListClosed(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "MintC-1", closed[0].PositionID)
	assert.Equal(t, []float64{1.5, 2}, closed[0].LevelsHit)
	assert.Equal(t, domain.ExitReasonTakeProfit, closed[0].ExitReason)
	assert.Nil(t, closed[1].LevelsHit)
	assert.True(t, closed[1].ExitTime.Equal(t0.Add(time.Hour)))

	since := t0.Add(90 * time.Minute)
	closed, err = j.ListClosed(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, closed, 1)

	closed, err = j.ListClosed(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, b.ID, closed[0].PositionID)
}

func TestAuditStore(t *testing.T) {
	client := setupTestDB(t)
	s := NewAuditStore(client.Pool())
	ctx := context.Background()

	require.NoError(t, s.Log(ctx, "position_opened", map[string]any{"position_id": "MintA-1", "size": 100.0}))
	require.NoError(t, s.Log(ctx, "position_closed", map[string]any{"position_id": "MintA-1"}))

	entries, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "position_closed", entries[0].Event)
	assert.Equal(t, "MintA-1", entries[1].Detail["position_id"])
	assert.Equal(t, 100.0, entries[1].Detail["size"])

	entries, err = s.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p%40ss@db:5433/solbot?sslmode=require", DSN(ClientConfig{
		Host: "db", Port: 5433, Database: "solbot", User: "u", Password: "p@ss", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://u:@localhost:5432/solbot?sslmode=disable", DSN(ClientConfig{
		Host: "localhost", Database: "solbot", User: "u",
	}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

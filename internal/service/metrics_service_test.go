package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

type fixedPending int

func (n fixedPending) Pending() int { return int(n) }

func TestSummarize(t *testing.T) {
	closed := []domain.ClosedPosition{
		{PositionID: "a", ProfitLossPct: 75},
		{PositionID: "b", ProfitLossPct: -12},
		{PositionID: "c", ProfitLossPct: 0},
	}
	open := []domain.Position{
		{EntryPrice: 1, CurrentPrice: 1.2},
		{EntryPrice: 2, CurrentPrice: 1.5},
	}

	s := Summarize(open, closed, 4)
	assert.Equal(t, 3, s.ClosedPositions)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 1.0/3, s.WinRate, 1e-9)
	assert.InDelta(t, 63, s.TotalProfitLoss, 1e-9)
	assert.Equal(t, 2, s.OpenPositions)
	assert.InDelta(t, -5, s.UnrealizedPnL, 1e-9)
	assert.Equal(t, 4, s.PotentialTrades)

	assert.Equal(t, s, Summarize(open, closed, 4))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, nil, 0)
	assert.Equal(t, domain.Summary{}, s)
}

func TestMetricsService_Summary(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	a := h.open(t, mintA)
	h.open(t, mintB)

	h.gateway.setPrice(1.5)
	_, err := h.svc.Close(ctx, a.ID)
	require.NoError(t, err)

	svc := NewMetricsService(h.store, fixedPending(3))
	s, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ClosedPositions)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1.0, s.WinRate)
	assert.InDelta(t, 50, s.TotalProfitLoss, 1e-9)
	assert.Equal(t, 1, s.OpenPositions)
	assert.Equal(t, 3, s.PotentialTrades)

	s, err = NewMetricsService(h.store, nil).Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.PotentialTrades)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

type stubFeed struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
}

func (f *stubFeed) Quotes(_ context.Context, tokens []string) (map[string]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Quote)
	for _, tok := range tokens {
		if q, ok := f.quotes[tok]; ok {
			out[tok] = q
		}
	}
	return out, nil
}

func TestRiskMonitor_TickSkipsTokensWithoutQuote(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	a := h.open(t, mintA)
	b := h.open(t, mintB)

	feed := &stubFeed{quotes: map[string]domain.Quote{mintA: quote(mintA, 1.2)}}
	prices := NewPriceService(feed, nil, h.bus, discard())
	mon := NewRiskMonitor(h.svc, prices, RiskMonitorConfig{Workers: 2}, discard())

	stats, err := mon.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickStats{Evaluated: 1, Skipped: 1}, stats)
	assert.Equal(t, 1, h.bus.count(domain.ChannelPrices))

	gotA, err := h.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.2, gotA.HighestPrice)

	gotB, err := h.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, gotB.HighestPrice)
	assert.InDelta(t, 0.88, gotB.StopLossPrice, 1e-9)
}

func TestRiskMonitor_TickClosesStoppedPositions(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	h.open(t, mintA)
	h.open(t, mintB)

	h.gateway.setPrice(0.8)
	feed := &stubFeed{quotes: map[string]domain.Quote{
		mintA: quote(mintA, 0.8),
		mintB: quote(mintB, 1.1),
	}}
	mon := NewRiskMonitor(h.svc, NewPriceService(feed, nil, nil, discard()), RiskMonitorConfig{}, discard())

	stats, err := mon.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evaluated)
	assert.Equal(t, 1, stats.Closed)

	open, closed := h.store.Counts()
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, closed)
}

func TestRiskMonitor_TickCountsFailedExits(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.open(t, mintA)
	h.gateway.setSellErr(errors.New("rpc down"))

	feed := &stubFeed{quotes: map[string]domain.Quote{mintA: quote(mintA, 0.5)}}
	mon := NewRiskMonitor(h.svc, NewPriceService(feed, nil, nil, discard()), RiskMonitorConfig{}, discard())

	stats, err := mon.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Closed)

	open, _ := h.store.Counts()
	assert.Equal(t, 1, open)
}

func TestRiskMonitor_TickFeedDown(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.open(t, mintA)

	feed := &stubFeed{err: errors.New("503")}
	mon := NewRiskMonitor(h.svc, NewPriceService(feed, nil, nil, discard()), RiskMonitorConfig{}, discard())

	stats, err := mon.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrPriceFeedUnavailable)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRiskMonitor_TickNoPositions(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	feed := &stubFeed{err: errors.New("never called")}
	mon := NewRiskMonitor(h.svc, NewPriceService(feed, nil, nil, discard()), RiskMonitorConfig{}, discard())

	stats, err := mon.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickStats{}, stats)
}

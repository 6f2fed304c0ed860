package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/risk"
	"github.com/alanyoungcy/solanabot/internal/store/memory"
)

const (
	mintA = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintB = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway buys at entryPrice and sells at whatever price is current.
type fakeGateway struct {
	mu         sync.Mutex
	entryPrice float64
	unitsPer   float64 // tokens per unit of quote size
	price      float64
	buyErr     error
	sellErr    error
	fillRatio  float64 // share of each sell that fills; zero means all
	sells      []float64
	buys       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{entryPrice: 1, unitsPer: 100, price: 1}
}

func (g *fakeGateway) Buy(_ context.Context, _ string, quoteSize float64) (domain.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buys++
	if g.buyErr != nil {
		return domain.Fill{}, g.buyErr
	}
	return domain.Fill{ExecutedPrice: g.entryPrice, ExecutedSize: quoteSize * g.unitsPer, Signature: "buy", ExecutedAt: t0}, nil
}

func (g *fakeGateway) Sell(_ context.Context, _ string, size float64) (domain.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sellErr != nil {
		return domain.Fill{}, g.sellErr
	}
	filled := size
	if g.fillRatio > 0 {
		filled = size * g.fillRatio
	}
	g.sells = append(g.sells, filled)
	return domain.Fill{ExecutedPrice: g.price, ExecutedSize: filled, Signature: "sell", ExecutedAt: t0}, nil
}

func (g *fakeGateway) setPrice(p float64) {
	g.mu.Lock()
	g.price = p
	g.mu.Unlock()
}

func (g *fakeGateway) setSellErr(err error) {
	g.mu.Lock()
	g.sellErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) sold() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]float64(nil), g.sells...)
}

// memBus records everything published.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    [][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

// memJournal is an in-memory PositionJournal.
type memJournal struct {
	mu     sync.Mutex
	open   map[string]domain.Position
	closed []domain.ClosedPosition
}

func newMemJournal() *memJournal {
	return &memJournal{open: make(map[string]domain.Position)}
}

func (j *memJournal) SavePosition(_ context.Context, pos domain.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, cp := range j.closed {
		if cp.PositionID == pos.ID {
			return fmt.Errorf("journal: save %s: %w", pos.ID, domain.ErrPositionClosed)
		}
	}
	j.open[pos.ID] = pos.Clone()
	return nil
}

func (j *memJournal) SaveClosed(_ context.Context, cp domain.ClosedPosition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.open, cp.PositionID)
	j.closed = append(j.closed, cp)
	return nil
}

func (j *memJournal) LoadOpen(context.Context) ([]domain.Position, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.Position, 0, len(j.open))
	for _, p := range j.open {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (j *memJournal) ListClosed(context.Context, domain.ListOpts) ([]domain.ClosedPosition, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.ClosedPosition(nil), j.closed...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type harness struct {
	store    *memory.PositionStore
	gateway  *fakeGateway
	journal  *memJournal
	bus      *memBus
	notifier *recordingNotifier
	svc      *PositionService
}

func defaultPolicy() risk.Policy {
	return risk.Policy{
		StopLossPct:      0.12,
		TrailingStopPct:  0.05,
		TakeProfitLevels: []float64{1.5, 2, 3, 5},
		ExitPolicy:       risk.ExitPolicyFractional,
	}
}

func newHarness(t *testing.T, policy risk.Policy) *harness {
	t.Helper()
	engine, err := risk.NewEngine(policy)
	require.NoError(t, err)
	h := &harness{
		store:    memory.NewPositionStore(),
		gateway:  newFakeGateway(),
		journal:  newMemJournal(),
		bus:      newMemBus(),
		notifier: &recordingNotifier{},
	}
	h.svc = NewPositionService(h.store, engine, h.gateway, h.journal, nil, h.bus, nil, h.notifier, discard())
	h.svc.now = func() time.Time { return t0 }
	return h
}

func candidate(addr string, passed bool) domain.CandidateToken {
	return domain.CandidateToken{
		Address:     addr,
		PairAddress: "Pair" + addr[:4],
		Symbol:      "TKN" + addr[:2],
		PriceUSD:    1,
		PriceNative: 0.01,
		Verdict:     &domain.SafetyVerdict{Score: 80, Passed: passed},
	}
}

func quote(addr string, price float64) domain.Quote {
	return domain.Quote{TokenAddress: addr, PriceUSD: price, ObservedAt: t0}
}

// open buys one unit of quote size (100 tokens at 1.0).
func (h *harness) open(t *testing.T, addr string) domain.Position {
	t.Helper()
	pos, err := h.svc.Open(context.Background(), candidate(addr, true), 1)
	require.NoError(t, err)
	return pos
}

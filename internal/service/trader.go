package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/report"
)

// maxVolatilityDiscount caps how much volatility can shrink a position.
const maxVolatilityDiscount = 0.5

// PositionSize is the quote amount to commit to one entry:
// balance * maxFraction * (1 - min(volatility, 0.5)).
func PositionSize(balance, maxFraction, volatility float64) float64 {
	if balance <= 0 || maxFraction <= 0 {
		return 0
	}
	v := math.Max(0, math.Min(volatility, maxVolatilityDiscount))
	return balance * maxFraction * (1 - v)
}

// SafetyGate returns a verdict for a token; it never fails.
type SafetyGate interface {
	Evaluate(ctx context.Context, tokenAddress string) domain.SafetyVerdict
}

// CandidateRegistry tracks scan candidates between discovery and entry.
type CandidateRegistry interface {
	Track(c domain.CandidateToken) bool
	SetVerdict(address string, v domain.SafetyVerdict)
	Reject(address string)
	Remove(address string)
	Candidates() []domain.CandidateToken
	Pending() int
	Cleanup()
}

// TraderConfig holds the entry loop parameters.
type TraderConfig struct {
	Interval         time.Duration
	MaxPositionSize  float64 // fraction of balance per entry
	Volatility       float64
	MaxOpenPositions int // zero means unlimited
	ReportEvery      int // scans between summaries; zero disables
	DryRun           bool
}

// ScanStats summarises one scan pass.
type ScanStats struct {
	Found    int
	New      int
	Gated    int
	Rejected int
	Deferred int
	Approved int
	Opened   int
	Failed   int
}

// Trader is the entry loop: scan for new tokens, gate them, size and open
// positions. In dry-run mode it stops after the gate.
type Trader struct {
	scanner   domain.Scanner
	registry  CandidateRegistry
	gate      SafetyGate
	positions *PositionService
	balance   domain.BalanceProvider
	metrics   *MetricsService
	bus       domain.SignalBus
	cfg       TraderConfig
	logger    *slog.Logger
	scans     int
}

// NewTrader creates a Trader. bus may be nil.
func NewTrader(
	scanner domain.Scanner,
	registry CandidateRegistry,
	gate SafetyGate,
	positions *PositionService,
	balance domain.BalanceProvider,
	metrics *MetricsService,
	bus domain.SignalBus,
	cfg TraderConfig,
	logger *slog.Logger,
) *Trader {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Trader{
		scanner:   scanner,
		registry:  registry,
		gate:      gate,
		positions: positions,
		balance:   balance,
		metrics:   metrics,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "trader")),
	}
}

// Run scans immediately and then every interval until ctx is cancelled.
func (t *Trader) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := t.Scan(ctx); err != nil && ctx.Err() == nil {
			t.logger.ErrorContext(ctx, "trader: scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan runs one pass. Candidates are gated oldest first. A definitive safety
// reject drops the token; a transient one, or a failed buy, keeps it for the
// next pass.
func (t *Trader) Scan(ctx context.Context) (ScanStats, error) {
	var stats ScanStats
	defer t.afterScan(ctx, &stats)

	found, err := t.scanner.Scan(ctx)
	if err != nil {
		return stats, fmt.Errorf("trader: %w", err)
	}
	stats.Found = len(found)
	for _, c := range found {
		if t.registry.Track(c) {
			stats.New++
			t.publish(ctx, map[string]any{
				"event":      "candidate_found",
				"token":      c.Address,
				"symbol":     c.Symbol,
				"price_usd":  c.PriceUSD,
				"market_cap": c.Metrics.MarketCap,
			})
		}
	}
	t.registry.Cleanup()

	for _, c := range t.registry.Candidates() {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if t.cfg.DryRun && c.Verdict != nil && c.Verdict.Passed {
			continue
		}
		if !t.cfg.DryRun && t.atCapacity(ctx) {
			break
		}

		v := t.gate.Evaluate(ctx, c.Address)
		stats.Gated++
		t.registry.SetVerdict(c.Address, v)
		c.Verdict = &v

		if !v.Passed {
			if v.Transient {
				stats.Deferred++
			} else {
				stats.Rejected++
				t.registry.Reject(c.Address)
			}
			t.publish(ctx, map[string]any{
				"event":     "candidate_rejected",
				"token":     c.Address,
				"symbol":    c.Symbol,
				"transient": v.Transient,
				"reasons":   v.Reasons,
			})
			continue
		}
		stats.Approved++
		if t.cfg.DryRun {
			continue
		}

		if err := t.open(ctx, c); err != nil {
			switch {
			case errors.Is(err, domain.ErrAlreadyExists):
				t.registry.Remove(c.Address)
			default:
				stats.Failed++
			}
			t.logger.WarnContext(ctx, "trader: entry failed",
				slog.String("symbol", c.Symbol),
				slog.String("token", c.Address),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.Opened++
		t.registry.Remove(c.Address)
	}
	return stats, nil
}

func (t *Trader) open(ctx context.Context, c domain.CandidateToken) error {
	balance, err := t.balance.Balance(ctx)
	if err != nil {
		return fmt.Errorf("trader: balance: %w", err)
	}
	size := PositionSize(balance, t.cfg.MaxPositionSize, t.cfg.Volatility)
	if size <= 0 {
		return fmt.Errorf("trader: no balance to size entry (balance %.4f)", balance)
	}
	_, err = t.positions.Open(ctx, c, size)
	return err
}

func (t *Trader) atCapacity(ctx context.Context) bool {
	if t.cfg.MaxOpenPositions <= 0 {
		return false
	}
	open, err := t.positions.ListOpen(ctx)
	return err == nil && len(open) >= t.cfg.MaxOpenPositions
}

func (t *Trader) afterScan(ctx context.Context, stats *ScanStats) {
	t.scans++
	t.logger.InfoContext(ctx, "trader: scan pass",
		slog.Int("scan", t.scans),
		slog.Int("found", stats.Found),
		slog.Int("new", stats.New),
		slog.Int("gated", stats.Gated),
		slog.Int("rejected", stats.Rejected),
		slog.Int("deferred", stats.Deferred),
		slog.Int("opened", stats.Opened),
		slog.Int("pending", t.registry.Pending()),
	)
	if t.cfg.ReportEvery > 0 && t.scans%t.cfg.ReportEvery == 0 {
		t.Report(ctx)
	}
}

// Report logs the rendered performance summary.
func (t *Trader) Report(ctx context.Context) {
	if t.metrics == nil {
		return
	}
	sum, err := t.metrics.Summary(ctx)
	if err != nil {
		t.logger.WarnContext(ctx, "trader: summary failed", slog.String("error", err.Error()))
		return
	}
	open, _ := t.positions.ListOpen(ctx)

	var buf bytes.Buffer
	report.RenderSummary(&buf, sum, open)
	t.logger.InfoContext(ctx, "trader: performance summary\n"+buf.String(),
		slog.Float64("win_rate", sum.WinRate),
		slog.Float64("total_profit_loss", sum.TotalProfitLoss),
		slog.Int("open_positions", sum.OpenPositions),
		slog.Int("potential_trades", sum.PotentialTrades),
	)
}

func (t *Trader) publish(ctx context.Context, payload map[string]any) {
	if t.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	if err := t.bus.Publish(ctx, domain.ChannelCandidates, data); err != nil {
		t.logger.WarnContext(ctx, "trader: candidate publish failed", slog.String("error", err.Error()))
	}
}

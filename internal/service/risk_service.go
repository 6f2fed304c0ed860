package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/monitoring"
)

// RiskMonitorConfig holds the tunable parameters of the position poller.
type RiskMonitorConfig struct {
	Interval time.Duration
	Workers  int
}

// TickStats summarises one evaluation pass.
type TickStats struct {
	Evaluated int
	Skipped   int
	Closed    int
	Failed    int
}

// RiskMonitor periodically prices every open position in one batch and runs
// the risk engine for each of them. Positions are evaluated in parallel;
// evaluation of a single position is ordered by the store's writer lock.
type RiskMonitor struct {
	positions *PositionService
	prices    *PriceService
	cfg       RiskMonitorConfig
	logger    *slog.Logger
}

// NewRiskMonitor creates a RiskMonitor.
func NewRiskMonitor(
	positions *PositionService,
	prices *PriceService,
	cfg RiskMonitorConfig,
	logger *slog.Logger,
) *RiskMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &RiskMonitor{
		positions: positions,
		prices:    prices,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "risk_monitor")),
	}
}

// Run ticks until ctx is cancelled. Call in a goroutine.
func (m *RiskMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.logger.ErrorContext(ctx, "risk monitor tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick prices all open positions once and applies the engine's decisions.
// Tokens without a quote are skipped; their highest price is not advanced.
func (m *RiskMonitor) Tick(ctx context.Context) (TickStats, error) {
	start := time.Now()
	defer func() { monitoring.ObserveTick(time.Since(start).Seconds()) }()

	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		return TickStats{}, fmt.Errorf("risk_monitor: %w", err)
	}
	if len(open) == 0 {
		return TickStats{}, nil
	}

	seen := make(map[string]bool, len(open))
	tokens := make([]string, 0, len(open))
	for _, p := range open {
		if !seen[p.TokenAddress] {
			seen[p.TokenAddress] = true
			tokens = append(tokens, p.TokenAddress)
		}
	}

	quotes, missing, err := m.prices.Fetch(ctx, tokens)
	if err != nil {
		return TickStats{Skipped: len(open)}, fmt.Errorf("risk_monitor: %w", err)
	}
	if len(missing) > 0 {
		m.logger.WarnContext(ctx, "risk_monitor: no quote, skipping tokens this tick",
			slog.Int("count", len(missing)),
			slog.Any("tokens", missing),
		)
	}

	var (
		evaluated, closed, failed atomic.Int32
		g                         errgroup.Group
	)
	g.SetLimit(m.cfg.Workers)

	skipped := 0
	for _, pos := range open {
		q, ok := quotes[pos.TokenAddress]
		if !ok {
			skipped++
			continue
		}
		g.Go(func() error {
			res, err := m.positions.OnPrice(ctx, pos.ID, q)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrPositionClosed):
				return nil
			case errors.Is(err, domain.ErrExecutionFailed):
				failed.Add(1)
				m.logger.WarnContext(ctx, "risk_monitor: exit execution failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
			default:
				failed.Add(1)
				m.logger.ErrorContext(ctx, "risk_monitor: evaluate failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			evaluated.Add(1)
			if res.Closed != nil {
				closed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := TickStats{
		Evaluated: int(evaluated.Load()),
		Skipped:   skipped,
		Closed:    int(closed.Load()),
		Failed:    int(failed.Load()),
	}
	m.logger.DebugContext(ctx, "risk_monitor: tick done",
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("skipped", stats.Skipped),
		slog.Int("closed", stats.Closed),
		slog.Int("failed", stats.Failed),
		slog.Duration("took", time.Since(start)),
	)
	return stats, nil
}

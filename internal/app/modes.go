package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/solanabot/internal/blob/s3"
	"github.com/alanyoungcy/solanabot/internal/config"
	"github.com/alanyoungcy/solanabot/internal/crypto"
	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/executor"
	"github.com/alanyoungcy/solanabot/internal/monitoring"
	"github.com/alanyoungcy/solanabot/internal/platform/jupiter"
	"github.com/alanyoungcy/solanabot/internal/platform/solana"
	"github.com/alanyoungcy/solanabot/internal/risk"
	"github.com/alanyoungcy/solanabot/internal/safety"
	"github.com/alanyoungcy/solanabot/internal/scanner"
	"github.com/alanyoungcy/solanabot/internal/sentiment"
	"github.com/alanyoungcy/solanabot/internal/server"
	"github.com/alanyoungcy/solanabot/internal/server/handler"
	"github.com/alanyoungcy/solanabot/internal/server/ws"
	"github.com/alanyoungcy/solanabot/internal/service"
)

// gateway is what the modes need from an execution backend.
type gateway interface {
	domain.ExecutionGateway
	domain.BalanceProvider
}

// PreviewMode trades against a paper gateway that fills at the DexScreener
// price from the configured preview balance.
func (a *App) PreviewMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting preview mode",
		slog.Float64("balance_sol", a.cfg.Trading.PreviewBalance),
	)
	gw := executor.NewPaperGateway(deps.DexScreener, a.cfg.Trading.PreviewBalance, a.logger)
	return a.runEngine(ctx, deps, gw, false)
}

// LiveMode swaps through Jupiter and submits signed transactions over
// Solana RPC.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		KeypairPath:      a.cfg.Wallet.KeypairPath,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: live mode: %w", err)
	}
	wallet := crypto.NewWallet(key)

	chain := solana.NewClient(a.cfg.Solana.RPCURL, a.cfg.Solana.Commitment, a.cfg.Solana.Timeout.Duration)
	swapper := jupiter.NewClient(
		a.cfg.Jupiter.BaseURL,
		a.cfg.Jupiter.APIKey,
		a.cfg.Jupiter.PriorityFeeLamports,
		a.cfg.Jupiter.Timeout.Duration,
	)
	gw := executor.NewLiveGateway(swapper, chain, wallet, deps.DexScreener, executor.LiveConfig{
		SlippageBps:    a.cfg.Jupiter.SlippageBps,
		ConfirmTimeout: a.cfg.Jupiter.ConfirmTimeout.Duration,
	}, a.logger)

	balance, err := gw.Balance(ctx)
	if err != nil {
		return fmt.Errorf("app: live mode: wallet balance: %w", err)
	}
	a.logger.InfoContext(ctx, "starting live mode",
		slog.String("wallet", wallet.Address()),
		slog.Float64("balance_sol", balance),
	)
	return a.runEngine(ctx, deps, gw, false)
}

// MonitorMode scans and gates tokens and reports, without opening or
// evaluating positions.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	gw := executor.NewPaperGateway(deps.DexScreener, a.cfg.Trading.PreviewBalance, a.logger)
	return a.runEngine(ctx, deps, gw, true)
}

// runEngine builds the services on top of gw and runs the trader, the risk
// monitor, the archiver and the API server until ctx is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, gw gateway, dryRun bool) error {
	engine, err := risk.NewEngine(riskPolicy(a.cfg.Risk))
	if err != nil {
		return fmt.Errorf("app: risk engine: %w", err)
	}

	positions := service.NewPositionService(
		deps.Store, engine, gw, deps.Journal, deps.Audit,
		deps.SignalBus, deps.LockManager, deps.Notifier, a.logger,
	)
	if _, err := positions.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore positions: %w", err)
	}

	prices := service.NewPriceService(deps.DexScreener, deps.PriceCache, deps.SignalBus, a.logger)
	registry := scanner.NewRegistry(a.cfg.Scanner.CandidateTTL.Duration)
	scan := scanner.New(deps.DexScreener, scannerFilters(a.cfg.Scanner), sentiment.Placeholder{}, a.logger)
	gate := safety.NewGate(deps.RugCheck, safety.Policy{
		ScoreThreshold: a.cfg.RugCheck.ScoreThreshold,
		CriticalRisks:  a.cfg.RugCheck.CriticalRisks,
		Timeout:        a.cfg.RugCheck.Timeout.Duration,
	}, a.logger)
	metrics := service.NewMetricsService(deps.Store, registry)

	trader := service.NewTrader(scan, registry, gate, positions, gw, metrics, deps.SignalBus, service.TraderConfig{
		Interval:         a.cfg.Scanner.Interval.Duration,
		MaxPositionSize:  a.cfg.Trading.MaxPositionSize,
		Volatility:       a.cfg.Trading.Volatility,
		MaxOpenPositions: a.cfg.Trading.MaxOpenPositions,
		ReportEvery:      a.cfg.Trading.ReportEvery,
		DryRun:           dryRun,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return trader.Run(ctx)
	})

	if !dryRun {
		monitor := service.NewRiskMonitor(positions, prices, service.RiskMonitorConfig{
			Interval: a.cfg.Risk.PollInterval.Duration,
			Workers:  a.cfg.Risk.Workers,
		}, a.logger)
		g.Go(func() error {
			return monitor.Run(ctx)
		})
	}

	var archiver *s3blob.HistoryArchiver
	if deps.BlobWriter != nil {
		archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, positions, deps.Audit,
			func(closed []domain.ClosedPosition) domain.Summary {
				return service.Summarize(nil, closed, 0)
			}, a.logger)
		g.Go(func() error {
			return a.runArchiver(ctx, archiver)
		})
	}

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, positions, metrics, registry, archiver)
	}

	return g.Wait()
}

// runArchiver archives the previous UTC day at startup and then on every
// archive interval. Failures are logged and retried on the next tick.
func (a *App) runArchiver(ctx context.Context, archiver *s3blob.HistoryArchiver) error {
	ticker := time.NewTicker(a.cfg.S3.ArchiveInterval.Duration)
	defer ticker.Stop()
	for {
		n, err := archiver.ArchiveHistory(ctx, time.Now().UTC())
		switch {
		case err != nil && ctx.Err() == nil:
			monitoring.RecordError("archive")
			a.logger.ErrorContext(ctx, "history archive failed", slog.String("error", err.Error()))
		case n > 0:
			a.logger.InfoContext(ctx, "history archived", slog.Int64("positions", n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// startServer registers the dashboard API and the WebSocket hub and serves
// them until ctx is cancelled.
func (a *App) startServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	positions *service.PositionService,
	metrics *service.MetricsService,
	registry *scanner.Registry,
	archiver *s3blob.HistoryArchiver,
) {
	startedAt := time.Now().UTC()

	var archives handler.ArchiveStore
	if archiver != nil {
		archives = archiver
	}

	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
		OpenPositions: func(ctx context.Context) int {
			open, err := positions.ListOpen(ctx)
			if err != nil {
				return 0
			}
			return len(open)
		},
		CheckOrigin: checkOrigin(a.cfg.Server.CORSOrigins),
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
		Limiter:           deps.RateLimiter,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(deps.Checks, a.logger),
		Status:     handler.NewStatusHandler(positions, metrics, a.cfg.Mode, startedAt, a.logger),
		Positions:  handler.NewPositionHandler(positions, a.logger),
		History:    handler.NewHistoryHandler(positions, archives, a.logger),
		Candidates: handler.NewCandidateHandler(registry),
		Audit:      handler.NewAuditHandler(deps.Audit, a.logger),
		Metrics:    monitoring.Handler(),
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// riskPolicy maps the risk configuration to an engine policy.
func riskPolicy(rc config.RiskConfig) risk.Policy {
	if strings.EqualFold(rc.TakeProfitMode, "single") {
		return risk.SingleTarget(rc.StopLossPct, rc.TrailingStopPct, rc.DefaultTakeProfitPct)
	}
	return risk.Policy{
		StopLossPct:      rc.StopLossPct,
		TrailingStopPct:  rc.TrailingStopPct,
		TakeProfitLevels: rc.TakeProfitLevels,
		ExitPolicy:       risk.ExitPolicy(strings.ToLower(rc.ExitPolicy)),
		ReleaseFraction:  rc.ReleaseFraction,
	}
}

func scannerFilters(sc config.ScannerConfig) scanner.Filters {
	return scanner.Filters{
		MinMarketCap:    sc.MinMarketCap,
		MaxMarketCap:    sc.MaxMarketCap,
		MaxAge:          sc.MaxTokenAge.Duration,
		MinLiquidityUSD: sc.MinLiquidityUSD,
		MinTxns1h:       sc.MinTxns1h,
		MinBuySellRatio: sc.MinBuySellRatio,
		VolumeSpike:     sc.VolumeSpike,
		MaxPriceDrop1h:  sc.MaxPriceDrop1h,
		MinHolders:      sc.MinHolders,
	}
}

// checkOrigin restricts WebSocket upgrades to the CORS origins. Requests
// without an Origin header (non-browser clients) are allowed.
func checkOrigin(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/monitoring"
	"github.com/alanyoungcy/solanabot/internal/risk"
)

const (
	openLockTTL = 2 * time.Minute
	sizeEpsilon = 1e-9
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TickResult describes what happened to one position during an evaluation
// or an applied action.
type TickResult struct {
	Position domain.Position
	Actions  []domain.Action
	Closed   *domain.ClosedPosition
}

// PositionService is the position lifecycle controller. It opens positions
// through the execution gateway, applies risk engine decisions, and moves
// fully exited positions to the closed history exactly once.
//
// Journal, audit, bus, locks and notifier are optional; a nil value disables
// that side effect.
type PositionService struct {
	store    domain.PositionStore
	engine   *risk.Engine
	gateway  domain.ExecutionGateway
	journal  domain.PositionJournal
	audit    domain.AuditStore
	bus      domain.SignalBus
	locks    domain.LockManager
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	store domain.PositionStore,
	engine *risk.Engine,
	gateway domain.ExecutionGateway,
	journal domain.PositionJournal,
	audit domain.AuditStore,
	bus domain.SignalBus,
	locks domain.LockManager,
	notifier Notifier,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		store:    store,
		engine:   engine,
		gateway:  gateway,
		journal:  journal,
		audit:    audit,
		bus:      bus,
		locks:    locks,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "position_service")),
	}
}

// Open buys quoteSize worth of the candidate and records the new position.
// The candidate must carry a passing safety verdict. Nothing is recorded if
// the buy fails.
func (s *PositionService) Open(ctx context.Context, c domain.CandidateToken, quoteSize float64) (domain.Position, error) {
	if c.Verdict == nil || !c.Verdict.Passed {
		return domain.Position{}, fmt.Errorf("position_service: open %s: %w", c.Address, domain.ErrSafetyRejected)
	}
	if quoteSize <= 0 || math.IsNaN(quoteSize) {
		return domain.Position{}, fmt.Errorf("position_service: open %s: bad quote size %v", c.Address, quoteSize)
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "open:"+c.Address, openLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Position{}, fmt.Errorf("position_service: open %s: %w", c.Address, domain.ErrAlreadyExists)
			}
			return domain.Position{}, fmt.Errorf("position_service: open lock %s: %w", c.Address, err)
		}
		defer unlock()
	}

	if existing, err := s.store.GetByToken(ctx, c.Address); err == nil {
		return domain.Position{}, fmt.Errorf("position_service: open %s: held by %s: %w",
			c.Address, existing.ID, domain.ErrAlreadyExists)
	}

	fill, err := s.gateway.Buy(ctx, c.Address, quoteSize)
	if err == nil && (fill.ExecutedSize <= 0 || fill.ExecutedPrice <= 0) {
		err = fmt.Errorf("empty fill %+v", fill)
	}
	monitoring.RecordExecution("buy", err == nil)
	if err != nil {
		err = asExecutionFailed(err)
		s.alert(ctx, "execution_failed", "Buy failed",
			fmt.Sprintf("%s (%s): %v", c.Symbol, c.Address, err))
		return domain.Position{}, fmt.Errorf("position_service: buy %s: %w", c.Address, err)
	}

	pos := s.engine.NewPosition(c, fill, s.now())
	if err := s.store.Insert(ctx, pos); err != nil {
		s.logger.ErrorContext(ctx, "position_service: bought but could not record position",
			slog.String("token", c.Address),
			slog.Float64("size", fill.ExecutedSize),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("position_service: insert position: %w", err)
	}

	s.journalPosition(ctx, pos)
	s.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":       "position_opened",
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"token":       pos.TokenAddress,
		"entry_price": pos.EntryPrice,
		"size":        pos.Size,
		"stop_loss":   pos.StopLossPrice,
	})
	s.auditLog(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"token":       pos.TokenAddress,
		"entry_price": pos.EntryPrice,
		"size":        pos.Size,
		"quote_size":  quoteSize,
		"signature":   fill.Signature,
	})
	s.alert(ctx, "position_opened", "Position opened",
		fmt.Sprintf("%s at %.8g, size %.4f, stop %.8g", pos.Symbol, pos.EntryPrice, pos.Size, pos.StopLossPrice))
	monitoring.UpdatePrice(pos.Symbol, pos.EntryPrice)

	s.logger.InfoContext(ctx, "position_service: position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size", pos.Size),
		slog.Float64("stop_loss", pos.StopLossPrice),
	)
	return pos, nil
}

// OnPrice evaluates one position against a fresh quote and applies the
// resulting actions. Exits that failed on earlier ticks are retried first.
// A returned error wrapping domain.ErrExecutionFailed means at least one
// exit is still pending; the rest of the tick was applied.
func (s *PositionService) OnPrice(ctx context.Context, id string, q domain.Quote) (TickResult, error) {
	var (
		execErr  error
		executed []domain.Action
		moved    bool
	)
	now := s.now()

	pos, closed, err := s.store.Apply(ctx, id, func(p *domain.Position) (*domain.ClosedPosition, error) {
		d, err := s.engine.Evaluate(*p, q.PriceUSD, now)
		if err != nil {
			return nil, err
		}
		*p = d.Position
		if !q.Metrics.UpdatedAt.IsZero() {
			p.Metrics = q.Metrics
		}
		moved = d.StopMoved

		actions := d.Actions
		if d.Kind() != domain.ActionStopLossExit {
			actions = append(append([]domain.Action(nil), p.PendingExits...), actions...)
		}
		executed = actions
		cp, errs := s.execute(ctx, p, actions, now)
		execErr = errors.Join(errs...)
		return cp, nil
	})
	if err != nil {
		return TickResult{}, s.applyError(ctx, id, err)
	}

	res := TickResult{Position: pos, Actions: executed, Closed: closed}
	s.afterApply(ctx, res, moved)
	if execErr != nil {
		return res, fmt.Errorf("position_service: position %s: %w", id, asExecutionFailed(execErr))
	}
	return res, nil
}

// ApplyAction applies an externally supplied action to a position under the
// same per-position ordering as OnPrice. A trailing update only ever raises
// the stop; MANUAL_EXIT and STOP_LOSS_EXIT sell everything that is left.
// PARTIAL_TAKE_PROFIT must name a configured level and sells only when that
// level flips to hit; without a quantity it is sized by the risk policy.
// Re-applying a close or an already hit level is a no-op.
func (s *PositionService) ApplyAction(ctx context.Context, id string, action domain.Action) (TickResult, error) {
	var (
		execErr  error
		executed []domain.Action
		moved    bool
	)
	now := s.now()
	action.PositionID = id
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	pos, closed, err := s.store.Apply(ctx, id, func(p *domain.Position) (*domain.ClosedPosition, error) {
		switch action.Kind {
		case domain.ActionNone:
			return nil, nil
		case domain.ActionTrailingStopUpdate:
			if action.StopLossPrice > p.StopLossPrice {
				p.StopLossPrice = action.StopLossPrice
				p.UpdatedAt = now
				moved = true
			}
			executed = []domain.Action{action}
			return nil, nil
		case domain.ActionPartialTakeProfit, domain.ActionStopLossExit, domain.ActionManualExit:
		default:
			return nil, fmt.Errorf("position_service: unknown action %q: %w", action.Kind, domain.ErrInvalidState)
		}
		if p.IsFlat() {
			return nil, fmt.Errorf("position_service: apply to %s: nothing left to sell: %w", id, domain.ErrInvalidState)
		}
		if action.Price <= 0 {
			action.Price = p.CurrentPrice
		}
		if action.Kind == domain.ActionPartialTakeProfit {
			l := levelFor(p, action.Level)
			if l == nil {
				return nil, fmt.Errorf("position_service: apply to %s: no take profit level %v: %w",
					id, action.Level, domain.ErrInvalidState)
			}
			if l.Hit {
				return nil, errLevelHit
			}
			if action.Quantity <= 0 {
				action.Quantity, _ = s.engine.ReleaseQuantity(*p, action.Level)
			}
			if action.Quantity <= sizeEpsilon {
				return nil, fmt.Errorf("position_service: apply to %s: level %v releases nothing: %w",
					id, action.Level, domain.ErrInvalidState)
			}
			at := now
			l.Hit = true
			l.HitAt = &at
		}

		actions := []domain.Action{action}
		if !action.IsFullExit() {
			actions = append(append([]domain.Action(nil), p.PendingExits...), action)
		}
		executed = actions
		p.UpdatedAt = now
		cp, errs := s.execute(ctx, p, actions, now)
		execErr = errors.Join(errs...)
		return cp, nil
	})
	if err != nil {
		if errors.Is(err, errLevelHit) || (errors.Is(err, domain.ErrPositionClosed) && action.IsFullExit()) {
			if final, getErr := s.store.Get(ctx, id); getErr == nil {
				return TickResult{Position: final}, nil
			}
		}
		return TickResult{}, s.applyError(ctx, id, err)
	}

	res := TickResult{Position: pos, Actions: executed, Closed: closed}
	s.afterApply(ctx, res, moved)
	if execErr != nil {
		return res, fmt.Errorf("position_service: position %s: %w", id, asExecutionFailed(execErr))
	}
	return res, nil
}

// errLevelHit aborts an ApplyAction for a level that already fired; the
// caller sees a no-op.
var errLevelHit = errors.New("take profit level already hit")

func levelFor(p *domain.Position, multiplier float64) *domain.TakeProfitLevel {
	for i := range p.TakeProfitLevels {
		if p.TakeProfitLevels[i].Multiplier == multiplier {
			return &p.TakeProfitLevels[i]
		}
	}
	return nil
}

// Close liquidates a position on operator request.
func (s *PositionService) Close(ctx context.Context, id string) (TickResult, error) {
	return s.ApplyAction(ctx, id, domain.Action{Kind: domain.ActionManualExit})
}

// execute sells for every exit action in order while the caller holds the
// position's writer lock. Failed or partially filled exits are re-queued on
// p.PendingExits. It returns the closed record once nothing is left.
func (s *PositionService) execute(ctx context.Context, p *domain.Position, actions []domain.Action, now time.Time) (*domain.ClosedPosition, []error) {
	var errs []error
	p.PendingExits = nil

	for _, a := range actions {
		monitoring.RecordAction(string(a.Kind))
		if !a.IsExit() {
			continue
		}

		qty := math.Min(a.Quantity, p.Size)
		if a.IsFullExit() {
			qty = p.Size
		}
		if qty <= sizeEpsilon {
			continue
		}

		fill, err := s.gateway.Sell(ctx, p.TokenAddress, qty)
		if err == nil && fill.ExecutedSize <= 0 {
			err = fmt.Errorf("empty fill %+v", fill)
		}
		monitoring.RecordExecution("sell", err == nil)
		if err != nil {
			a.Quantity = qty
			a.Attempts++
			a.LastError = err.Error()
			p.PendingExits = append(p.PendingExits, a)
			errs = append(errs, fmt.Errorf("sell %s %v: %w", a.Kind, qty, err))
			s.logger.WarnContext(ctx, "position_service: exit failed, keeping it scheduled",
				slog.String("position_id", p.ID),
				slog.String("kind", string(a.Kind)),
				slog.Float64("quantity", qty),
				slog.Int("attempts", a.Attempts),
				slog.String("error", err.Error()),
			)
			continue
		}

		sold := math.Min(fill.ExecutedSize, p.Size)
		price := fill.ExecutedPrice
		if price <= 0 {
			price = a.Price
		}
		p.Size -= sold
		p.Exits = append(p.Exits, domain.Exit{
			Reason: a.ExitReason(),
			Level:  a.Level,
			Price:  price,
			Size:   sold,
			At:     now,
		})

		if p.IsFlat() {
			p.Size = 0
			cp := domain.NewClosedPosition(*p, a.ExitReason(), price, now)
			return &cp, errs
		}
		if rest := qty - sold; rest > sizeEpsilon {
			a.Quantity = rest
			p.PendingExits = append(p.PendingExits, a)
		}
	}
	return nil, errs
}

func (s *PositionService) applyError(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, domain.ErrPositionClosed):
		s.logger.DebugContext(ctx, "position_service: position already closed",
			slog.String("position_id", id))
	case errors.Is(err, domain.ErrInvalidState):
		s.logger.WarnContext(ctx, "position_service: invalid state",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		monitoring.RecordError("invalid_state")
	}
	return fmt.Errorf("position_service: apply %s: %w", id, err)
}

// afterApply runs the non-fatal side effects of a successful Apply.
func (s *PositionService) afterApply(ctx context.Context, res TickResult, stopMoved bool) {
	pos := res.Position
	monitoring.UpdatePrice(pos.Symbol, pos.CurrentPrice)

	for _, a := range res.Actions {
		payload := map[string]any{
			"event":       "action",
			"id":          uuid.NewString(),
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"kind":        string(a.Kind),
			"level":       a.Level,
			"quantity":    a.Quantity,
			"price":       a.Price,
			"stop_loss":   pos.StopLossPrice,
			"pending":     a.LastError != "",
		}
		s.publish(ctx, domain.ChannelActions, payload)
		s.appendStream(ctx, payload)
	}

	if res.Closed == nil {
		if len(res.Actions) > 0 || stopMoved {
			s.journalPosition(ctx, pos)
		}
		for _, a := range res.Actions {
			if a.Kind == domain.ActionPartialTakeProfit && a.LastError == "" {
				s.alert(ctx, "take_profit", "Take profit",
					fmt.Sprintf("%s level %.2fx sold %.4f at %.8g", pos.Symbol, a.Level, a.Quantity, a.Price))
			}
		}
		if len(pos.PendingExits) > 0 {
			s.alert(ctx, "execution_failed", "Exit pending",
				fmt.Sprintf("%s: %d exit(s) failed and will be retried", pos.Symbol, len(pos.PendingExits)))
		}
		return
	}

	cp := *res.Closed
	if s.journal != nil {
		if err := s.journal.SaveClosed(ctx, cp); err != nil {
			s.logger.WarnContext(ctx, "position_service: journal close failed",
				slog.String("position_id", cp.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":           "position_closed",
		"position_id":     cp.PositionID,
		"symbol":          cp.Symbol,
		"exit_reason":     string(cp.ExitReason),
		"exit_price":      cp.ExitPrice,
		"profit_loss_pct": cp.ProfitLossPct,
	})
	s.auditLog(ctx, "position_closed", map[string]any{
		"position_id":     cp.PositionID,
		"token":           cp.TokenAddress,
		"entry_price":     cp.EntryPrice,
		"avg_exit_price":  cp.AvgExitPrice,
		"exit_reason":     string(cp.ExitReason),
		"profit_loss_pct": cp.ProfitLossPct,
		"levels_hit":      cp.LevelsHit,
	})
	s.alert(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s: %+.2f%% after %s", cp.Symbol, cp.ExitReason, cp.ProfitLossPct, cp.Duration().Round(time.Second)))
	monitoring.RecordClose(string(cp.ExitReason), cp.ProfitLossPct)
	monitoring.ForgetPrice(cp.Symbol)

	s.logger.InfoContext(ctx, "position_service: position closed",
		slog.String("position_id", cp.PositionID),
		slog.String("reason", string(cp.ExitReason)),
		slog.Float64("avg_exit_price", cp.AvgExitPrice),
		slog.Float64("profit_loss_pct", cp.ProfitLossPct),
	)
}

// historyRestorer is implemented by stores that can preload closed history.
type historyRestorer interface {
	RestoreClosed(ctx context.Context, history []domain.ClosedPosition) int
}

// Restore reloads journaled open positions and closed history into the store.
func (s *PositionService) Restore(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}

	// Closed history goes in first so a journaled snapshot of an already
	// closed position is rejected by the store instead of reopening it.
	if r, ok := s.store.(historyRestorer); ok {
		history, err := s.journal.ListClosed(ctx, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("position_service: load closed history: %w", err)
		}
		r.RestoreClosed(ctx, history)
	}

	open, err := s.journal.LoadOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("position_service: load open positions: %w", err)
	}
	n := 0
	for _, pos := range open {
		if err := s.store.Insert(ctx, pos); err != nil {
			s.logger.WarnContext(ctx, "position_service: skip journaled position",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}

	s.logger.InfoContext(ctx, "position_service: restored positions", slog.Int("open", n))
	return n, nil
}

// Get returns a snapshot of one position.
func (s *PositionService) Get(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %s: %w", id, err)
	}
	return pos, nil
}

// ListOpen returns snapshots of every open position.
func (s *PositionService) ListOpen(ctx context.Context) ([]domain.Position, error) {
	out, err := s.store.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open: %w", err)
	}
	return out, nil
}

// ListClosed returns the closed history, most recent first.
func (s *PositionService) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedPosition, error) {
	out, err := s.store.ListClosed(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list closed: %w", err)
	}
	return out, nil
}

func (s *PositionService) journalPosition(ctx context.Context, pos domain.Position) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SavePosition(ctx, pos); err != nil {
		s.logger.WarnContext(ctx, "position_service: journal save failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "position_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) appendStream(ctx context.Context, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.StreamAppend(ctx, domain.StreamActions, evt); err != nil {
		s.logger.WarnContext(ctx, "position_service: stream append failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) alert(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "position_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func asExecutionFailed(err error) error {
	if errors.Is(err, domain.ErrExecutionFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
}

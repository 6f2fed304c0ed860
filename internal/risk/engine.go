package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

const sizeEpsilon = 1e-9

// Decision is the outcome of evaluating one position against one price.
// Position is the updated copy; the caller decides whether to persist it.
type Decision struct {
	Position     domain.Position
	Actions      []domain.Action
	PreviousStop float64
	StopMoved    bool
}

// Kind returns the kind of the first action, or NONE.
func (d Decision) Kind() domain.ActionKind {
	if len(d.Actions) == 0 {
		return domain.ActionNone
	}
	return d.Actions[0].Kind
}

// Engine is a stateless evaluator. It is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine creates an Engine for the given policy.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// NewPosition builds the OPEN position for a fill: the stop sits at
// stop_loss_pct under the entry and no level is hit.
func (e *Engine) NewPosition(c domain.CandidateToken, fill domain.Fill, now time.Time) domain.Position {
	return domain.Position{
		ID:               domain.PositionID(c.Address, now),
		Symbol:           c.Symbol,
		TokenAddress:     c.Address,
		PairAddress:      c.PairAddress,
		EntryPrice:       fill.ExecutedPrice,
		EntryTime:        now,
		InitialSize:      fill.ExecutedSize,
		Size:             fill.ExecutedSize,
		CurrentPrice:     fill.ExecutedPrice,
		HighestPrice:     fill.ExecutedPrice,
		StopLossPrice:    e.policy.InitialStop(fill.ExecutedPrice),
		TakeProfitLevels: e.policy.Levels(),
		Status:           domain.PositionStatusOpen,
		Metrics:          c.Metrics,
		UpdatedAt:        now,
	}
}

// Evaluate applies one price observation to pos.
//
// In order: the current price is recorded; a new high ratchets the stop up to
// highest*(1-trailing); a price at or under the stop exits everything and no
// take-profit is considered; otherwise every crossed level not yet hit is
// taken in ascending order. A stop that moved without any exit yields a
// TRAILING_STOP_UPDATE.
func (e *Engine) Evaluate(pos domain.Position, price float64, now time.Time) (Decision, error) {
	if !pos.IsOpen() || pos.IsFlat() {
		return Decision{}, fmt.Errorf("risk: evaluate %s: status %s size %v: %w",
			pos.ID, pos.Status, pos.Size, domain.ErrInvalidState)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Decision{}, fmt.Errorf("risk: evaluate %s: bad price %v: %w",
			pos.ID, price, domain.ErrPriceFeedUnavailable)
	}

	next := pos.Clone()
	next.CurrentPrice = price
	next.UpdatedAt = now
	d := Decision{PreviousStop: pos.StopLossPrice}

	if price > next.HighestPrice {
		next.HighestPrice = price
		if candidate := price * (1 - e.policy.TrailingStopPct); candidate > next.StopLossPrice {
			next.StopLossPrice = candidate
		}
	}
	d.StopMoved = next.StopLossPrice > pos.StopLossPrice

	if price <= next.StopLossPrice {
		d.Actions = []domain.Action{{
			Kind:          domain.ActionStopLossExit,
			PositionID:    next.ID,
			Quantity:      next.Size,
			Price:         price,
			StopLossPrice: next.StopLossPrice,
			CreatedAt:     now,
		}}
		d.Position = next
		return d, nil
	}

	d.Actions = e.takeProfits(&next, price, now)

	if len(d.Actions) == 0 && d.StopMoved {
		d.Actions = []domain.Action{{
			Kind:          domain.ActionTrailingStopUpdate,
			PositionID:    next.ID,
			Price:         price,
			StopLossPrice: next.StopLossPrice,
			CreatedAt:     now,
		}}
	}
	d.Position = next
	return d, nil
}

// takeProfits marks every crossed level as hit and sizes the exits. Size
// already committed to pending exits is not sold twice.
func (e *Engine) takeProfits(p *domain.Position, price float64, now time.Time) []domain.Action {
	available := p.Size
	for _, pe := range p.PendingExits {
		available -= pe.Quantity
	}

	unhit := 0
	for _, l := range p.TakeProfitLevels {
		if !l.Hit {
			unhit++
		}
	}

	var actions []domain.Action
	last := len(p.TakeProfitLevels) - 1
	for i := range p.TakeProfitLevels {
		l := &p.TakeProfitLevels[i]
		if l.Hit {
			continue
		}
		if price < p.EntryPrice*l.Multiplier {
			break
		}
		at := now
		l.Hit = true
		l.HitAt = &at

		qty := e.releaseQuantity(available, unhit, i == last, len(actions) > 0)
		unhit--
		if qty <= sizeEpsilon {
			continue
		}
		available -= qty
		actions = append(actions, domain.Action{
			Kind:       domain.ActionPartialTakeProfit,
			PositionID: p.ID,
			Level:      l.Multiplier,
			Quantity:   qty,
			Price:      price,
			CreatedAt:  now,
		})
	}
	return actions
}

// ReleaseQuantity sizes the exit for one unhit level of p as Evaluate would
// if that level were the first to cross on a tick. ok is false when the
// level is not configured or already hit.
func (e *Engine) ReleaseQuantity(p domain.Position, level float64) (qty float64, ok bool) {
	available := p.Size
	for _, pe := range p.PendingExits {
		available -= pe.Quantity
	}
	idx, unhit := -1, 0
	for i, l := range p.TakeProfitLevels {
		if !l.Hit {
			unhit++
		}
		if l.Multiplier == level {
			idx = i
		}
	}
	if idx < 0 || p.TakeProfitLevels[idx].Hit {
		return 0, false
	}
	return e.releaseQuantity(available, unhit, idx == len(p.TakeProfitLevels)-1, false), true
}

func (e *Engine) releaseQuantity(available float64, unhit int, lastLevel, alreadyExiting bool) float64 {
	if available <= sizeEpsilon {
		return 0
	}
	if e.policy.ExitPolicy == ExitPolicyFullExit {
		if alreadyExiting {
			return 0
		}
		return available
	}
	if lastLevel || unhit <= 1 {
		return available
	}
	if e.policy.ReleaseFraction > 0 {
		return available * e.policy.ReleaseFraction
	}
	return available / float64(unhit)
}

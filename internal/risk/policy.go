// Package risk evaluates open positions against their stop-loss, trailing
// stop and take-profit policy.
package risk

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// ExitPolicy decides how much of the position each take-profit level sells.
type ExitPolicy string

const (
	// ExitPolicyFractional releases a share of the remaining size per level;
	// the highest level sells whatever is left.
	ExitPolicyFractional ExitPolicy = "fractional"
	// ExitPolicyFullExit sells the whole position at the first level crossed.
	ExitPolicyFullExit ExitPolicy = "full_exit"
)

// Policy holds the tunable parameters of the risk engine. Percentages are
// fractions (0.12 means 12%).
type Policy struct {
	StopLossPct      float64
	TrailingStopPct  float64
	TakeProfitLevels []float64
	ExitPolicy       ExitPolicy
	// ReleaseFraction is the share of remaining size sold per level under the
	// fractional policy. Zero splits the remaining size equally across the
	// levels not yet hit.
	ReleaseFraction float64
}

// SingleTarget builds the policy used when a single take-profit percentage is
// configured instead of a ladder.
func SingleTarget(stopLossPct, trailingStopPct, takeProfitPct float64) Policy {
	return Policy{
		StopLossPct:      stopLossPct,
		TrailingStopPct:  trailingStopPct,
		TakeProfitLevels: []float64{1 + takeProfitPct},
		ExitPolicy:       ExitPolicyFullExit,
	}
}

// Validate reports every problem with the policy.
func (p Policy) Validate() error {
	var errs []string
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("stop loss pct must be in (0,1), got %v", p.StopLossPct))
	}
	if p.TrailingStopPct <= 0 || p.TrailingStopPct >= 1 {
		errs = append(errs, fmt.Sprintf("trailing stop pct must be in (0,1), got %v", p.TrailingStopPct))
	}
	if len(p.TakeProfitLevels) == 0 {
		errs = append(errs, "at least one take profit level is required")
	}
	for _, m := range p.TakeProfitLevels {
		if m <= 1 {
			errs = append(errs, fmt.Sprintf("take profit multiplier must be > 1, got %v", m))
		}
	}
	switch p.ExitPolicy {
	case ExitPolicyFractional, ExitPolicyFullExit:
	default:
		errs = append(errs, fmt.Sprintf("unknown exit policy %q", p.ExitPolicy))
	}
	if p.ReleaseFraction < 0 || p.ReleaseFraction > 1 {
		errs = append(errs, fmt.Sprintf("release fraction must be in [0,1], got %v", p.ReleaseFraction))
	}
	if len(errs) > 0 {
		return errors.New("risk: invalid policy: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitialStop is the stop-loss price set when a position opens.
func (p Policy) InitialStop(entryPrice float64) float64 {
	return entryPrice * (1 - p.StopLossPct)
}

// Levels returns a fresh, ascending, de-duplicated ladder with no level hit.
func (p Policy) Levels() []domain.TakeProfitLevel {
	ms := append([]float64(nil), p.TakeProfitLevels...)
	sort.Float64s(ms)
	out := make([]domain.TakeProfitLevel, 0, len(ms))
	for i, m := range ms {
		if i > 0 && m == ms[i-1] {
			continue
		}
		out = append(out, domain.TakeProfitLevel{Multiplier: m})
	}
	return out
}

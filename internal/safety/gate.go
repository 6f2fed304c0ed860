// Package safety applies the entry policy on top of a safety checker: a
// minimum score, a set of critical risk names, and fail-closed handling of
// any checker failure.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/monitoring"
)

// Policy holds the gate thresholds.
type Policy struct {
	ScoreThreshold float64
	CriticalRisks  []string
	Timeout        time.Duration
}

// Gate decides whether a token may be bought.
type Gate struct {
	checker  domain.SafetyChecker
	policy   Policy
	critical map[string]bool
	logger   *slog.Logger
}

// NewGate creates a Gate.
func NewGate(checker domain.SafetyChecker, policy Policy, logger *slog.Logger) *Gate {
	critical := make(map[string]bool, len(policy.CriticalRisks))
	for _, name := range policy.CriticalRisks {
		critical[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Gate{
		checker:  checker,
		policy:   policy,
		critical: critical,
		logger:   logger.With(slog.String("component", "safety_gate")),
	}
}

// Evaluate always returns a verdict. The token passes only when the checker
// answered, the score is at least the threshold, and no critical risk is
// present. Any checker error rejects the token and marks the verdict
// transient.
func (g *Gate) Evaluate(ctx context.Context, tokenAddress string) domain.SafetyVerdict {
	if g.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.policy.Timeout)
		defer cancel()
	}

	v, err := g.checker.Assess(ctx, tokenAddress)
	if v.CheckedAt.IsZero() {
		v.CheckedAt = time.Now().UTC()
	}
	if err != nil {
		v.Passed = false
		v.Transient = true
		if v.APIError == "" {
			v.APIError = err.Error()
		}
		if len(v.Reasons) == 0 {
			v.Reasons = []string{"safety check failed"}
		}
		monitoring.RecordVerdict("transient")
		g.logger.WarnContext(ctx, "safety_gate: check failed, rejecting",
			slog.String("token", tokenAddress),
			slog.String("error", err.Error()),
		)
		return v
	}

	v.Passed = true
	v.Transient = false
	if v.Score < g.policy.ScoreThreshold {
		v.Passed = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("score %.2f < threshold %.2f", v.Score, g.policy.ScoreThreshold))
	}

	critical := v.CriticalRiskNames
	for _, name := range v.RiskNames {
		if g.critical[strings.ToLower(strings.TrimSpace(name))] && !contains(critical, name) {
			critical = append(critical, name)
		}
	}
	v.CriticalRiskNames = critical
	for _, name := range critical {
		v.Passed = false
		v.Reasons = append(v.Reasons, "critical risk: "+name)
	}

	outcome := "passed"
	if !v.Passed {
		outcome = "rejected"
	}
	monitoring.RecordVerdict(outcome)
	g.logger.InfoContext(ctx, "safety_gate: verdict",
		slog.String("token", tokenAddress),
		slog.Bool("passed", v.Passed),
		slog.Float64("score", v.Score),
		slog.String("reasons", strings.Join(v.Reasons, "; ")),
	)
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// StaticChecker returns a fixed verdict for every token. It is used in
// monitor dry-runs and tests.
type StaticChecker struct {
	Verdict domain.SafetyVerdict
	Err     error
}

// Assess implements domain.SafetyChecker.
func (s StaticChecker) Assess(ctx context.Context, _ string) (domain.SafetyVerdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.SafetyVerdict{}, err
	}
	return s.Verdict, s.Err
}

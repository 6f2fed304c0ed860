package safety

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func policy() Policy {
	return Policy{
		ScoreThreshold: 50,
		CriticalRisks:  []string{"Mint Authority still enabled", "Freeze Authority still enabled"},
		Timeout:        time.Second,
	}
}

type slowChecker struct{}

func (slowChecker) Assess(ctx context.Context, _ string) (domain.SafetyVerdict, error) {
	<-ctx.Done()
	return domain.SafetyVerdict{}, ctx.Err()
}

func TestGate(t *testing.T) {
	tests := []struct {
		name          string
		checker       domain.SafetyChecker
		wantPassed    bool
		wantTransient bool
		wantCritical  []string
	}{
		{
			name:       "clean token",
			checker:    StaticChecker{Verdict: domain.SafetyVerdict{Score: 80, RiskNames: []string{"Low Liquidity"}}},
			wantPassed: true,
		},
		{
			name:       "score at threshold passes",
			checker:    StaticChecker{Verdict: domain.SafetyVerdict{Score: 50}},
			wantPassed: true,
		},
		{
			name:    "low score",
			checker: StaticChecker{Verdict: domain.SafetyVerdict{Score: 49.9}},
		},
		{
			name:         "critical risk by name",
			checker:      StaticChecker{Verdict: domain.SafetyVerdict{Score: 95, RiskNames: []string{"mint authority still enabled"}}},
			wantCritical: []string{"mint authority still enabled"},
		},
		{
			name:         "critical risk reported by checker",
			checker:      StaticChecker{Verdict: domain.SafetyVerdict{Score: 95, CriticalRiskNames: []string{"honeypot"}}},
			wantCritical: []string{"honeypot"},
		},
		{
			name:          "checker error fails closed",
			checker:       StaticChecker{Verdict: domain.SafetyVerdict{Score: 99}, Err: errors.New("boom")},
			wantTransient: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.checker, policy(), discard())
			v := g.Evaluate(context.Background(), "MintA")
			assert.Equal(t, tt.wantPassed, v.Passed)
			assert.Equal(t, tt.wantTransient, v.Transient)
			if tt.wantCritical != nil {
				assert.Equal(t, tt.wantCritical, v.CriticalRiskNames)
			}
			if !v.Passed {
				assert.NotEmpty(t, v.Reasons)
			}
		})
	}
}

func TestGateTimeoutRejects(t *testing.T) {
	p := policy()
	p.Timeout = 20 * time.Millisecond
	g := NewGate(slowChecker{}, p, discard())

	start := time.Now()
	v := g.Evaluate(context.Background(), "MintA")
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, v.Passed)
	assert.True(t, v.Transient)
	assert.Contains(t, v.APIError, "deadline")
}

package app

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/config"
	"github.com/alanyoungcy/solanabot/internal/platform/dexscreener"
	"github.com/alanyoungcy/solanabot/internal/platform/rugcheck"
	"github.com/alanyoungcy/solanabot/internal/risk"
)

func TestRiskPolicyLevels(t *testing.T) {
	cfg := config.Defaults()
	cfg.Risk.ExitPolicy = "FULL_EXIT"

	p := riskPolicy(cfg.Risk)
	require.NoError(t, p.Validate())
	assert.Equal(t, []float64{1.5, 2, 3, 5}, p.TakeProfitLevels)
	assert.Equal(t, risk.ExitPolicyFullExit, p.ExitPolicy)
	assert.Equal(t, 0.12, p.StopLossPct)
}

func TestRiskPolicySingle(t *testing.T) {
	cfg := config.Defaults()
	cfg.Risk.TakeProfitMode = "single"
	cfg.Risk.DefaultTakeProfitPct = 0.5

	p := riskPolicy(cfg.Risk)
	require.NoError(t, p.Validate())
	assert.Equal(t, []float64{1.5}, p.TakeProfitLevels)
	assert.Equal(t, risk.ExitPolicyFullExit, p.ExitPolicy)
}

func TestScannerFilters(t *testing.T) {
	cfg := config.Defaults()
	f := scannerFilters(cfg.Scanner)
	assert.Equal(t, 6*time.Hour, f.MaxAge)
	assert.Equal(t, 25_000.0, f.MinLiquidityUSD)
	assert.Equal(t, 100, f.MinHolders)
}

func TestAPILimits(t *testing.T) {
	limits := apiLimits(config.RedisConfig{RugCheckPerMinute: 30})
	require.Len(t, limits, 1)
	assert.Equal(t, 30, limits[rugcheck.LimiterKey].Requests)
	assert.Equal(t, time.Minute, limits[rugcheck.LimiterKey].Window)
	_, ok := limits[dexscreener.LimiterKey]
	assert.False(t, ok)
}

func TestCheckOrigin(t *testing.T) {
	assert.Nil(t, checkOrigin(nil))

	check := checkOrigin([]string{"http://dash"})
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "http://DASH")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil")
	assert.False(t, check(req))
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.12, cfg.Risk.StopLossPct)
	assert.Equal(t, 0.05, cfg.Risk.TrailingStopPct)
	assert.Equal(t, []float64{1.5, 2, 3, 5}, cfg.Risk.TakeProfitLevels)
	assert.Equal(t, 0.03, cfg.Trading.MaxPositionSize)
	assert.Equal(t, time.Hour, cfg.Scanner.CandidateTTL.Duration)
	assert.Equal(t, 6*time.Hour, cfg.Scanner.MaxTokenAge.Duration)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solbot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[scanner]
interval = "30s"
min_liquidity_usd = 50000

[risk]
take_profit_levels = [2.0, 4.0]
exit_policy = "full_exit"
`), 0o600))

	t.Setenv("SOLBOT_LOG_LEVEL", "debug")
	t.Setenv("SOLBOT_RISK_STOP_LOSS_PCT", "0.2")
	t.Setenv("SOLBOT_SERVER_CORS_ORIGINS", "http://a, http://b,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Scanner.Interval.Duration)
	assert.Equal(t, 50000.0, cfg.Scanner.MinLiquidityUSD)
	assert.Equal(t, 75, cfg.Scanner.MinTxns1h, "untouched fields keep defaults")
	assert.Equal(t, []float64{2, 4}, cfg.Risk.TakeProfitLevels)
	assert.Equal(t, "full_exit", cfg.Risk.ExitPolicy)
	assert.Equal(t, 0.2, cfg.Risk.StopLossPct)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "preview", cfg.Mode)
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvFloatSlice(t *testing.T) {
	cfg := Defaults()
	t.Setenv("SOLBOT_RISK_TAKE_PROFIT_LEVELS", "1.2, 1.8")
	applyEnvOverrides(&cfg)
	assert.Equal(t, []float64{1.2, 1.8}, cfg.Risk.TakeProfitLevels)

	cfg = Defaults()
	t.Setenv("SOLBOT_RISK_TAKE_PROFIT_LEVELS", "1.2,abc")
	applyEnvOverrides(&cfg)
	assert.Equal(t, []float64{1.5, 2, 3, 5}, cfg.Risk.TakeProfitLevels)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "arbitrage" },
			wantErr: `unknown mode "arbitrage"`,
		},
		{
			name:    "live without key",
			mutate:  func(c *Config) { c.Mode = "live" },
			wantErr: "wallet: one of private_key",
		},
		{
			name: "encrypted key without password",
			mutate: func(c *Config) {
				c.Mode = "live"
				c.Wallet.EncryptedKeyPath = "/keys/wallet.json"
			},
			wantErr: "key_password is required",
		},
		{
			name:    "stop loss out of range",
			mutate:  func(c *Config) { c.Risk.StopLossPct = 1.5 },
			wantErr: "stop_loss_pct must be in (0,1)",
		},
		{
			name:    "multiplier not above one",
			mutate:  func(c *Config) { c.Risk.TakeProfitLevels = []float64{0.9, 2} },
			wantErr: "multiplier must be > 1",
		},
		{
			name:    "levels mode with single target",
			mutate:  func(c *Config) { c.Risk.DefaultTakeProfitPct = 0.5 },
			wantErr: "only valid in single mode",
		},
		{
			name:    "single mode without target",
			mutate:  func(c *Config) { c.Risk.TakeProfitMode = "single" },
			wantErr: "default_take_profit_pct must be > 0",
		},
		{
			name:    "unknown exit policy",
			mutate:  func(c *Config) { c.Risk.ExitPolicy = "half" },
			wantErr: `unknown exit_policy "half"`,
		},
		{
			name:    "market cap window inverted",
			mutate:  func(c *Config) { c.Scanner.MinMarketCap = 1_000_000 },
			wantErr: "min_market_cap must not exceed max_market_cap",
		},
		{
			name: "postgres pool",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.PoolMinConns = 20
			},
			wantErr: "pool_min_conns",
		},
		{
			name: "s3 without region",
			mutate: func(c *Config) {
				c.S3.Enabled = true
				c.S3.Region = ""
			},
			wantErr: "s3: region must not be empty",
		},
		{
			name:    "server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server: port must be 1-65535",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSingleMode(t *testing.T) {
	cfg := Defaults()
	cfg.Risk.TakeProfitMode = "single"
	cfg.Risk.DefaultTakeProfitPct = 0.5
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.LogLevel = "loud"
	cfg.Trading.MaxPositionSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 3, strings.Count(err.Error(), "\n  - "))
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "5J..."
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Notify.TelegramToken = "123:abc"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Postgres.DSN)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Empty(t, out.Wallet.KeyPassword)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "5J...", cfg.Wallet.PrivateKey)
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

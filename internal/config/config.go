// Package config defines the top-level configuration for the Solana
// new-token bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLBOT_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Solana      SolanaConfig      `toml:"solana"`
	DexScreener DexScreenerConfig `toml:"dexscreener"`
	RugCheck    RugCheckConfig    `toml:"rugcheck"`
	Jupiter     JupiterConfig     `toml:"jupiter"`
	Scanner     ScannerConfig     `toml:"scanner"`
	Risk        RiskConfig        `toml:"risk"`
	Trading     TradingConfig     `toml:"trading"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the Solana signing key sources, tried in order:
// private_key, keypair_path, encrypted_key_path.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	KeypairPath      string `toml:"keypair_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HasKey reports whether any key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.KeypairPath != "" || w.EncryptedKeyPath != ""
}

// SolanaConfig holds the JSON-RPC endpoint.
type SolanaConfig struct {
	RPCURL     string   `toml:"rpc_url"`
	Commitment string   `toml:"commitment"`
	Timeout    duration `toml:"timeout"`
}

// DexScreenerConfig holds the market data API parameters.
type DexScreenerConfig struct {
	BaseURL string   `toml:"base_url"`
	Chain   string   `toml:"chain"`
	Timeout duration `toml:"timeout"`
}

// RugCheckConfig holds the safety API parameters and the gate policy.
type RugCheckConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	ScoreThreshold float64  `toml:"score_threshold"`
	CriticalRisks  []string `toml:"critical_risks"`
	Timeout        duration `toml:"timeout"`
}

// JupiterConfig holds the swap aggregator parameters used in live mode.
type JupiterConfig struct {
	BaseURL             string   `toml:"base_url"`
	APIKey              string   `toml:"api_key"`
	SlippageBps         int      `toml:"slippage_bps"`
	PriorityFeeLamports uint64   `toml:"priority_fee_lamports"`
	ConfirmTimeout      duration `toml:"confirm_timeout"`
	Timeout             duration `toml:"timeout"`
}

// ScannerConfig holds the new-pair filters and the scan cadence.
type ScannerConfig struct {
	Interval        duration `toml:"interval"`
	CandidateTTL    duration `toml:"candidate_ttl"`
	MinLiquidityUSD float64  `toml:"min_liquidity_usd"`
	MinMarketCap    float64  `toml:"min_market_cap"`
	MaxMarketCap    float64  `toml:"max_market_cap"`
	MinTxns1h       int      `toml:"min_txns_1h"`
	MaxTokenAge     duration `toml:"max_token_age"`
	VolumeSpike     float64  `toml:"volume_spike"`
	MinBuySellRatio float64  `toml:"min_buy_sell_ratio"`
	MaxPriceDrop1h  float64  `toml:"max_price_drop_1h"`
	MinHolders      int      `toml:"min_holders"`
}

// RiskConfig holds the exit policy. Percentages are fractions.
type RiskConfig struct {
	StopLossPct     float64 `toml:"stop_loss_pct"`
	TrailingStopPct float64 `toml:"trailing_stop_pct"`
	// TakeProfitMode is "levels" (multi-level ladder) or "single" (one level
	// at 1+default_take_profit_pct that exits everything).
	TakeProfitMode       string    `toml:"take_profit_mode"`
	TakeProfitLevels     []float64 `toml:"take_profit_levels"`
	DefaultTakeProfitPct float64   `toml:"default_take_profit_pct"`
	ExitPolicy           string    `toml:"exit_policy"`
	ReleaseFraction      float64   `toml:"release_fraction"`
	PollInterval         duration  `toml:"poll_interval"`
	Workers              int       `toml:"workers"`
}

// TradingConfig holds position sizing and the preview balance.
type TradingConfig struct {
	MaxPositionSize  float64 `toml:"max_position_size"`
	Volatility       float64 `toml:"volatility"`
	MaxOpenPositions int     `toml:"max_open_positions"`
	PreviewBalance   float64 `toml:"preview_balance"`
	ReportEvery      int     `toml:"report_every"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// bot keeps no state across restarts.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
	// Per-minute request budgets for the external APIs; zero disables.
	RugCheckPerMinute    int `toml:"rugcheck_per_minute"`
	DexScreenerPerMinute int `toml:"dexscreener_per_minute"`
}

// S3Config holds S3-compatible object storage parameters for the history
// archive.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards the API when set. Bearer or X-API-Key.
	APIKey string `toml:"api_key"`
	// RequestsPerMinute limits each client IP when Redis is enabled.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
			Timeout:    duration{30 * time.Second},
		},
		DexScreener: DexScreenerConfig{
			BaseURL: "https://api.dexscreener.com/latest/dex",
			Chain:   "solana",
			Timeout: duration{15 * time.Second},
		},
		RugCheck: RugCheckConfig{
			BaseURL:        "https://api.rugcheck.xyz/v1/tokens",
			ScoreThreshold: 50,
			CriticalRisks:  []string{"Mint Authority still enabled", "Freeze Authority still enabled"},
			Timeout:        duration{10 * time.Second},
		},
		Jupiter: JupiterConfig{
			BaseURL:        "https://lite-api.jup.ag/swap/v1",
			SlippageBps:    100,
			ConfirmTimeout: duration{60 * time.Second},
			Timeout:        duration{15 * time.Second},
		},
		Scanner: ScannerConfig{
			Interval:        duration{60 * time.Second},
			CandidateTTL:    duration{time.Hour},
			MinLiquidityUSD: 25_000,
			MinMarketCap:    50_000,
			MaxMarketCap:    750_000,
			MinTxns1h:       75,
			MaxTokenAge:     duration{6 * time.Hour},
			VolumeSpike:     2.5,
			MinBuySellRatio: 0.65,
			MaxPriceDrop1h:  10,
			MinHolders:      100,
		},
		Risk: RiskConfig{
			StopLossPct:      0.12,
			TrailingStopPct:  0.05,
			TakeProfitMode:   "levels",
			TakeProfitLevels: []float64{1.5, 2, 3, 5},
			ExitPolicy:       "fractional",
			PollInterval:     duration{10 * time.Second},
			Workers:          8,
		},
		Trading: TradingConfig{
			MaxPositionSize: 0.03,
			Volatility:      0.5,
			PreviewBalance:  10,
			ReportEvery:     5,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "solbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Namespace:  "solbot",
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "solbot-data",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "execution_failed"},
		},
		Mode:     "preview",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"preview": true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: preview, live, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: live mode signs swaps.
	if strings.EqualFold(c.Mode, "live") {
		if !c.Wallet.HasKey() {
			errs = append(errs, "wallet: one of private_key, keypair_path or encrypted_key_path must be set for mode live")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Solana.RPCURL == "" {
			errs = append(errs, "solana: rpc_url must not be empty for mode live")
		}
		if c.Jupiter.BaseURL == "" {
			errs = append(errs, "jupiter: base_url must not be empty for mode live")
		}
		if c.Jupiter.SlippageBps <= 0 || c.Jupiter.SlippageBps > 5000 {
			errs = append(errs, fmt.Sprintf("jupiter: slippage_bps must be 1-5000, got %d", c.Jupiter.SlippageBps))
		}
	}

	if c.DexScreener.BaseURL == "" {
		errs = append(errs, "dexscreener: base_url must not be empty")
	}
	if c.RugCheck.BaseURL == "" {
		errs = append(errs, "rugcheck: base_url must not be empty")
	}
	if c.RugCheck.ScoreThreshold < 0 {
		errs = append(errs, "rugcheck: score_threshold must be >= 0")
	}

	// Scanner
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.CandidateTTL.Duration <= 0 {
		errs = append(errs, "scanner: candidate_ttl must be > 0")
	}
	if c.Scanner.MaxMarketCap > 0 && c.Scanner.MinMarketCap > c.Scanner.MaxMarketCap {
		errs = append(errs, "scanner: min_market_cap must not exceed max_market_cap")
	}
	if c.Scanner.MinBuySellRatio < 0 || c.Scanner.MinBuySellRatio > 1 {
		errs = append(errs, "scanner: min_buy_sell_ratio must be in [0,1]")
	}

	errs = append(errs, c.Risk.validate()...)

	// Trading
	if c.Trading.MaxPositionSize <= 0 || c.Trading.MaxPositionSize > 1 {
		errs = append(errs, fmt.Sprintf("trading: max_position_size must be in (0,1], got %v", c.Trading.MaxPositionSize))
	}
	if c.Trading.Volatility < 0 {
		errs = append(errs, "trading: volatility must be >= 0")
	}
	if c.Trading.MaxOpenPositions < 0 {
		errs = append(errs, "trading: max_open_positions must be >= 0")
	}
	if strings.EqualFold(c.Mode, "preview") && c.Trading.PreviewBalance <= 0 {
		errs = append(errs, "trading: preview_balance must be > 0 for mode preview")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if strings.ContainsAny(c.Redis.Namespace, " *?[") {
			errs = append(errs, fmt.Sprintf("redis: namespace %q must not contain spaces or glob characters", c.Redis.Namespace))
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerMinute < 0 {
			errs = append(errs, "server: requests_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (r RiskConfig) validate() []string {
	var errs []string
	if r.StopLossPct <= 0 || r.StopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("risk: stop_loss_pct must be in (0,1), got %v", r.StopLossPct))
	}
	if r.TrailingStopPct <= 0 || r.TrailingStopPct >= 1 {
		errs = append(errs, fmt.Sprintf("risk: trailing_stop_pct must be in (0,1), got %v", r.TrailingStopPct))
	}

	switch strings.ToLower(r.TakeProfitMode) {
	case "levels":
		if len(r.TakeProfitLevels) == 0 {
			errs = append(errs, "risk: take_profit_levels must not be empty in levels mode")
		}
		for _, m := range r.TakeProfitLevels {
			if m <= 1 {
				errs = append(errs, fmt.Sprintf("risk: take profit multiplier must be > 1, got %v", m))
			}
		}
		if r.DefaultTakeProfitPct != 0 {
			errs = append(errs, "risk: default_take_profit_pct is only valid in single mode")
		}
		switch strings.ToLower(r.ExitPolicy) {
		case "fractional", "full_exit":
		default:
			errs = append(errs, fmt.Sprintf("risk: unknown exit_policy %q (valid: fractional, full_exit)", r.ExitPolicy))
		}
	case "single":
		if r.DefaultTakeProfitPct <= 0 {
			errs = append(errs, "risk: default_take_profit_pct must be > 0 in single mode")
		}
		if r.ReleaseFraction != 0 {
			errs = append(errs, "risk: release_fraction is only valid in levels mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("risk: unknown take_profit_mode %q (valid: levels, single)", r.TakeProfitMode))
	}

	if r.ReleaseFraction < 0 || r.ReleaseFraction > 1 {
		errs = append(errs, "risk: release_fraction must be in [0,1]")
	}
	if r.PollInterval.Duration <= 0 {
		errs = append(errs, "risk: poll_interval must be > 0")
	}
	if r.Workers < 1 {
		errs = append(errs, "risk: workers must be >= 1")
	}
	return errs
}

package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOLBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the defaults and
// environment are used alone. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOLBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SOLBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.KeypairPath, "SOLBOT_WALLET_KEYPAIR_PATH")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SOLBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SOLBOT_WALLET_KEY_PASSWORD")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "SOLBOT_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "SOLBOT_SOLANA_COMMITMENT")
	setDuration(&cfg.Solana.Timeout, "SOLBOT_SOLANA_TIMEOUT")

	// ── DexScreener ──
	setStr(&cfg.DexScreener.BaseURL, "SOLBOT_DEXSCREENER_BASE_URL")
	setStr(&cfg.DexScreener.Chain, "SOLBOT_DEXSCREENER_CHAIN")
	setDuration(&cfg.DexScreener.Timeout, "SOLBOT_DEXSCREENER_TIMEOUT")

	// ── RugCheck ──
	setStr(&cfg.RugCheck.BaseURL, "SOLBOT_RUGCHECK_BASE_URL")
	setStr(&cfg.RugCheck.APIKey, "SOLBOT_RUGCHECK_API_KEY")
	setFloat64(&cfg.RugCheck.ScoreThreshold, "SOLBOT_RUGCHECK_SCORE_THRESHOLD")
	setStringSlice(&cfg.RugCheck.CriticalRisks, "SOLBOT_RUGCHECK_CRITICAL_RISKS")
	setDuration(&cfg.RugCheck.Timeout, "SOLBOT_RUGCHECK_TIMEOUT")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.BaseURL, "SOLBOT_JUPITER_BASE_URL")
	setStr(&cfg.Jupiter.APIKey, "SOLBOT_JUPITER_API_KEY")
	setInt(&cfg.Jupiter.SlippageBps, "SOLBOT_JUPITER_SLIPPAGE_BPS")
	setUint64(&cfg.Jupiter.PriorityFeeLamports, "SOLBOT_JUPITER_PRIORITY_FEE_LAMPORTS")
	setDuration(&cfg.Jupiter.ConfirmTimeout, "SOLBOT_JUPITER_CONFIRM_TIMEOUT")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "SOLBOT_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.CandidateTTL, "SOLBOT_SCANNER_CANDIDATE_TTL")
	setFloat64(&cfg.Scanner.MinLiquidityUSD, "SOLBOT_SCANNER_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Scanner.MinMarketCap, "SOLBOT_SCANNER_MIN_MARKET_CAP")
	setFloat64(&cfg.Scanner.MaxMarketCap, "SOLBOT_SCANNER_MAX_MARKET_CAP")
	setInt(&cfg.Scanner.MinTxns1h, "SOLBOT_SCANNER_MIN_TXNS_1H")
	setDuration(&cfg.Scanner.MaxTokenAge, "SOLBOT_SCANNER_MAX_TOKEN_AGE")
	setFloat64(&cfg.Scanner.VolumeSpike, "SOLBOT_SCANNER_VOLUME_SPIKE")
	setFloat64(&cfg.Scanner.MinBuySellRatio, "SOLBOT_SCANNER_MIN_BUY_SELL_RATIO")
	setFloat64(&cfg.Scanner.MaxPriceDrop1h, "SOLBOT_SCANNER_MAX_PRICE_DROP_1H")
	setInt(&cfg.Scanner.MinHolders, "SOLBOT_SCANNER_MIN_HOLDERS")

	// ── Risk ──
	setFloat64(&cfg.Risk.StopLossPct, "SOLBOT_RISK_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.TrailingStopPct, "SOLBOT_RISK_TRAILING_STOP_PCT")
	setStr(&cfg.Risk.TakeProfitMode, "SOLBOT_RISK_TAKE_PROFIT_MODE")
	setFloatSlice(&cfg.Risk.TakeProfitLevels, "SOLBOT_RISK_TAKE_PROFIT_LEVELS")
	setFloat64(&cfg.Risk.DefaultTakeProfitPct, "SOLBOT_RISK_DEFAULT_TAKE_PROFIT_PCT")
	setStr(&cfg.Risk.ExitPolicy, "SOLBOT_RISK_EXIT_POLICY")
	setFloat64(&cfg.Risk.ReleaseFraction, "SOLBOT_RISK_RELEASE_FRACTION")
	setDuration(&cfg.Risk.PollInterval, "SOLBOT_RISK_POLL_INTERVAL")
	setInt(&cfg.Risk.Workers, "SOLBOT_RISK_WORKERS")

	// ── Trading ──
	setFloat64(&cfg.Trading.MaxPositionSize, "SOLBOT_TRADING_MAX_POSITION_SIZE")
	setFloat64(&cfg.Trading.Volatility, "SOLBOT_TRADING_VOLATILITY")
	setInt(&cfg.Trading.MaxOpenPositions, "SOLBOT_TRADING_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Trading.PreviewBalance, "SOLBOT_TRADING_PREVIEW_BALANCE")
	setInt(&cfg.Trading.ReportEvery, "SOLBOT_TRADING_REPORT_EVERY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SOLBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SOLBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SOLBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOLBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOLBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOLBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOLBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOLBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SOLBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SOLBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SOLBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SOLBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SOLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOLBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOLBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "SOLBOT_REDIS_NAMESPACE")
	setInt(&cfg.Redis.RugCheckPerMinute, "SOLBOT_REDIS_RUGCHECK_PER_MINUTE")
	setInt(&cfg.Redis.DexScreenerPerMinute, "SOLBOT_REDIS_DEXSCREENER_PER_MINUTE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SOLBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SOLBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SOLBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SOLBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SOLBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SOLBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SOLBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SOLBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "SOLBOT_S3_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "SOLBOT_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOLBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOLBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOLBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SOLBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RequestsPerMinute, "SOLBOT_SERVER_REQUESTS_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLBOT_MODE")
	setStr(&cfg.LogLevel, "SOLBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setFloatSlice parses "1.5,2,3" style lists. The target is left untouched if
// any element fails to parse.
func setFloatSlice(dst *[]float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []float64
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return
		}
		out = append(out, f)
	}
	if len(out) > 0 {
		*dst = out
	}
}

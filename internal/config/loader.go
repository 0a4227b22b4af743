package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPOTBOT_* environment variable overrides (plus
// the flat legacy names like API_KEY and TRADING_PAIRS), and returns the
// final Config. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadFromEnv builds a Config from defaults and environment variables alone,
// for deployments that carry no TOML file.
func LoadFromEnv() *Config {
	cfg := Defaults()
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	return &cfg
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). This
// lets operators inject secrets at deploy time without touching the TOML
// file. Flat legacy names are applied first so the namespaced SPOTBOT_* form
// wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Flat legacy names ──
	setStr(&cfg.Exchange.ApiKey, "API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "API_SECRET")
	setBool(&cfg.Exchange.SandboxMode, "SANDBOX_MODE")
	setPairList(&cfg.Trading.Pairs, "TRADING_PAIRS")
	setStr(&cfg.Trading.Strategy, "STRATEGY")
	setSeconds(&cfg.Trading.TradeInterval, "TRADE_INTERVAL")
	setFloat64(&cfg.Trading.StopLossPct, "STOP_LOSS_PERCENTAGE")
	setFloat64(&cfg.Trading.ProfitTargetPct, "PROFIT_TARGET_PERCENTAGE")
	setFloat64(&cfg.Trading.AllocationPct, "PERCENTAGE_OF_BALANCE")
	setFloat64(&cfg.MarketMaking.SpreadPct, "MM_SPREAD_PERCENTAGE")
	setFloat64(&cfg.MarketMaking.OrderSize, "MM_ORDER_SIZE")
	setSeconds(&cfg.Trend.EMATimeframe, "MOVING_EMA_TIMEFRAME")
	setBool(&cfg.Trend.DowntrendProtect, "DOWNTREND_PROTECT")
	setBool(&cfg.Trend.BuyOnly, "BUY_ONLY")

	// ── Exchange ──
	setStr(&cfg.Exchange.ApiKey, "SPOTBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "SPOTBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "SPOTBOT_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "SPOTBOT_EXCHANGE_SECRET_PASSWORD")
	setBool(&cfg.Exchange.SandboxMode, "SPOTBOT_EXCHANGE_SANDBOX_MODE")
	setFloat64(&cfg.Exchange.TradingFeePct, "SPOTBOT_EXCHANGE_TRADING_FEE_PCT")
	setInt(&cfg.Exchange.RateLimitPerMinute, "SPOTBOT_EXCHANGE_RATE_LIMIT_PER_MINUTE")

	// ── Trading ──
	setPairList(&cfg.Trading.Pairs, "SPOTBOT_TRADING_PAIRS")
	setStr(&cfg.Trading.Strategy, "SPOTBOT_TRADING_STRATEGY")
	setDuration(&cfg.Trading.TradeInterval, "SPOTBOT_TRADING_TRADE_INTERVAL")
	setFloat64(&cfg.Trading.StopLossPct, "SPOTBOT_TRADING_STOP_LOSS_PCT")
	setFloat64(&cfg.Trading.ProfitTargetPct, "SPOTBOT_TRADING_PROFIT_TARGET_PCT")
	setFloat64(&cfg.Trading.AllocationPct, "SPOTBOT_TRADING_ALLOCATION_PCT")
	setDuration(&cfg.Trading.EntryTimeout, "SPOTBOT_TRADING_ENTRY_TIMEOUT")
	setInt(&cfg.Trading.FailureThreshold, "SPOTBOT_TRADING_FAILURE_THRESHOLD")

	// ── Market making ──
	setFloat64(&cfg.MarketMaking.SpreadPct, "SPOTBOT_MARKET_MAKING_SPREAD_PCT")
	setFloat64(&cfg.MarketMaking.OrderSize, "SPOTBOT_MARKET_MAKING_ORDER_SIZE")

	// ── Trend ──
	setDuration(&cfg.Trend.EMATimeframe, "SPOTBOT_TREND_EMA_TIMEFRAME")
	setBool(&cfg.Trend.DowntrendProtect, "SPOTBOT_TREND_DOWNTREND_PROTECT")
	setBool(&cfg.Trend.BuyOnly, "SPOTBOT_TREND_BUY_ONLY")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SPOTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPOTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPOTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPOTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SPOTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SPOTBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SPOTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SPOTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPOTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPOTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPOTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPOTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPOTBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SPOTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SPOTBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SPOTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPOTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPOTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPOTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SPOTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SPOTBOT_MODE")
	setStr(&cfg.LogLevel, "SPOTBOT_LOG_LEVEL")
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

// setSeconds parses a bare integer number of seconds, the unit the legacy
// variables use.
func setSeconds(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			dst.Duration = time.Duration(n) * time.Second
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

// setPairList is setStringSlice with pair-style normalization (trims and
// uppercases entries like "ada/usdt").
func setPairList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

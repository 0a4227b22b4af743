// Package config defines the top-level configuration for the spot trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPOTBOT_* environment variables (or
// their flat legacy aliases such as API_KEY and TRADING_PAIRS).
type Config struct {
	Exchange     ExchangeConfig     `toml:"exchange"`
	Trading      TradingConfig      `toml:"trading"`
	MarketMaking MarketMakingConfig `toml:"market_making"`
	Trend        TrendConfig        `toml:"trend"`
	Redis        RedisConfig        `toml:"redis"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Notify       NotifyConfig       `toml:"notify"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// ExchangeConfig holds exchange connectivity and credentials.
type ExchangeConfig struct {
	ApiKey              string  `toml:"api_key"`
	ApiSecret           string  `toml:"api_secret"`
	EncryptedSecretPath string  `toml:"encrypted_secret_path"`
	SecretPassword      string  `toml:"secret_password"`
	SandboxMode         bool    `toml:"sandbox_mode"`
	// TradingFeePct is the taker fee as a fraction (0.001 = 0.1%). Used to
	// reject market-making spreads that cannot cover the round trip.
	TradingFeePct float64 `toml:"trading_fee_pct"`
	// RateLimitPerMinute caps signed REST requests; 0 disables the limiter.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// TradingConfig holds the core trading parameters shared by all strategies.
type TradingConfig struct {
	// Pairs lists the trading pairs as "BASE/QUOTE" strings.
	Pairs    []string `toml:"pairs"`
	Strategy string   `toml:"strategy"`
	// TradeInterval is the tick period of each pair loop.
	TradeInterval duration `toml:"trade_interval"`
	// StopLossPct, ProfitTargetPct and AllocationPct are fractions (0.015 = 1.5%).
	StopLossPct      float64  `toml:"stop_loss_pct"`
	ProfitTargetPct  float64  `toml:"profit_target_pct"`
	AllocationPct    float64  `toml:"allocation_pct"`
	EntryTimeout     duration `toml:"entry_timeout"`
	FailureThreshold int      `toml:"failure_threshold"`
}

// MarketMakingConfig holds market-making strategy parameters.
type MarketMakingConfig struct {
	// SpreadPct is the full quoted spread as a fraction of the mid-price.
	SpreadPct float64 `toml:"spread_pct"`
	// OrderSize is the fixed quantity quoted on each side, in base asset.
	OrderSize float64 `toml:"order_size"`
}

// TrendConfig holds trend-following strategy parameters.
type TrendConfig struct {
	// EMATimeframe is the lookback window of the moving average; the EMA
	// period in ticks is EMATimeframe / TradeInterval.
	EMATimeframe     duration `toml:"ema_timeframe"`
	DowntrendProtect bool     `toml:"downtrend_protect"`
	BuyOnly          bool     `toml:"buy_only"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			SandboxMode:        true,
			TradingFeePct:      0.001,
			RateLimitPerMinute: 1100,
		},
		Trading: TradingConfig{
			Pairs:            []string{"ADA/USDT"},
			Strategy:         strategy.NameScalping,
			TradeInterval:    duration{30 * time.Second},
			StopLossPct:      0.015,
			ProfitTargetPct:  0.02,
			AllocationPct:    0.05,
			EntryTimeout:     duration{5 * time.Minute},
			FailureThreshold: 5,
		},
		MarketMaking: MarketMakingConfig{
			SpreadPct: 0.004,
			OrderSize: 0,
		},
		Trend: TrendConfig{
			EMATimeframe:     duration{30 * time.Minute},
			DowntrendProtect: false,
			BuyOnly:          false,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "spotbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "entry_cancelled", "pair_suspended"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStrategies enumerates the accepted values for Trading.Strategy.
var validStrategies = map[string]bool{
	strategy.NameScalping:       true,
	strategy.NameMarketMaking:   true,
	strategy.NameTrendFollowing: true,
}

// EMAPeriod derives the trend EMA length in ticks from the configured
// timeframe and trade interval. It is never below 2.
func (c *Config) EMAPeriod() int {
	if c.Trading.TradeInterval.Duration <= 0 {
		return 2
	}
	period := int(c.Trend.EMATimeframe.Duration / c.Trading.TradeInterval.Duration)
	if period < 2 {
		period = 2
	}
	return period
}

// StrategyConfig flattens the trading sections into the parameter set the
// strategies consume.
func (c *Config) StrategyConfig() strategy.Config {
	return strategy.Config{
		StopLossPct:      c.Trading.StopLossPct,
		ProfitTargetPct:  c.Trading.ProfitTargetPct,
		AllocationPct:    c.Trading.AllocationPct,
		SpreadPct:        c.MarketMaking.SpreadPct,
		OrderSize:        c.MarketMaking.OrderSize,
		TradeInterval:    c.Trading.TradeInterval.Duration,
		EMAPeriod:        c.EMAPeriod(),
		DowntrendProtect: c.Trend.DowntrendProtect,
		BuyOnly:          c.Trend.BuyOnly,
	}
}

// Pairs parses the configured pair strings.
func (c *Config) Pairs() ([]domain.TradingPair, error) {
	return domain.ParsePairs(strings.Join(c.Trading.Pairs, ","))
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange — credentials are required for trading.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Exchange.ApiKey == "" {
			errs = append(errs, "exchange: api_key must be set for mode trade")
		}
		if c.Exchange.ApiSecret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or encrypted_secret_path must be set for mode trade")
		}
		if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
			errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
		}
	}
	if c.Exchange.TradingFeePct < 0 || c.Exchange.TradingFeePct >= 0.1 {
		errs = append(errs, fmt.Sprintf("exchange: trading_fee_pct %v out of [0, 0.1)", c.Exchange.TradingFeePct))
	}

	// Trading
	if len(c.Trading.Pairs) == 0 {
		errs = append(errs, "trading: at least one pair must be configured")
	} else if _, err := c.Pairs(); err != nil {
		errs = append(errs, fmt.Sprintf("trading: %v", err))
	}
	if !validStrategies[c.Trading.Strategy] {
		errs = append(errs, fmt.Sprintf("trading: unknown strategy %q (valid: scalping, market_making, trend_following)", c.Trading.Strategy))
	}
	if c.Trading.TradeInterval.Duration <= 0 {
		errs = append(errs, "trading: trade_interval must be positive")
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("trading: stop_loss_pct %v out of (0,1)", c.Trading.StopLossPct))
	}
	if c.Trading.ProfitTargetPct <= 0 || c.Trading.ProfitTargetPct >= 1 {
		errs = append(errs, fmt.Sprintf("trading: profit_target_pct %v out of (0,1)", c.Trading.ProfitTargetPct))
	}
	if c.Trading.AllocationPct <= 0 || c.Trading.AllocationPct > 1 {
		errs = append(errs, fmt.Sprintf("trading: allocation_pct %v out of (0,1]", c.Trading.AllocationPct))
	}
	if c.Trading.FailureThreshold < 1 {
		errs = append(errs, "trading: failure_threshold must be >= 1")
	}

	// Market making — a spread below the round-trip fee loses money on every
	// completed quote cycle.
	if c.Trading.Strategy == strategy.NameMarketMaking {
		if c.MarketMaking.SpreadPct <= 0 {
			errs = append(errs, "market_making: spread_pct must be > 0")
		} else if c.MarketMaking.SpreadPct <= 2*c.Exchange.TradingFeePct {
			errs = append(errs, fmt.Sprintf("market_making: spread_pct %v must exceed twice the trading fee %v",
				c.MarketMaking.SpreadPct, c.Exchange.TradingFeePct))
		}
		if c.MarketMaking.OrderSize <= 0 {
			errs = append(errs, "market_making: order_size must be > 0")
		}
	}

	// Trend following
	if c.Trading.Strategy == strategy.NameTrendFollowing {
		if c.Trend.EMATimeframe.Duration < 2*c.Trading.TradeInterval.Duration {
			errs = append(errs, "trend: ema_timeframe must span at least two trade intervals")
		}
	}
	if c.Trend.DowntrendProtect && c.Trend.BuyOnly {
		errs = append(errs, "trend: downtrend_protect and buy_only are mutually exclusive (buy_only suppresses the only action downtrend_protect can take)")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

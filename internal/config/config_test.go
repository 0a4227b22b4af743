package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tradeReady returns defaults completed with the credentials validation
// demands in trade mode.
func tradeReady() Config {
	cfg := Defaults()
	cfg.Exchange.ApiKey = "key"
	cfg.Exchange.ApiSecret = "secret"
	return cfg
}

func TestDefaultsValidateInMonitorMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	require.NoError(t, cfg.Validate())
}

func TestTradeModeRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg = tradeReady()
	require.NoError(t, cfg.Validate())
}

func TestEncryptedSecretNeedsPassword(t *testing.T) {
	cfg := tradeReady()
	cfg.Exchange.ApiSecret = ""
	cfg.Exchange.EncryptedSecretPath = "/etc/spotbot/secret.enc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_password")

	cfg.Exchange.SecretPassword = "pw"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadFractions(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero stop loss", func(c *Config) { c.Trading.StopLossPct = 0 }},
		{"stop loss of one", func(c *Config) { c.Trading.StopLossPct = 1 }},
		{"negative target", func(c *Config) { c.Trading.ProfitTargetPct = -0.02 }},
		{"allocation above one", func(c *Config) { c.Trading.AllocationPct = 1.5 }},
		{"zero interval", func(c *Config) { c.Trading.TradeInterval = duration{} }},
		{"no pairs", func(c *Config) { c.Trading.Pairs = nil }},
		{"bad pair", func(c *Config) { c.Trading.Pairs = []string{"ADAUSDT"} }},
		{"unknown strategy", func(c *Config) { c.Trading.Strategy = "martingale" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tradeReady()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestMarketMakingSpreadMustCoverFees(t *testing.T) {
	cfg := tradeReady()
	cfg.Trading.Strategy = "market_making"
	cfg.MarketMaking.OrderSize = 10
	cfg.Exchange.TradingFeePct = 0.001

	cfg.MarketMaking.SpreadPct = 0.002 // exactly 2x fee: still unprofitable
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice the trading fee")

	cfg.MarketMaking.SpreadPct = 0.004
	require.NoError(t, cfg.Validate())
}

func TestDowntrendProtectConflictsWithBuyOnly(t *testing.T) {
	cfg := tradeReady()
	cfg.Trend.DowntrendProtect = true
	cfg.Trend.BuyOnly = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestEMAPeriodDerivation(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.TradeInterval = duration{30 * time.Second}
	cfg.Trend.EMATimeframe = duration{30 * time.Minute}
	assert.Equal(t, 60, cfg.EMAPeriod())

	// Timeframe shorter than two ticks clamps to the minimum useful period.
	cfg.Trend.EMATimeframe = duration{10 * time.Second}
	assert.Equal(t, 2, cfg.EMAPeriod())
}

func TestLegacyEnvOverrides(t *testing.T) {
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("API_SECRET", "legacy-secret")
	t.Setenv("TRADING_PAIRS", "ada/usdt, sol/usdt")
	t.Setenv("STRATEGY", "trend_following")
	t.Setenv("TRADE_INTERVAL", "45")
	t.Setenv("STOP_LOSS_PERCENTAGE", "0.02")
	t.Setenv("MOVING_EMA_TIMEFRAME", "1800")
	t.Setenv("DOWNTREND_PROTECT", "true")
	t.Setenv("SANDBOX_MODE", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "legacy-key", cfg.Exchange.ApiKey)
	assert.Equal(t, "legacy-secret", cfg.Exchange.ApiSecret)
	assert.Equal(t, []string{"ADA/USDT", "SOL/USDT"}, cfg.Trading.Pairs)
	assert.Equal(t, "trend_following", cfg.Trading.Strategy)
	assert.Equal(t, 45*time.Second, cfg.Trading.TradeInterval.Duration)
	assert.InDelta(t, 0.02, cfg.Trading.StopLossPct, 1e-12)
	assert.Equal(t, 30*time.Minute, cfg.Trend.EMATimeframe.Duration)
	assert.True(t, cfg.Trend.DowntrendProtect)
	assert.False(t, cfg.Exchange.SandboxMode)
}

func TestNamespacedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("API_KEY", "legacy")
	t.Setenv("SPOTBOT_EXCHANGE_API_KEY", "namespaced")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, "namespaced", cfg.Exchange.ApiKey)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := tradeReady()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Exchange.ApiKey)
	assert.Equal(t, "***", red.Exchange.ApiSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "key", cfg.Exchange.ApiKey)

	// Mutating the copy's slices must not leak back.
	red.Trading.Pairs[0] = "XX/YY"
	assert.NotEqual(t, "XX/YY", cfg.Trading.Pairs[0])
}

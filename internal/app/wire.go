package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/spotbot/internal/cache/redis"
	"github.com/alanyoungcy/spotbot/internal/config"
	"github.com/alanyoungcy/spotbot/internal/crypto"
	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/gateway"
	"github.com/alanyoungcy/spotbot/internal/gateway/binance"
	"github.com/alanyoungcy/spotbot/internal/notify"
	"github.com/alanyoungcy/spotbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	TradeStore    domain.TradeStore

	// Caches
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter

	// Exchange gateway
	Exchange gateway.Exchange

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	// Snapshots older than twice the trade interval are unusable anyway, so
	// let Redis expire them at that age.
	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, 2*cfg.Trading.TradeInterval.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Exchange gateway ---
	exchange, err := buildExchange(cfg, deps.RateLimiter)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exchange: %w", err)
	}
	deps.Exchange = exchange

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildExchange constructs the Binance client. Credentials are resolved only
// in trade mode; monitor mode restricts itself to public endpoints, which
// need no signature.
func buildExchange(cfg *config.Config, limiter domain.RateLimiter) (gateway.Exchange, error) {
	auth := &crypto.HMACAuth{Key: cfg.Exchange.ApiKey}

	if strings.ToLower(cfg.Mode) == "trade" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           cfg.Exchange.ApiSecret,
			EncryptedSecretPath: cfg.Exchange.EncryptedSecretPath,
			SecretPassword:      cfg.Exchange.SecretPassword,
		})
		if err != nil {
			return nil, err
		}
		auth.Secret = secret
	}

	client := binance.NewClient(auth, cfg.Exchange.SandboxMode)
	if limiter != nil && cfg.Exchange.RateLimitPerMinute > 0 {
		client = client.WithRateLimiter(limiter, cfg.Exchange.RateLimitPerMinute, time.Minute)
	}
	return client, nil
}

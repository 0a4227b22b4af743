package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/engine"
	"github.com/alanyoungcy/spotbot/internal/executor"
	"github.com/alanyoungcy/spotbot/internal/feed"
	"github.com/alanyoungcy/spotbot/internal/position"
	"github.com/alanyoungcy/spotbot/internal/risk"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// newStrategyRegistry registers every built-in strategy with the configured
// parameter set.
func (a *App) newStrategyRegistry(cfg strategy.Config) *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register(strategy.NameScalping, strategy.NewScalping(cfg, a.logger))
	reg.Register(strategy.NameMarketMaking, strategy.NewMarketMaker(cfg, a.logger))
	reg.Register(strategy.NameTrendFollowing, strategy.NewTrendFollowing(cfg, a.logger))
	return reg
}

// TradeMode runs the full trading stack: the market data feed, one tick loop
// per pair, order execution, and position tracking.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	pairs, err := a.cfg.Pairs()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	stratCfg := a.cfg.StrategyConfig()
	reg := a.newStrategyRegistry(stratCfg)
	strat, err := reg.Get(a.cfg.Trading.Strategy)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	// Risk bookkeeping and position state.
	ledgers := risk.NewLedgerSet(a.cfg.Trading.AllocationPct)
	tracker := position.NewTracker(
		position.Config{
			StopLossPct:     a.cfg.Trading.StopLossPct,
			ProfitTargetPct: a.cfg.Trading.ProfitTargetPct,
			EntryTimeout:    a.cfg.Trading.EntryTimeout.Duration,
		},
		deps.Exchange,
		deps.PositionStore,
		deps.TradeStore,
		ledgers,
		deps.Notifier,
		a.logger,
	)
	if err := tracker.Restore(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	exec := executor.NewExecutor(
		deps.Exchange,
		tracker,
		ledgers,
		a.cfg.Trading.TradeInterval.Duration,
		a.logger,
	)

	eng := engine.NewEngine(a.logger)
	for _, pair := range pairs {
		loop := engine.NewPairLoop(
			pair,
			strat,
			stratCfg,
			deps.Exchange,
			tracker,
			exec,
			ledgers,
			deps.SnapshotCache,
			deps.Notifier,
			a.cfg.Trading.FailureThreshold,
			a.logger,
		)
		if err := eng.AddPair(loop); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	wsFeed := feed.NewBinanceWSFeed(pairs, deps.SnapshotCache, a.cfg.Exchange.SandboxMode, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})
	g.Go(func() error {
		return eng.Run(ctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// MonitorMode streams market data and logs per-pair snapshots without ever
// placing an order. Useful for validating connectivity and configuration
// before committing capital.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	pairs, err := a.cfg.Pairs()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	wsFeed := feed.NewBinanceWSFeed(pairs, deps.SnapshotCache, a.cfg.Exchange.SandboxMode, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})
	g.Go(func() error {
		return a.watchPairs(ctx, deps, pairs)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchPairs logs the freshest snapshot for each pair once per trade interval,
// falling back to REST when the cache is cold.
func (a *App) watchPairs(ctx context.Context, deps *Dependencies, pairs []domain.TradingPair) error {
	interval := a.cfg.Trading.TradeInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, pair := range pairs {
			snap, err := deps.SnapshotCache.Get(ctx, pair)
			if errors.Is(err, domain.ErrNotFound) {
				snap, err = deps.Exchange.GetTicker(ctx, pair)
			}
			if err != nil {
				a.logger.WarnContext(ctx, "snapshot unavailable",
					slog.String("pair", pair.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "market snapshot",
				slog.String("pair", pair.String()),
				slog.Float64("bid", snap.Bid),
				slog.Float64("ask", snap.Ask),
				slog.Float64("last", snap.Last),
				slog.Duration("age", snap.Age(time.Now().UTC())),
			)
		}
	}
}

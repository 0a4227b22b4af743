// Package engine runs the trading core: one sequential tick loop per
// configured pair, each cycling through balance refresh, position
// reconciliation, strategy evaluation, and action execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/executor"
	"github.com/alanyoungcy/spotbot/internal/gateway"
	"github.com/alanyoungcy/spotbot/internal/position"
	"github.com/alanyoungcy/spotbot/internal/risk"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// stalenessFactor sets the maximum snapshot age as a multiple of the trade
// interval. Older data never drives a trading decision.
const stalenessFactor = 2

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EventPairSuspended is the notification event for suspended pairs.
const EventPairSuspended = "pair_suspended"

// PairLoop drives one trading pair. Within a loop everything is sequential:
// a tick finishes (or fails) before the next one starts, so per-pair state
// needs no cross-tick synchronization. Concurrency exists only across pairs.
type PairLoop struct {
	pair     domain.TradingPair
	strat    strategy.Strategy
	cfg      strategy.Config
	exchange gateway.Exchange
	tracker  *position.Tracker
	exec     *executor.Executor
	ledgers  *risk.LedgerSet
	cache    domain.SnapshotCache
	alerter  Alerter
	logger   *slog.Logger

	failThreshold int

	mu           sync.Mutex
	suspended    bool
	suspendedWhy string
	failures     int

	filter       domain.SymbolFilter
	filterLoaded bool
}

// NewPairLoop creates a loop for one pair. cache and alerter may be nil.
func NewPairLoop(
	pair domain.TradingPair,
	strat strategy.Strategy,
	cfg strategy.Config,
	exchange gateway.Exchange,
	tracker *position.Tracker,
	exec *executor.Executor,
	ledgers *risk.LedgerSet,
	cache domain.SnapshotCache,
	alerter Alerter,
	failThreshold int,
	logger *slog.Logger,
) *PairLoop {
	return &PairLoop{
		pair:          pair,
		strat:         strat,
		cfg:           cfg,
		exchange:      exchange,
		tracker:       tracker,
		exec:          exec,
		ledgers:       ledgers,
		cache:         cache,
		alerter:       alerter,
		failThreshold: failThreshold,
		logger: logger.With(
			slog.String("component", "pair_loop"),
			slog.String("pair", pair.String()),
		),
	}
}

// Run ticks the pair at the trade interval until the context is cancelled.
func (l *PairLoop) Run(ctx context.Context) error {
	l.logger.Info("pair loop started",
		slog.String("strategy", l.strat.Name()),
		slog.Duration("interval", l.cfg.TradeInterval),
	)
	defer l.logger.Info("pair loop stopped")

	ticker := time.NewTicker(l.cfg.TradeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
			l.exec.Cleanup()
		}
	}
}

// Suspended reports whether the pair is halted, and why.
func (l *PairLoop) Suspended() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suspended, l.suspendedWhy
}

// Pause halts trading on the pair. The loop keeps ticking but does nothing.
func (l *PairLoop) Pause(reason string) {
	l.mu.Lock()
	l.suspended = true
	l.suspendedWhy = reason
	l.mu.Unlock()
	l.logger.Warn("pair suspended", slog.String("reason", reason))
}

// Resume lifts a suspension and resets the failure streak.
func (l *PairLoop) Resume() {
	l.mu.Lock()
	l.suspended = false
	l.suspendedWhy = ""
	l.failures = 0
	l.mu.Unlock()
	l.logger.Info("pair resumed")
}

// tick runs one full trading cycle. Every exchange failure feeds the
// consecutive-failure counter; any successful full cycle resets it.
func (l *PairLoop) tick(ctx context.Context) {
	if s, _ := l.Suspended(); s {
		return
	}

	bal, err := l.exchange.GetBalance(ctx, l.pair.Quote)
	if err != nil {
		l.fail(ctx, fmt.Errorf("balance refresh: %w", err))
		return
	}
	l.ledgers.For(l.pair.Quote).SetBalance(bal)

	if !l.filterLoaded {
		filter, err := l.exchange.GetSymbolFilter(ctx, l.pair)
		if err != nil {
			l.fail(ctx, fmt.Errorf("symbol filter: %w", err))
			return
		}
		l.filter = filter
		l.filterLoaded = true
	}

	snap, err := l.snapshot(ctx)
	if err != nil {
		l.fail(ctx, fmt.Errorf("market snapshot: %w", err))
		return
	}
	if snap.Stale(time.Now().UTC(), stalenessFactor*l.cfg.TradeInterval) {
		// Trading on old data is worse than not trading at all.
		staleErr := fmt.Errorf("%w: age %s", domain.ErrStaleSnapshot, snap.Age(time.Now().UTC()))
		l.logger.Warn("skipping tick", slog.String("error", staleErr.Error()))
		return
	}

	if err := l.tracker.Sync(ctx, l.pair); err != nil {
		l.fail(ctx, fmt.Errorf("position sync: %w", err))
		return
	}

	openOrders, err := l.exchange.GetOpenOrders(ctx, l.pair)
	if err != nil {
		l.fail(ctx, fmt.Errorf("open orders: %w", err))
		return
	}
	l.exec.ReconcileQuotes(l.pair, openOrders)

	in := strategy.TickInput{
		Pair:          l.pair,
		Snapshot:      snap,
		Positions:     l.tracker.Committed(l.pair),
		OpenOrders:    openOrders,
		Quote:         l.exec.Quote(l.pair),
		EntryQuantity: l.entryQuantity(snap.Last),
		Filter:        l.filter,
	}

	actions, err := l.strat.Evaluate(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			l.suspend(ctx, err.Error())
			return
		}
		l.logger.Error("strategy evaluation failed", slog.String("error", err.Error()))
		return
	}
	if len(actions) == 0 {
		l.resetFailures()
		return
	}

	if err := l.exec.Apply(ctx, l.pair, l.strat.Name(), snap.Last, actions); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			// Not a connectivity problem; capital is simply tied up.
			l.logger.Warn("action skipped, insufficient balance", slog.String("error", err.Error()))
			return
		}
		l.fail(ctx, fmt.Errorf("apply actions: %w", err))
		return
	}
	l.resetFailures()
}

// snapshot returns the freshest market view, preferring the cache (kept warm
// by the websocket feed) and falling back to the REST ticker. A REST fetch
// re-warms the cache.
func (l *PairLoop) snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	maxAge := stalenessFactor * l.cfg.TradeInterval
	if l.cache != nil {
		snap, err := l.cache.Get(ctx, l.pair)
		if err == nil && !snap.Stale(time.Now().UTC(), maxAge) {
			return snap, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			l.logger.Warn("snapshot cache read failed", slog.String("error", err.Error()))
		}
	}

	snap, err := l.exchange.GetTicker(ctx, l.pair)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	if l.cache != nil {
		if err := l.cache.Set(ctx, snap); err != nil {
			l.logger.Warn("snapshot cache write failed", slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

// entryQuantity sizes a prospective entry from the pair's allocatable balance
// as arbitrated by the ledger. Zero means no entry is possible this tick.
func (l *PairLoop) entryQuantity(price float64) float64 {
	if price <= 0 {
		return 0
	}
	avail := l.ledgers.For(l.pair.Quote).AvailableFor(l.pair)
	if avail <= 0 {
		return 0
	}
	qty, err := risk.Size(avail, 1, price, l.filter)
	if err != nil {
		return 0
	}
	return qty
}

// fail records one failed cycle and suspends the pair when the consecutive
// failure streak reaches the threshold. Other pairs are unaffected.
func (l *PairLoop) fail(ctx context.Context, err error) {
	l.mu.Lock()
	l.failures++
	failures := l.failures
	l.mu.Unlock()

	l.logger.Error("tick failed",
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", failures),
	)
	if l.failThreshold > 0 && failures >= l.failThreshold {
		l.suspend(ctx, fmt.Sprintf("%d consecutive failures, last: %v", failures, err))
	}
}

func (l *PairLoop) resetFailures() {
	l.mu.Lock()
	l.failures = 0
	l.mu.Unlock()
}

// suspend halts the pair and alerts the operator. Suspension is per pair;
// recovery is an operator decision via Resume.
func (l *PairLoop) suspend(ctx context.Context, reason string) {
	l.Pause(reason)
	if l.alerter != nil {
		if err := l.alerter.Notify(ctx, EventPairSuspended, "Pair suspended",
			fmt.Sprintf("%s: %s", l.pair, reason)); err != nil {
			l.logger.Warn("suspension alert failed", slog.String("error", err.Error()))
		}
	}
}

// Package position owns the position lifecycle: it creates positions when
// entry orders go out, reconciles them against polled order status, and is
// the only component allowed to move a position between states.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/gateway"
	"github.com/alanyoungcy/spotbot/internal/risk"
)

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types emitted by the tracker.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventEntryCancelled = "entry_cancelled"
)

// Config holds the tracker's tunables.
type Config struct {
	StopLossPct     float64
	ProfitTargetPct float64
	// EntryTimeout is how long a pending entry may sit unfilled before the
	// tracker withdraws it. Zero disables the timeout.
	EntryTimeout time.Duration
}

// Tracker reconciles in-memory position state with the exchange. Fills are
// detected by polling order status on every tick; the tracker never infers a
// fill from balance movements.
type Tracker struct {
	cfg      Config
	exchange gateway.Exchange
	store    domain.PositionStore
	trades   domain.TradeStore
	ledgers  *risk.LedgerSet
	alerter  Alerter
	logger   *slog.Logger

	mu     sync.Mutex
	byPair map[domain.TradingPair][]*domain.Position
}

// NewTracker creates a Tracker. store, trades and alerter may be nil when
// persistence or notifications are disabled.
func NewTracker(
	cfg Config,
	exchange gateway.Exchange,
	store domain.PositionStore,
	trades domain.TradeStore,
	ledgers *risk.LedgerSet,
	alerter Alerter,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		cfg:      cfg,
		exchange: exchange,
		store:    store,
		trades:   trades,
		ledgers:  ledgers,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "tracker")),
		byPair:   make(map[domain.TradingPair][]*domain.Position),
	}
}

// Restore loads committed positions from the store after a restart and
// re-reserves their quote notional. The reservation is held from entry until
// the position reaches a terminal state, and a restart must not change that:
// capital committed to a restored position stays invisible to sizing until
// the position closes or cancels. Without a store it is a no-op.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	positions, err := t.store.GetCommittedAll(ctx)
	if err != nil {
		return fmt.Errorf("position: restore: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range positions {
		p := positions[i]
		t.byPair[p.Pair] = append(t.byPair[p.Pair], &p)
		if p.EntryOrderID != "" {
			if err := t.ledgers.Reserve(p.Pair, p.EntryOrderID, p.Notional()); err != nil {
				t.logger.Warn("restore: could not re-reserve position notional",
					slog.String("position_id", p.ID),
					slog.String("state", string(p.State)),
					slog.String("error", err.Error()),
				)
			}
		}
		t.logger.Info("restored position",
			slog.String("position_id", p.ID),
			slog.String("pair", p.Pair.String()),
			slog.String("state", string(p.State)),
		)
	}
	return nil
}

// Committed returns a copy of the pair's non-terminal positions.
func (t *Tracker) Committed(pair domain.TradingPair) []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := t.byPair[pair]
	out := make([]domain.Position, 0, len(live))
	for _, p := range live {
		if p.Committed() {
			out = append(out, *p)
		}
	}
	return out
}

// OpenEntry registers a freshly submitted entry order as a Pending position.
// The quote-asset reservation must already be held under the entry order's
// reservation key. When the submission result reports an immediate fill, the
// position opens in the same call.
func (t *Tracker) OpenEntry(
	ctx context.Context,
	pair domain.TradingPair,
	strategy string,
	entryPrice, qty float64,
	res domain.OrderResult,
) (domain.Position, error) {
	p := domain.NewPosition(
		uuid.New().String(),
		pair,
		entryPrice,
		qty,
		t.cfg.StopLossPct,
		t.cfg.ProfitTargetPct,
		strategy,
		res.OrderID,
		time.Now().UTC(),
	)

	if t.store != nil {
		if err := t.store.Create(ctx, p); err != nil {
			return domain.Position{}, fmt.Errorf("position: create %s: %w", p.ID, err)
		}
	}

	t.mu.Lock()
	t.byPair[pair] = append(t.byPair[pair], &p)
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "entry submitted",
		slog.String("position_id", p.ID),
		slog.String("pair", pair.String()),
		slog.String("order_id", res.OrderID),
		slog.Float64("price", entryPrice),
		slog.Float64("qty", qty),
	)

	if res.Filled() {
		if err := t.markOpen(ctx, &p, res.AvgFillPrice, res.FilledQty); err != nil {
			return p, err
		}
	}
	return p, nil
}

// BeginExit moves an Open position to ExitPending once its exit order has
// been submitted.
func (t *Tracker) BeginExit(ctx context.Context, positionID, exitOrderID string, reason domain.ExitReason) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.findLocked(positionID)
	if p == nil {
		return fmt.Errorf("position: %s: %w", positionID, domain.ErrNotFound)
	}
	if err := p.TransitionTo(domain.PositionExitPending); err != nil {
		return err
	}
	p.ExitOrderID = exitOrderID
	p.ExitReason = reason
	t.persistLocked(ctx, p)

	t.logger.InfoContext(ctx, "exit submitted",
		slog.String("position_id", p.ID),
		slog.String("order_id", exitOrderID),
		slog.String("reason", string(reason)),
	)
	return nil
}

// Sync reconciles every non-terminal position of a pair against the exchange:
// pending entries are opened, timed out, or cancelled; pending exits are
// closed or reverted. Terminal positions are pruned from memory afterwards.
func (t *Tracker) Sync(ctx context.Context, pair domain.TradingPair) error {
	t.mu.Lock()
	live := make([]*domain.Position, len(t.byPair[pair]))
	copy(live, t.byPair[pair])
	t.mu.Unlock()

	var errs []error
	for _, p := range live {
		var err error
		switch p.State {
		case domain.PositionPending:
			err = t.syncPending(ctx, p)
		case domain.PositionExitPending:
			err = t.syncExitPending(ctx, p)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	t.pruneTerminal(pair)
	return errors.Join(errs...)
}

// syncPending drives a Pending position from its entry order's state.
func (t *Tracker) syncPending(ctx context.Context, p *domain.Position) error {
	order, err := t.exchange.GetOrder(ctx, p.Pair, p.EntryOrderID)
	if err != nil {
		return fmt.Errorf("position: %s: entry order status: %w", p.ID, err)
	}

	switch {
	case order.Status == domain.OrderStatusFilled:
		return t.markOpen(ctx, p, order.AvgFillPrice, order.FilledQty)

	case order.Status.Terminal():
		// Cancelled, rejected, or expired. A partial fill before the order
		// died still opens a (smaller) position.
		if order.FilledQty > 0 {
			return t.markOpen(ctx, p, order.AvgFillPrice, order.FilledQty)
		}
		return t.markCancelled(ctx, p)

	case t.cfg.EntryTimeout > 0 && time.Since(p.EntryTime) > t.cfg.EntryTimeout:
		t.logger.WarnContext(ctx, "entry timed out, withdrawing",
			slog.String("position_id", p.ID),
			slog.String("order_id", p.EntryOrderID),
			slog.Duration("age", time.Since(p.EntryTime)),
		)
		if err := t.exchange.CancelOrder(ctx, p.Pair, p.EntryOrderID); err != nil {
			// The next Sync pass sees the final order state either way.
			return fmt.Errorf("position: %s: cancel entry: %w", p.ID, err)
		}
	}
	return nil
}

// syncExitPending drives an ExitPending position from its exit order's state.
func (t *Tracker) syncExitPending(ctx context.Context, p *domain.Position) error {
	order, err := t.exchange.GetOrder(ctx, p.Pair, p.ExitOrderID)
	if err != nil {
		return fmt.Errorf("position: %s: exit order status: %w", p.ID, err)
	}

	switch {
	case order.Status == domain.OrderStatusFilled:
		return t.markClosed(ctx, p, order)

	case order.Status.Terminal():
		// Exit order died without filling: the position is still held, so
		// revert to Open and let the next tick re-evaluate the exit.
		t.mu.Lock()
		defer t.mu.Unlock()
		if err := p.TransitionTo(domain.PositionOpen); err != nil {
			return err
		}
		t.logger.WarnContext(ctx, "exit order died, position reverted to open",
			slog.String("position_id", p.ID),
			slog.String("order_id", p.ExitOrderID),
			slog.String("order_status", string(order.Status)),
		)
		p.ExitOrderID = ""
		p.ExitReason = ""
		t.persistLocked(ctx, p)
	}
	return nil
}

// markOpen transitions a Pending position to Open using the actual fill.
func (t *Tracker) markOpen(ctx context.Context, p *domain.Position, fillPrice, fillQty float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := p.TransitionTo(domain.PositionOpen); err != nil {
		return err
	}
	// Stop and target stay anchored to the decision-time entry price; only
	// the executed quantity and realized entry price are corrected.
	if fillPrice > 0 {
		p.EntryPrice = fillPrice
	}
	if fillQty > 0 {
		p.Quantity = fillQty
	}
	t.persistLocked(ctx, p)

	t.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", p.ID),
		slog.String("pair", p.Pair.String()),
		slog.Float64("entry_price", p.EntryPrice),
		slog.Float64("qty", p.Quantity),
		slog.Float64("stop", p.StopPrice),
		slog.Float64("target", p.TargetPrice),
	)
	t.alert(ctx, EventPositionOpened, "Position opened",
		fmt.Sprintf("%s %s %.8f @ %.8f (%s)", p.Pair, p.Side, p.Quantity, p.EntryPrice, p.Strategy))
	return nil
}

// markClosed finishes an ExitPending position from its filled exit order.
func (t *Tracker) markClosed(ctx context.Context, p *domain.Position, exitOrder domain.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := p.TransitionTo(domain.PositionClosed); err != nil {
		return err
	}
	now := time.Now().UTC()
	p.ExitPrice = exitOrder.AvgFillPrice
	p.ClosedAt = &now
	t.persistLocked(ctx, p)
	t.ledgers.Release(p.Pair, p.EntryOrderID)

	if t.trades != nil {
		trade := domain.Trade{
			ID:         uuid.New().String(),
			Pair:       p.Pair,
			Side:       domain.OrderSideSell,
			Price:      p.ExitPrice,
			Quantity:   exitOrder.FilledQty,
			OrderID:    p.ExitOrderID,
			PositionID: p.ID,
			Strategy:   p.Strategy,
			ExecutedAt: now,
		}
		if err := t.trades.Record(ctx, trade); err != nil {
			t.logger.WarnContext(ctx, "trade record failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	pnl := (p.ExitPrice - p.EntryPrice) * p.Quantity
	t.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", p.ID),
		slog.String("pair", p.Pair.String()),
		slog.String("reason", string(p.ExitReason)),
		slog.Float64("entry_price", p.EntryPrice),
		slog.Float64("exit_price", p.ExitPrice),
		slog.Float64("pnl", pnl),
	)
	t.alert(ctx, EventPositionClosed, "Position closed",
		fmt.Sprintf("%s %s: entry %.8f exit %.8f pnl %.8f %s",
			p.Pair, p.ExitReason, p.EntryPrice, p.ExitPrice, pnl, p.Pair.Quote))
	return nil
}

// markCancelled finishes a Pending position whose entry never filled.
func (t *Tracker) markCancelled(ctx context.Context, p *domain.Position) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := p.TransitionTo(domain.PositionCancelled); err != nil {
		return err
	}
	t.persistLocked(ctx, p)
	t.ledgers.Release(p.Pair, p.EntryOrderID)

	t.logger.InfoContext(ctx, "entry cancelled",
		slog.String("position_id", p.ID),
		slog.String("pair", p.Pair.String()),
		slog.String("order_id", p.EntryOrderID),
	)
	t.alert(ctx, EventEntryCancelled, "Entry cancelled",
		fmt.Sprintf("%s entry %s withdrawn unfilled", p.Pair, p.EntryOrderID))
	return nil
}

// pruneTerminal drops terminal positions from the in-memory map; the store
// keeps the history.
func (t *Tracker) pruneTerminal(pair domain.TradingPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := t.byPair[pair][:0]
	for _, p := range t.byPair[pair] {
		if p.Committed() {
			live = append(live, p)
		}
	}
	t.byPair[pair] = live
}

// findLocked returns the tracked position with the given ID. Caller holds mu.
func (t *Tracker) findLocked(id string) *domain.Position {
	for _, live := range t.byPair {
		for _, p := range live {
			if p.ID == id {
				return p
			}
		}
	}
	return nil
}

// persistLocked updates the store, tolerating its absence. Caller holds mu.
func (t *Tracker) persistLocked(ctx context.Context, p *domain.Position) {
	if t.store == nil {
		return
	}
	if err := t.store.Update(ctx, *p); err != nil {
		t.logger.WarnContext(ctx, "position update failed",
			slog.String("position_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// alert dispatches a notification when an alerter is wired.
func (t *Tracker) alert(ctx context.Context, event, title, msg string) {
	if t.alerter == nil {
		return
	}
	if err := t.alerter.Notify(ctx, event, title, msg); err != nil {
		t.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

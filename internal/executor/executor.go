// Package executor turns strategy order actions into exchange calls. It is
// the only component that submits or cancels orders: it reserves quote
// balance before every buy, stamps each submission with a client order ID,
// and routes results back into the position tracker and the quote book.
package executor

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
	"github.com/alanyoungcy/spotbot/internal/position"
	"github.com/alanyoungcy/spotbot/internal/risk"
)

// Executor applies strategy actions for all pairs. Market buys open tracked
// positions, market sells close them, limit orders maintain the per-pair
// quote book used by market making.
type Executor struct {
	exchange gateway.Exchange
	tracker  *position.Tracker
	ledgers  *risk.LedgerSet
	dedup    *Dedup
	logger   *slog.Logger

	mu     sync.Mutex
	quotes map[domain.TradingPair]domain.QuotedOrderPair
}

// NewExecutor creates an Executor. dedupTTL bounds how long an identical
// order intent is suppressed; the trade interval is a sensible value.
func NewExecutor(
	exchange gateway.Exchange,
	tracker *position.Tracker,
	ledgers *risk.LedgerSet,
	dedupTTL time.Duration,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		exchange: exchange,
		tracker:  tracker,
		ledgers:  ledgers,
		dedup:    NewDedup(dedupTTL),
		logger:   logger.With(slog.String("component", "executor")),
		quotes:   make(map[domain.TradingPair]domain.QuotedOrderPair),
	}
}

// Quote returns the pair's current quoted order pair (zero when none).
func (e *Executor) Quote(pair domain.TradingPair) domain.QuotedOrderPair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quotes[pair]
}

// ReconcileQuotes drops quote sides whose orders are no longer open on the
// exchange (filled or cancelled out-of-band) and releases their balance
// reservations. Call it with the pair's freshly fetched open orders before
// evaluating the strategy.
func (e *Executor) ReconcileQuotes(pair domain.TradingPair, openOrders []domain.Order) {
	open := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		open[o.ID] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.quotes[pair]
	if q.BidLive() && !open[q.BidOrderID] {
		e.logger.Info("bid left the book",
			slog.String("pair", pair.String()),
			slog.String("order_id", q.BidOrderID),
		)
		e.ledgers.Release(pair, q.BidOrderID)
		q.BidOrderID, q.BidPrice = "", 0
	}
	if q.AskLive() && !open[q.AskOrderID] {
		e.logger.Info("ask left the book",
			slog.String("pair", pair.String()),
			slog.String("order_id", q.AskOrderID),
		)
		q.AskOrderID, q.AskPrice = "", 0
	}
	e.quotes[pair] = q
}

// Apply executes the actions in order. refPrice is the price used to value
// market orders for balance reservation (typically the last trade price).
// The first failing action aborts the remainder; completed actions stand.
func (e *Executor) Apply(ctx context.Context, pair domain.TradingPair, strategy string, refPrice float64, actions []domain.OrderAction) error {
	for _, a := range actions {
		fp := fingerprint(pair, a)
		if e.dedup.IsDuplicate(fp) {
			e.logger.DebugContext(ctx, "duplicate intent suppressed",
				slog.String("pair", pair.String()),
				slog.String("fingerprint", fp),
			)
			continue
		}

		var err error
		switch a.Kind {
		case domain.ActionPlace:
			err = e.place(ctx, pair, strategy, refPrice, a)
		case domain.ActionCancel:
			err = e.cancel(ctx, pair, a)
		case domain.ActionModify:
			err = e.modify(ctx, pair, strategy, refPrice, a)
		default:
			err = fmt.Errorf("executor: unknown action kind %q", a.Kind)
		}
		if err != nil {
			// A failed intent must stay retryable on the next tick.
			e.dedup.Forget(fp)
			return fmt.Errorf("executor: %s %s: %w", a.Kind, pair, err)
		}
	}
	return nil
}

// Cleanup garbage-collects the dedup window. The engine calls it between
// ticks.
func (e *Executor) Cleanup() { e.dedup.Cleanup() }

func (e *Executor) place(ctx context.Context, pair domain.TradingPair, strategy string, refPrice float64, a domain.OrderAction) error {
	switch {
	case a.LimitPrice > 0:
		return e.placeQuote(ctx, pair, a)
	case a.Side == domain.OrderSideBuy:
		return e.placeEntry(ctx, pair, strategy, refPrice, a)
	default:
		return e.placeExit(ctx, pair, a)
	}
}

// placeEntry submits a market buy and registers the pending position. The
// quote notional is reserved before the order leaves, and freed again if the
// submission fails.
func (e *Executor) placeEntry(ctx context.Context, pair domain.TradingPair, strategy string, refPrice float64, a domain.OrderAction) error {
	if refPrice <= 0 {
		return errors.New("entry without a reference price")
	}
	clientID := uuid.New().String()
	notional := a.Quantity * refPrice
	if err := e.ledgers.Reserve(pair, clientID, notional); err != nil {
		return fmt.Errorf("reserve %.8f %s: %w", notional, pair.Quote, err)
	}

	res, err := e.exchange.PlaceOrder(ctx, gateway.OrderRequest{
		Pair:          pair,
		Side:          domain.OrderSideBuy,
		Type:          domain.OrderTypeMarket,
		Quantity:      a.Quantity,
		ClientOrderID: clientID,
	})
	if err != nil {
		e.ledgers.Release(pair, clientID)
		return fmt.Errorf("entry order: %w", err)
	}
	e.ledgers.Rekey(pair, clientID, res.OrderID)

	e.logger.InfoContext(ctx, "entry placed",
		slog.String("pair", pair.String()),
		slog.String("order_id", res.OrderID),
		slog.Float64("qty", a.Quantity),
		slog.String("reason", a.Reason),
	)
	_, err = e.tracker.OpenEntry(ctx, pair, strategy, refPrice, a.Quantity, res)
	return err
}

// placeExit submits a market sell for a tracked position.
func (e *Executor) placeExit(ctx context.Context, pair domain.TradingPair, a domain.OrderAction) error {
	if a.PositionID == "" {
		return errors.New("sell without a position")
	}
	res, err := e.exchange.PlaceOrder(ctx, gateway.OrderRequest{
		Pair:          pair,
		Side:          domain.OrderSideSell,
		Type:          domain.OrderTypeMarket,
		Quantity:      a.Quantity,
		ClientOrderID: uuid.New().String(),
	})
	if err != nil {
		return fmt.Errorf("exit order: %w", err)
	}

	e.logger.InfoContext(ctx, "exit placed",
		slog.String("pair", pair.String()),
		slog.String("position_id", a.PositionID),
		slog.String("order_id", res.OrderID),
		slog.String("reason", a.Reason),
	)
	return e.tracker.BeginExit(ctx, a.PositionID, res.OrderID, a.Exit)
}

// placeQuote submits a limit order and records it on the pair's quote book.
// Bids reserve their notional; asks commit base inventory, which the ledger
// does not arbitrate.
func (e *Executor) placeQuote(ctx context.Context, pair domain.TradingPair, a domain.OrderAction) error {
	clientID := uuid.New().String()
	if a.Side == domain.OrderSideBuy {
		notional := a.Quantity * a.LimitPrice
		if err := e.ledgers.Reserve(pair, clientID, notional); err != nil {
			return fmt.Errorf("reserve %.8f %s: %w", notional, pair.Quote, err)
		}
	}

	res, err := e.exchange.PlaceOrder(ctx, gateway.OrderRequest{
		Pair:          pair,
		Side:          a.Side,
		Type:          domain.OrderTypeLimit,
		Quantity:      a.Quantity,
		Price:         a.LimitPrice,
		ClientOrderID: clientID,
	})
	if err != nil {
		if a.Side == domain.OrderSideBuy {
			e.ledgers.Release(pair, clientID)
		}
		return fmt.Errorf("quote order: %w", err)
	}
	if a.Side == domain.OrderSideBuy {
		e.ledgers.Rekey(pair, clientID, res.OrderID)
	}

	e.mu.Lock()
	q := e.quotes[pair]
	now := time.Now().UTC()
	if a.Side == domain.OrderSideBuy {
		q.BidOrderID, q.BidPrice = res.OrderID, a.LimitPrice
	} else {
		q.AskOrderID, q.AskPrice = res.OrderID, a.LimitPrice
	}
	q.Quantity = a.Quantity
	q.QuotedAt = now
	if q.BidPrice > 0 && q.AskPrice > 0 {
		q.Mid = (q.BidPrice + q.AskPrice) / 2
	} else {
		q.Mid = a.LimitPrice
	}
	e.quotes[pair] = q
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "quote placed",
		slog.String("pair", pair.String()),
		slog.String("side", string(a.Side)),
		slog.String("order_id", res.OrderID),
		slog.Float64("price", a.LimitPrice),
		slog.Float64("qty", a.Quantity),
	)
	return nil
}

// cancel withdraws an order and clears it from the quote book. A cancel that
// races a fill or an out-of-band cancel comes back as ErrNotFound and counts
// as success: the order is off the book either way. Any other failure leaves
// the quote book and the reservation untouched, because the order may still
// be live and its capital still committed; the caller retries next tick.
func (e *Executor) cancel(ctx context.Context, pair domain.TradingPair, a domain.OrderAction) error {
	if err := e.exchange.CancelOrder(ctx, pair, a.OrderID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("cancel order %s: %w", a.OrderID, err)
		}
		e.logger.InfoContext(ctx, "order already off the book",
			slog.String("pair", pair.String()),
			slog.String("order_id", a.OrderID),
		)
	}

	e.mu.Lock()
	q := e.quotes[pair]
	switch a.OrderID {
	case q.BidOrderID:
		e.ledgers.Release(pair, a.OrderID)
		q.BidOrderID, q.BidPrice = "", 0
	case q.AskOrderID:
		q.AskOrderID, q.AskPrice = "", 0
	}
	e.quotes[pair] = q
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "order cancelled",
		slog.String("pair", pair.String()),
		slog.String("order_id", a.OrderID),
		slog.String("reason", a.Reason),
	)
	return nil
}

// modify re-prices an order as cancel-then-place. Exchanges without atomic
// replacement leave a brief gap with no order on the book.
func (e *Executor) modify(ctx context.Context, pair domain.TradingPair, strategy string, refPrice float64, a domain.OrderAction) error {
	if err := e.cancel(ctx, pair, domain.CancelOrder(a.OrderID, a.Reason)); err != nil {
		return err
	}
	repl := domain.PlaceLimit(a.Side, a.Quantity, a.LimitPrice, a.Reason)
	return e.place(ctx, pair, strategy, refPrice, repl)
}

// fingerprint identifies an order intent for deduplication. Two actions with
// the same fingerprint inside the dedup TTL are the same intent.
func fingerprint(pair domain.TradingPair, a domain.OrderAction) string {
	return fmt.Sprintf("%s|%s|%s|%s|%.10f|%.10f|%s",
		pair.Symbol(), a.Kind, a.Side, a.OrderID, a.LimitPrice, a.Quantity, a.PositionID)
}

package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/risk"
)

// requoteDriftFraction is the share of the quoted spread the mid-price must
// drift before live quotes are torn down and re-issued.
const requoteDriftFraction = 0.5

// MarketMaker continuously quotes both sides of the market: a bid and an ask
// bracketing the mid-price by half the configured spread each. Quotes are
// re-issued when the mid drifts beyond half the spread or the quote outlives
// the trade interval. Cancel-then-place is emitted as one tightly sequenced
// action list; the brief quote gap between the cancel and the fresh place is
// a known limitation of quoting without atomic order replacement.
type MarketMaker struct {
	cfg    Config
	logger *slog.Logger
}

// NewMarketMaker creates a MarketMaker strategy.
func NewMarketMaker(cfg Config, logger *slog.Logger) *MarketMaker {
	return &MarketMaker{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", NameMarketMaking)),
	}
}

// Name returns the strategy identifier.
func (m *MarketMaker) Name() string { return NameMarketMaking }

// Evaluate maintains the pair's QuotedOrderPair.
func (m *MarketMaker) Evaluate(ctx context.Context, in TickInput) ([]domain.OrderAction, error) {
	if in.Snapshot.Bid <= 0 || in.Snapshot.Ask <= 0 {
		return nil, nil
	}

	// More than one live bid or ask means our single-quote invariant has
	// been broken on the exchange side. Never reconcile by guessing which
	// order is authoritative; halt the pair loudly.
	var bids, asks int
	for _, o := range in.OpenOrders {
		switch o.Side {
		case domain.OrderSideBuy:
			bids++
		case domain.OrderSideSell:
			asks++
		}
	}
	if bids > 1 || asks > 1 {
		return nil, fmt.Errorf("market_making: %s has %d live bids and %d live asks: %w",
			in.Pair, bids, asks, domain.ErrInvariantViolation)
	}

	mid := in.Snapshot.Mid()
	bidPrice := roundToTick(mid*(1-m.cfg.SpreadPct/2), in.Filter.PriceTick)
	askPrice := roundToTick(mid*(1+m.cfg.SpreadPct/2), in.Filter.PriceTick)
	if bidPrice <= 0 || askPrice <= bidPrice {
		return nil, nil
	}
	// The configured size is operator input, not sized from balance, so it
	// still has to clear the exchange filters before it may be quoted.
	qty := m.cfg.OrderSize
	if err := risk.ValidateQuantity(qty, bidPrice, in.Filter); err != nil {
		return nil, fmt.Errorf("market_making: order size %v on %s: %w", qty, in.Pair, err)
	}

	quote := in.Quote
	if !quote.BidLive() && !quote.AskLive() {
		m.logger.InfoContext(ctx, "quoting",
			slog.String("pair", in.Pair.String()),
			slog.Float64("mid", mid),
			slog.Float64("bid", bidPrice),
			slog.Float64("ask", askPrice),
		)
		return []domain.OrderAction{
			domain.PlaceLimit(domain.OrderSideBuy, qty, bidPrice, "mm quote bid"),
			domain.PlaceLimit(domain.OrderSideSell, qty, askPrice, "mm quote ask"),
		}, nil
	}

	// One side filled (or was never placed): restore the missing side at the
	// current level, leave the live side alone.
	if !quote.Live() {
		if !quote.BidLive() {
			return []domain.OrderAction{
				domain.PlaceLimit(domain.OrderSideBuy, qty, bidPrice, "mm restore bid"),
			}, nil
		}
		return []domain.OrderAction{
			domain.PlaceLimit(domain.OrderSideSell, qty, askPrice, "mm restore ask"),
		}, nil
	}

	driftThreshold := mid * m.cfg.SpreadPct * requoteDriftFraction
	drifted := quote.Drifted(mid, driftThreshold)
	aged := quote.Aged(time.Now().UTC(), m.cfg.TradeInterval)
	if !drifted && !aged {
		// Quote still within threshold: an unchanged snapshot produces no
		// new placements.
		return nil, nil
	}

	reason := "mm requote: drift"
	if !drifted {
		reason = "mm requote: age"
	}
	m.logger.InfoContext(ctx, "requoting",
		slog.String("pair", in.Pair.String()),
		slog.Float64("mid", mid),
		slog.Float64("quoted_mid", quote.Mid),
		slog.Bool("drifted", drifted),
		slog.Bool("aged", aged),
	)
	return []domain.OrderAction{
		domain.CancelOrder(quote.BidOrderID, reason),
		domain.CancelOrder(quote.AskOrderID, reason),
		domain.PlaceLimit(domain.OrderSideBuy, qty, bidPrice, "mm quote bid"),
		domain.PlaceLimit(domain.OrderSideSell, qty, askPrice, "mm quote ask"),
	}, nil
}

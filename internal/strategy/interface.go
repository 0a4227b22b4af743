package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// Strategy names accepted by the STRATEGY configuration key.
const (
	NameScalping       = "scalping"
	NameMarketMaking   = "market_making"
	NameTrendFollowing = "trend_following"
)

// TickInput is the contract every strategy consumes on each tick. The pair
// loop assembles it from the cached market snapshot, the position tracker,
// and the risk sizer before calling Evaluate.
type TickInput struct {
	Pair     domain.TradingPair
	Snapshot domain.MarketSnapshot
	// Positions holds every non-terminal position for the pair.
	Positions []domain.Position
	// OpenOrders holds the pair's open orders as last reported by the gateway.
	OpenOrders []domain.Order
	// Quote is the live quoted order pair, zero-valued when none (market
	// making only).
	Quote domain.QuotedOrderPair
	// EntryQuantity is the pre-sized quantity available for a new entry this
	// tick. Zero means sizing failed or no capital is allocatable; strategies
	// must not emit entries then.
	EntryQuantity float64
	// Filter carries the exchange trading rules for price rounding.
	Filter domain.SymbolFilter
}

// Strategy turns a tick into an ordered list of order actions. Evaluate must
// be synchronous and free of I/O; all exchange interaction happens in the
// executor. An error wrapping domain.ErrInvariantViolation halts trading on
// the pair.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, in TickInput) ([]domain.OrderAction, error)
}

// Config holds the tunable strategy parameters, populated from configuration.
type Config struct {
	StopLossPct      float64
	ProfitTargetPct  float64
	AllocationPct    float64
	SpreadPct        float64 // market making: full quoted spread fraction
	OrderSize        float64 // market making: fixed order quantity
	TradeInterval    time.Duration
	EMAPeriod        int // trend following: EMA length in ticks
	DowntrendProtect bool
	BuyOnly          bool
}

// openPosition returns the pair's Open position, or nil. Scalping and trend
// following hold at most one position per pair at a time.
func openPosition(positions []domain.Position) *domain.Position {
	for i := range positions {
		if positions[i].State == domain.PositionOpen {
			return &positions[i]
		}
	}
	return nil
}

// hasInFlight reports whether any position is waiting on an order fill
// (entry or exit). No new decisions are made while one is in flight.
func hasInFlight(positions []domain.Position) bool {
	for _, p := range positions {
		if p.State == domain.PositionPending || p.State == domain.PositionExitPending {
			return true
		}
	}
	return false
}

// roundToTick floors a price to the exchange price tick. A zero tick leaves
// the price unchanged.
func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	steps := int64(price / tick)
	return float64(steps) * tick
}

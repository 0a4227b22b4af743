// Package gateway defines the Exchange Gateway capability the trading core
// consumes. The core never duplicates exchange state; it only caches the last
// observation and treats the gateway as the source of market/account truth.
package gateway

import (
	"context"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// OrderRequest describes one order submission. ClientOrderID is the
// client-assigned idempotency token: retrying a submission with the same
// token cannot double-fill on exchanges that honor it.
type OrderRequest struct {
	Pair          domain.TradingPair
	Side          domain.OrderSide
	Type          domain.OrderType
	Quantity      float64
	Price         float64 // ignored for market orders
	ClientOrderID string
}

// Exchange is the authenticated exchange connectivity surface. All calls are
// idempotent-safe to retry on network failure except PlaceOrder, which is
// guarded by the ClientOrderID token. Timeout and retry policy for individual
// calls lives in the implementation, not in the trading core.
type Exchange interface {
	// GetTicker fetches the current bid/ask/last for a pair.
	GetTicker(ctx context.Context, pair domain.TradingPair) (domain.MarketSnapshot, error)
	// GetBalance returns the free balance of an asset.
	GetBalance(ctx context.Context, asset string) (float64, error)
	// GetSymbolFilter returns the exchange trading rules for a pair.
	GetSymbolFilter(ctx context.Context, pair domain.TradingPair) (domain.SymbolFilter, error)
	// PlaceOrder submits a market or limit order.
	PlaceOrder(ctx context.Context, req OrderRequest) (domain.OrderResult, error)
	// CancelOrder cancels an open order by exchange order ID.
	CancelOrder(ctx context.Context, pair domain.TradingPair, orderID string) error
	// GetOpenOrders lists all open orders for a pair.
	GetOpenOrders(ctx context.Context, pair domain.TradingPair) ([]domain.Order, error)
	// GetOrder fetches the current state of one order.
	GetOrder(ctx context.Context, pair domain.TradingPair, orderID string) (domain.Order, error)
}

package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the exchange-side order lifecycle.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status is final on the exchange side.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order represents an order as known to the exchange.
type Order struct {
	ID            string // exchange-assigned order ID
	ClientOrderID string // client-assigned idempotency token
	Pair          TradingPair
	Side          OrderSide
	Type          OrderType
	Price         float64 // 0 for market orders
	Quantity      float64
	FilledQty     float64
	AvgFillPrice  float64
	Status        OrderStatus
	CreatedAt     time.Time
}

// OrderResult wraps the gateway response after order submission.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        OrderStatus
	FilledQty     float64
	AvgFillPrice  float64
}

// Filled reports whether the submission was fully filled on placement
// (typical for market orders).
func (r OrderResult) Filled() bool {
	return r.Status == OrderStatusFilled
}

// SymbolFilter carries the exchange trading rules for one symbol. Quantities
// are floored to LotStep; orders below MinQty or MinNotional are rejected by
// the exchange, so the sizer rejects them first.
type SymbolFilter struct {
	MinQty      float64
	LotStep     float64
	MinNotional float64
	PriceTick   float64
}

package domain

import "time"

// Trade is one executed fill. Fills are persisted only so that risk tracking
// (open positions and committed capital) can be resumed after a restart.
type Trade struct {
	ID         string
	Pair       TradingPair
	Side       OrderSide
	Price      float64
	Quantity   float64
	OrderID    string
	PositionID string
	Strategy   string
	ExecutedAt time.Time
}

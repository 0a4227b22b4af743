package domain

import (
	"math"
	"time"
)

// QuotedOrderPair is the market-making state for one pair: a live bid and ask
// bracketing a reference mid-price. At most one live bid and one live ask may
// be outstanding per pair at any time.
type QuotedOrderPair struct {
	BidOrderID string
	AskOrderID string
	BidPrice   float64
	AskPrice   float64
	Mid        float64 // reference mid at quote time
	Quantity   float64
	QuotedAt   time.Time
}

// BidLive reports whether a bid order is outstanding.
func (q QuotedOrderPair) BidLive() bool { return q.BidOrderID != "" }

// AskLive reports whether an ask order is outstanding.
func (q QuotedOrderPair) AskLive() bool { return q.AskOrderID != "" }

// Live reports whether both sides of the quote are outstanding.
func (q QuotedOrderPair) Live() bool { return q.BidLive() && q.AskLive() }

// Drifted reports whether mid has moved away from the reference mid by more
// than threshold (an absolute price distance).
func (q QuotedOrderPair) Drifted(mid, threshold float64) bool {
	return math.Abs(mid-q.Mid) > threshold
}

// Aged reports whether the quote is older than maxAge.
func (q QuotedOrderPair) Aged(now time.Time, maxAge time.Duration) bool {
	return !q.QuotedAt.IsZero() && now.Sub(q.QuotedAt) > maxAge
}

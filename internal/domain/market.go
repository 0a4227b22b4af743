package domain

import "time"

// MarketSnapshot is the last observed market state for a pair. It is owned by
// the pair's tick loop, overwritten on each successful poll, and must not be
// acted on once stale.
type MarketSnapshot struct {
	Pair       TradingPair
	Bid        float64
	Ask        float64
	Last       float64
	EMA        float64 // 0 until the trend indicator has been seeded
	ObservedAt time.Time
}

// Mid returns the mid-price (bid+ask)/2, or the last trade price when either
// side of the book is missing.
func (s MarketSnapshot) Mid() float64 {
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	return s.Last
}

// Age returns how old the snapshot is relative to now.
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// Stale reports whether the snapshot is too old for decision-making. The
// engine passes 2x the trade interval as maxAge.
func (s MarketSnapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return s.ObservedAt.IsZero() || s.Age(now) > maxAge
}

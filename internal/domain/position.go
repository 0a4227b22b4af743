package domain

import (
	"fmt"
	"time"
)

// PositionState tracks one open trade through its lifecycle. The state
// machine is the single source of truth for whether capital is committed.
type PositionState string

const (
	// PositionPending means the entry order has been submitted but not filled.
	PositionPending PositionState = "pending"
	// PositionOpen means the entry order filled; the position is monitored.
	PositionOpen PositionState = "open"
	// PositionExitPending means an exit order has been submitted.
	PositionExitPending PositionState = "exit_pending"
	// PositionClosed means the exit order filled. Terminal.
	PositionClosed PositionState = "closed"
	// PositionCancelled means the entry never filled and was withdrawn. Terminal.
	PositionCancelled PositionState = "cancelled"
)

// ExitReason records which signal moved a position out of Open.
type ExitReason string

const (
	ExitReasonStopLoss     ExitReason = "stop_loss"
	ExitReasonProfitTarget ExitReason = "profit_target"
	ExitReasonDowntrend    ExitReason = "downtrend"
)

// positionTransitions is the allowed transition table. Anything not listed is
// an invalid transition.
var positionTransitions = map[PositionState][]PositionState{
	PositionPending:     {PositionOpen, PositionCancelled},
	PositionOpen:        {PositionExitPending},
	PositionExitPending: {PositionClosed, PositionOpen},
}

// Position represents one open trade. Stop and target prices are derived from
// the entry price once and never recomputed, so risk cannot drift with later
// prices.
type Position struct {
	ID          string
	Pair        TradingPair
	Side        OrderSide // long-only: always buy
	EntryPrice  float64
	Quantity    float64
	EntryTime   time.Time
	StopPrice   float64
	TargetPrice float64
	State       PositionState
	Strategy    string
	EntryOrderID string
	ExitOrderID  string
	ExitReason   ExitReason
	ExitPrice    float64
	ClosedAt     *time.Time
}

// NewPosition builds a Pending position for a submitted entry order. Stop and
// target are fixed here from the expected entry price.
func NewPosition(id string, pair TradingPair, entryPrice, qty, stopLossPct, profitTargetPct float64, strategy, entryOrderID string, now time.Time) Position {
	return Position{
		ID:           id,
		Pair:         pair,
		Side:         OrderSideBuy,
		EntryPrice:   entryPrice,
		Quantity:     qty,
		EntryTime:    now,
		StopPrice:    entryPrice * (1 - stopLossPct),
		TargetPrice:  entryPrice * (1 + profitTargetPct),
		State:        PositionPending,
		Strategy:     strategy,
		EntryOrderID: entryOrderID,
	}
}

// TransitionTo moves the position to next if the transition table allows it.
// Illegal transitions return ErrInvalidTransition and leave the position
// unchanged; terminal states never transition again.
func (p *Position) TransitionTo(next PositionState) error {
	for _, allowed := range positionTransitions[p.State] {
		if allowed == next {
			p.State = next
			return nil
		}
	}
	return fmt.Errorf("domain: position %s: %s -> %s: %w", p.ID, p.State, next, ErrInvalidTransition)
}

// Terminal reports whether the position reached a final state.
func (p Position) Terminal() bool {
	return p.State == PositionClosed || p.State == PositionCancelled
}

// Committed reports whether capital is still committed to this position.
func (p Position) Committed() bool {
	return !p.Terminal()
}

// Notional returns the quote-asset value committed at entry.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

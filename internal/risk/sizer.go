// Package risk implements order sizing, exit threshold checks, and the
// balance reservation ledger that keeps concurrent pair loops from
// over-committing a shared quote asset.
package risk

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// Size computes the order quantity for a new entry:
// (balance * allocationPct) / price, floored to the exchange lot step.
// It is a pure function. It returns ErrInsufficientBalance when the floored
// quantity falls below the exchange minimum quantity or minimum notional.
func Size(balance, allocationPct, price float64, filter domain.SymbolFilter) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("risk: size: non-positive price %v", price)
	}
	if allocationPct <= 0 || allocationPct > 1 {
		return 0, fmt.Errorf("risk: size: allocation fraction %v out of (0,1]", allocationPct)
	}

	qty := FloorToStep(balance*allocationPct/price, filter.LotStep)
	if err := ValidateQuantity(qty, price, filter); err != nil {
		return 0, err
	}
	return qty, nil
}

// ValidateQuantity checks a quantity (already sized or operator-configured,
// e.g. the fixed market-making order size) against the exchange filters.
// Every order placement passes through exactly one of Size or
// ValidateQuantity; nothing bypasses sizing.
func ValidateQuantity(qty, price float64, filter domain.SymbolFilter) error {
	if qty <= 0 || (filter.MinQty > 0 && qty < filter.MinQty) {
		return fmt.Errorf("risk: quantity %v below exchange minimum %v: %w",
			qty, filter.MinQty, domain.ErrInsufficientBalance)
	}
	if filter.MinNotional > 0 && qty*price < filter.MinNotional {
		return fmt.Errorf("risk: notional %.8f below exchange minimum %v: %w",
			qty*price, filter.MinNotional, domain.ErrInsufficientBalance)
	}
	return nil
}

// FloorToStep floors qty to a multiple of step. A zero step leaves qty
// unchanged.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

// CheckExit evaluates an open position against the current price. StopLoss
// takes priority when both thresholds are crossed in the same evaluation:
// risk containment outranks profit capture.
func CheckExit(p domain.Position, price float64) domain.ExitSignal {
	if price <= p.StopPrice {
		return domain.ExitStopLoss
	}
	if price >= p.TargetPrice {
		return domain.ExitProfitTarget
	}
	return domain.ExitNone
}

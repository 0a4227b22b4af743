package risk

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// Ledger tracks pessimistic reservations of a single quote asset (e.g. USDT)
// shared by every pair loop quoting against it. Notional is reserved at
// sizing time, before the order is submitted, and released when the position
// closes or the order is confirmed cancelled. Read-then-write balance checks
// across goroutines are never used; the ledger is the arbiter.
type Ledger struct {
	asset string
	cap   float64 // aggregate allocation fraction per pair, in (0,1]

	mu       sync.Mutex
	balance  float64
	reserved map[string]reservation // reservation key -> reservation
}

type reservation struct {
	pair     domain.TradingPair
	notional float64
}

// NewLedger creates a ledger for one quote asset with the given per-pair
// aggregate allocation cap.
func NewLedger(asset string, capPct float64) *Ledger {
	return &Ledger{
		asset:    asset,
		cap:      capPct,
		reserved: make(map[string]reservation),
	}
}

// ReservationKey builds the ledger key for a pair + client order id.
func ReservationKey(pair domain.TradingPair, orderID string) string {
	return pair.Symbol() + ":" + orderID
}

// SetBalance records the latest observed free balance of the quote asset.
func (l *Ledger) SetBalance(balance float64) {
	l.mu.Lock()
	l.balance = balance
	l.mu.Unlock()
}

// Balance returns the last observed free balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// AvailableFor returns the notional still allocatable to the pair: the
// per-pair cap (balance * capPct) minus the pair's outstanding reservations,
// bounded by what is left of the total balance.
func (l *Ledger) AvailableFor(pair domain.TradingPair) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	pairCap := l.balance*l.cap - l.outstandingForLocked(pair)
	total := l.balance - l.outstandingLocked()
	return min(max(pairCap, 0), max(total, 0))
}

// Reserve sets aside notional under key. It fails when the pair's aggregate
// reservations would exceed the cap, or when total reservations would exceed
// the balance. Reserving an existing key is an error; keys are single-use.
func (l *Ledger) Reserve(pair domain.TradingPair, key string, notional float64) error {
	if notional <= 0 {
		return fmt.Errorf("risk: ledger %s: non-positive reservation %v", l.asset, notional)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.reserved[key]; exists {
		return fmt.Errorf("risk: ledger %s: reservation %s already held: %w", l.asset, key, domain.ErrInvariantViolation)
	}
	if l.outstandingForLocked(pair)+notional > l.balance*l.cap {
		return fmt.Errorf("risk: ledger %s: pair %s over allocation cap: %w", l.asset, pair, domain.ErrInsufficientBalance)
	}
	if l.outstandingLocked()+notional > l.balance {
		return fmt.Errorf("risk: ledger %s: total reservations exceed balance: %w", l.asset, domain.ErrInsufficientBalance)
	}
	l.reserved[key] = reservation{pair: pair, notional: notional}
	return nil
}

// Release frees the reservation held under key. Releasing an unknown key is a
// no-op so cancel paths can release unconditionally.
func (l *Ledger) Release(key string) {
	l.mu.Lock()
	delete(l.reserved, key)
	l.mu.Unlock()
}

// Rekey atomically moves a reservation to a new key. Used once the exchange
// assigns an order ID to a submission reserved under its client order ID.
// Unknown old keys are ignored.
func (l *Ledger) Rekey(oldKey, newKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserved[oldKey]
	if !ok {
		return
	}
	delete(l.reserved, oldKey)
	l.reserved[newKey] = r
}

// Outstanding returns the total reserved notional across all pairs.
func (l *Ledger) Outstanding() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstandingLocked()
}

func (l *Ledger) outstandingLocked() float64 {
	var total float64
	for _, r := range l.reserved {
		total += r.notional
	}
	return total
}

func (l *Ledger) outstandingForLocked(pair domain.TradingPair) float64 {
	var total float64
	for _, r := range l.reserved {
		if r.pair == pair {
			total += r.notional
		}
	}
	return total
}

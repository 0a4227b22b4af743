package risk

import (
	"sync"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// LedgerSet holds one Ledger per quote asset. Pairs quoting against the same
// asset (ADA/USDT and SOL/USDT) share a ledger; pairs on different quote
// assets never contend.
type LedgerSet struct {
	capPct float64

	mu      sync.Mutex
	byAsset map[string]*Ledger
}

// NewLedgerSet creates an empty set. Ledgers are created on first use with
// the given per-pair allocation cap.
func NewLedgerSet(capPct float64) *LedgerSet {
	return &LedgerSet{
		capPct:  capPct,
		byAsset: make(map[string]*Ledger),
	}
}

// For returns the ledger for a quote asset, creating it if needed.
func (s *LedgerSet) For(asset string) *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byAsset[asset]
	if !ok {
		l = NewLedger(asset, s.capPct)
		s.byAsset[asset] = l
	}
	return l
}

// Reserve sets aside notional of the pair's quote asset under the pair+order
// reservation key.
func (s *LedgerSet) Reserve(pair domain.TradingPair, orderID string, notional float64) error {
	return s.For(pair.Quote).Reserve(pair, ReservationKey(pair, orderID), notional)
}

// Release frees the reservation held for a pair+order. Unknown reservations
// are ignored.
func (s *LedgerSet) Release(pair domain.TradingPair, orderID string) {
	s.For(pair.Quote).Release(ReservationKey(pair, orderID))
}

// Rekey moves a pair's reservation from one order ID to another.
func (s *LedgerSet) Rekey(pair domain.TradingPair, oldID, newID string) {
	s.For(pair.Quote).Rekey(ReservationKey(pair, oldID), ReservationKey(pair, newID))
}

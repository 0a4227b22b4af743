package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

func ledgerPair(t *testing.T, s string) domain.TradingPair {
	t.Helper()
	p, err := domain.ParsePair(s)
	require.NoError(t, err)
	return p
}

func TestLedgerReserveRelease(t *testing.T) {
	ada := ledgerPair(t, "ADA/USDT")
	l := NewLedger("USDT", 0.05)
	l.SetBalance(1000)

	require.InDelta(t, 50, l.AvailableFor(ada), 1e-9)

	require.NoError(t, l.Reserve(ada, ReservationKey(ada, "o1"), 30))
	require.InDelta(t, 20, l.AvailableFor(ada), 1e-9)

	// Second entry would push the pair past the aggregate cap.
	err := l.Reserve(ada, ReservationKey(ada, "o2"), 30)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	l.Release(ReservationKey(ada, "o1"))
	require.InDelta(t, 50, l.AvailableFor(ada), 1e-9)
	require.NoError(t, l.Reserve(ada, ReservationKey(ada, "o2"), 30))
}

func TestLedgerPairsShareTotalBalance(t *testing.T) {
	ada := ledgerPair(t, "ADA/USDT")
	btc := ledgerPair(t, "BTC/USDT")
	l := NewLedger("USDT", 0.6)
	l.SetBalance(100)

	require.NoError(t, l.Reserve(ada, "a", 60))
	require.NoError(t, l.Reserve(btc, "b", 40))
	// Total balance exhausted even though btc is under its own cap.
	require.ErrorIs(t, l.Reserve(btc, "c", 10), domain.ErrInsufficientBalance)
	require.InDelta(t, 100, l.Outstanding(), 1e-9)
}

func TestLedgerDuplicateKeyIsInvariantViolation(t *testing.T) {
	ada := ledgerPair(t, "ADA/USDT")
	l := NewLedger("USDT", 0.5)
	l.SetBalance(1000)

	require.NoError(t, l.Reserve(ada, "k", 10))
	require.ErrorIs(t, l.Reserve(ada, "k", 10), domain.ErrInvariantViolation)
}

func TestLedgerReleaseUnknownKeyNoop(t *testing.T) {
	l := NewLedger("USDT", 0.5)
	l.SetBalance(100)
	l.Release("never-reserved")
	require.Zero(t, l.Outstanding())
}

func TestLedgerConcurrentReserveNeverOverCommits(t *testing.T) {
	ada := ledgerPair(t, "ADA/USDT")
	btc := ledgerPair(t, "BTC/USDT")
	l := NewLedger("USDT", 0.5)
	l.SetBalance(100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		key := string(rune('a' + i%26))
		go func(i int) {
			defer wg.Done()
			_ = l.Reserve(ada, "ada"+key+string(rune(i)), 7)
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = l.Reserve(btc, "btc"+key+string(rune(i)), 7)
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, l.Outstanding(), 100.0)
	require.LessOrEqual(t, l.AvailableFor(ada), 50.0)
}

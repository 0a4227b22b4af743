package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPair(t *testing.T) TradingPair {
	t.Helper()
	p, err := ParsePair("ADA/USDT")
	require.NoError(t, err)
	return p
}

func TestNewPositionDerivesThresholds(t *testing.T) {
	p := NewPosition("pos-1", testPair(t), 0.40, 125, 0.015, 0.02, "scalping", "ord-1", time.Now())

	require.Equal(t, PositionPending, p.State)
	require.InDelta(t, 0.394, p.StopPrice, 1e-9)
	require.InDelta(t, 0.408, p.TargetPrice, 1e-9)
	require.Equal(t, OrderSideBuy, p.Side)
	require.InDelta(t, 50.0, p.Notional(), 1e-9)
}

func TestPositionLifecycleHappyPath(t *testing.T) {
	p := NewPosition("pos-1", testPair(t), 0.40, 125, 0.015, 0.02, "scalping", "ord-1", time.Now())

	require.NoError(t, p.TransitionTo(PositionOpen))
	require.NoError(t, p.TransitionTo(PositionExitPending))
	require.NoError(t, p.TransitionTo(PositionClosed))
	require.True(t, p.Terminal())
	require.False(t, p.Committed())
}

func TestPositionExitRevertsToOpen(t *testing.T) {
	p := NewPosition("pos-1", testPair(t), 0.40, 125, 0.015, 0.02, "scalping", "ord-1", time.Now())
	require.NoError(t, p.TransitionTo(PositionOpen))
	require.NoError(t, p.TransitionTo(PositionExitPending))

	// Exit order cancelled without fill: revert to monitoring.
	require.NoError(t, p.TransitionTo(PositionOpen))
	require.Equal(t, PositionOpen, p.State)
}

func TestTerminalStatesNeverTransition(t *testing.T) {
	for _, terminal := range []PositionState{PositionClosed, PositionCancelled} {
		p := NewPosition("pos-1", testPair(t), 0.40, 125, 0.015, 0.02, "scalping", "ord-1", time.Now())
		p.State = terminal
		for _, next := range []PositionState{PositionPending, PositionOpen, PositionExitPending, PositionClosed, PositionCancelled} {
			err := p.TransitionTo(next)
			require.Error(t, err, "from %s to %s", terminal, next)
			require.True(t, errors.Is(err, ErrInvalidTransition))
			require.Equal(t, terminal, p.State)
		}
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	p := NewPosition("pos-1", testPair(t), 0.40, 125, 0.015, 0.02, "scalping", "ord-1", time.Now())

	// Pending cannot jump straight to Closed or ExitPending.
	require.ErrorIs(t, p.TransitionTo(PositionClosed), ErrInvalidTransition)
	require.ErrorIs(t, p.TransitionTo(PositionExitPending), ErrInvalidTransition)
	require.Equal(t, PositionPending, p.State)

	require.NoError(t, p.TransitionTo(PositionOpen))
	// Open cannot be cancelled; capital is committed.
	require.ErrorIs(t, p.TransitionTo(PositionCancelled), ErrInvalidTransition)
}

func TestParsePairs(t *testing.T) {
	pairs, err := ParsePairs("ADA/USDT, ckb/usdt,ADA/USDT,")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, "ADAUSDT", pairs[0].Symbol())
	require.Equal(t, "CKB/USDT", pairs[1].String())

	_, err = ParsePairs(" , ")
	require.Error(t, err)

	_, err = ParsePairs("ADAUSDT")
	require.Error(t, err)
}

func TestSnapshotStaleness(t *testing.T) {
	now := time.Now()
	snap := MarketSnapshot{Pair: testPair(t), Bid: 0.399, Ask: 0.401, Last: 0.40, ObservedAt: now.Add(-45 * time.Second)}

	require.InDelta(t, 0.40, snap.Mid(), 1e-9)
	require.False(t, snap.Stale(now, 60*time.Second))
	require.True(t, snap.Stale(now, 40*time.Second))
	require.True(t, MarketSnapshot{}.Stale(now, time.Hour))
}

package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

func trendConfig() Config {
	return Config{
		StopLossPct:      0.015,
		ProfitTargetPct:  0.02,
		EMAPeriod:        3,
		DowntrendProtect: true,
		TradeInterval:    30 * time.Second,
	}
}

// feed runs Evaluate over a price series with no positions, advancing the
// per-pair EMA state, and returns the actions from the final tick.
func feed(t *testing.T, tf *TrendFollowing, prices []float64, final TickInput) []domain.OrderAction {
	t.Helper()
	for _, p := range prices {
		in := TickInput{Pair: mustPair(t), Snapshot: freshSnapshot(t, p)}
		_, err := tf.Evaluate(context.Background(), in)
		require.NoError(t, err)
	}
	actions, err := tf.Evaluate(context.Background(), final)
	require.NoError(t, err)
	return actions
}

func TestTrendEntersOnUpwardCross(t *testing.T) {
	tf := NewTrendFollowing(trendConfig(), discardLogger())

	// Three flat samples seed the EMA at 100 (price not above); the fourth
	// at 105 crosses above it.
	final := TickInput{Pair: mustPair(t), Snapshot: freshSnapshot(t, 105), EntryQuantity: 50}
	actions := feed(t, tf, []float64{100, 100, 100}, final)

	require.Len(t, actions, 1)
	require.Equal(t, domain.ActionPlace, actions[0].Kind)
	require.Equal(t, domain.OrderSideBuy, actions[0].Side)
	require.InDelta(t, 50.0, actions[0].Quantity, 1e-9)
}

func TestTrendNoEntryBeforeWarmup(t *testing.T) {
	tf := NewTrendFollowing(trendConfig(), discardLogger())

	// Second sample: EMA not yet seeded, so no cross can be signalled.
	final := TickInput{Pair: mustPair(t), Snapshot: freshSnapshot(t, 110), EntryQuantity: 50}
	actions := feed(t, tf, []float64{100}, final)
	require.Empty(t, actions)
}

func TestTrendNoEntryWithoutCross(t *testing.T) {
	tf := NewTrendFollowing(trendConfig(), discardLogger())

	// Already above after the first ready sample; staying above is not a cross.
	final := TickInput{Pair: mustPair(t), Snapshot: freshSnapshot(t, 112), EntryQuantity: 50}
	actions := feed(t, tf, []float64{100, 100, 100, 105, 110}, final)
	require.Empty(t, actions)
}

func TestTrendExitsOnDownwardCross(t *testing.T) {
	tf := NewTrendFollowing(trendConfig(), discardLogger())

	// Entry at 80 keeps the stop (78.8) and target (81.6) clear of the final
	// price, so only the downtrend cross can fire.
	open := domain.NewPosition("p1", mustPair(t), 80, 50, 0.015, 0.02, NameTrendFollowing, "o1", time.Now())
	require.NoError(t, open.TransitionTo(domain.PositionOpen))

	final := TickInput{
		Pair:      mustPair(t),
		Snapshot:  freshSnapshot(t, 80),
		Positions: []domain.Position{open},
	}
	actions := feed(t, tf, []float64{100, 100, 100, 105}, final)

	require.Len(t, actions, 1)
	require.Equal(t, domain.OrderSideSell, actions[0].Side)
	require.Equal(t, "p1", actions[0].PositionID)
	require.Contains(t, actions[0].Reason, domain.ExitDowntrend.String())
}

func TestTrendStopLossOutranksDowntrend(t *testing.T) {
	tf := NewTrendFollowing(trendConfig(), discardLogger())

	// The final price is both below the stop (98.5) and a downward cross;
	// the stop-loss must be the reported signal.
	open := domain.NewPosition("p1", mustPair(t), 100, 50, 0.015, 0.02, NameTrendFollowing, "o1", time.Now())
	require.NoError(t, open.TransitionTo(domain.PositionOpen))

	final := TickInput{
		Pair:      mustPair(t),
		Snapshot:  freshSnapshot(t, 80),
		Positions: []domain.Position{open},
	}
	actions := feed(t, tf, []float64{100, 100, 100, 105}, final)

	require.Len(t, actions, 1)
	require.Contains(t, actions[0].Reason, domain.ExitStopLoss.String())
}

func TestTrendBuyOnlySuppressesDowntrendExit(t *testing.T) {
	cfg := trendConfig()
	cfg.BuyOnly = true
	tf := NewTrendFollowing(cfg, discardLogger())

	open := domain.NewPosition("p1", mustPair(t), 80, 50, 0.015, 0.02, NameTrendFollowing, "o1", time.Now())
	require.NoError(t, open.TransitionTo(domain.PositionOpen))

	final := TickInput{
		Pair:      mustPair(t),
		Snapshot:  freshSnapshot(t, 80),
		Positions: []domain.Position{open},
	}
	actions := feed(t, tf, []float64{100, 100, 100, 105}, final)
	require.Empty(t, actions, "buy-only mode never sells on a trend signal")
}

func TestTrendTracksPairsIndependently(t *testing.T) {
	tf := NewTrendFollowing(trendConfig(), discardLogger())
	ada := mustPair(t)
	sol, err := domain.ParsePair("SOL/USDT")
	require.NoError(t, err)

	for _, p := range []float64{100, 100, 100, 105} {
		_, err := tf.Evaluate(context.Background(), TickInput{
			Pair:     ada,
			Snapshot: domain.MarketSnapshot{Pair: ada, Last: p, ObservedAt: time.Now().UTC()},
		})
		require.NoError(t, err)
	}

	require.Greater(t, tf.EMAValue(ada), 0.0)
	require.Zero(t, tf.EMAValue(sol), "untouched pair has no indicator state")
}

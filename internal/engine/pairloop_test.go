package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/executor"
	"github.com/alanyoungcy/spotbot/internal/gateway"
	"github.com/alanyoungcy/spotbot/internal/position"
	"github.com/alanyoungcy/spotbot/internal/risk"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// scriptedExchange serves canned responses and records placements.
type scriptedExchange struct {
	mu         sync.Mutex
	balance    float64
	balanceErr error
	ticker     domain.MarketSnapshot
	tickerErr  error
	filter     domain.SymbolFilter
	openOrders []domain.Order
	orders     map[string]domain.Order
	placed     []gateway.OrderRequest
	nextID     int
}

func newScriptedExchange(balance, last float64) *scriptedExchange {
	return &scriptedExchange{
		balance: balance,
		ticker: domain.MarketSnapshot{
			Bid: last * 0.999, Ask: last * 1.001, Last: last,
			ObservedAt: time.Now().UTC(),
		},
		orders: make(map[string]domain.Order),
	}
}

func (s *scriptedExchange) GetBalance(context.Context, string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, s.balanceErr
}

func (s *scriptedExchange) GetTicker(_ context.Context, pair domain.TradingPair) (domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickerErr != nil {
		return domain.MarketSnapshot{}, s.tickerErr
	}
	snap := s.ticker
	snap.Pair = pair
	return snap, nil
}

func (s *scriptedExchange) GetSymbolFilter(context.Context, domain.TradingPair) (domain.SymbolFilter, error) {
	return s.filter, nil
}

func (s *scriptedExchange) PlaceOrder(_ context.Context, req gateway.OrderRequest) (domain.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.placed = append(s.placed, req)
	res := domain.OrderResult{
		OrderID:       "ord-" + strconv.Itoa(s.nextID),
		ClientOrderID: req.ClientOrderID,
		Status:        domain.OrderStatusNew,
	}
	if req.Type == domain.OrderTypeMarket {
		res.Status = domain.OrderStatusFilled
		res.FilledQty = req.Quantity
	}
	return res, nil
}

func (s *scriptedExchange) CancelOrder(context.Context, domain.TradingPair, string) error {
	return nil
}

func (s *scriptedExchange) GetOpenOrders(context.Context, domain.TradingPair) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openOrders, nil
}

func (s *scriptedExchange) GetOrder(_ context.Context, _ domain.TradingPair, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

var _ gateway.Exchange = (*scriptedExchange)(nil)

// memAlerter records notifications.
type memAlerter struct {
	mu     sync.Mutex
	events []string
}

func (m *memAlerter) Notify(_ context.Context, event, _, _ string) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func testPair(t *testing.T, s string) domain.TradingPair {
	t.Helper()
	p, err := domain.ParsePair(s)
	require.NoError(t, err)
	return p
}

func newLoop(t *testing.T, ex *scriptedExchange, strat strategy.Strategy, cfg strategy.Config, alerter Alerter) (*PairLoop, *risk.LedgerSet) {
	t.Helper()
	pair := testPair(t, "ADA/USDT")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgers := risk.NewLedgerSet(cfg.AllocationPct)
	tracker := position.NewTracker(position.Config{
		StopLossPct:     cfg.StopLossPct,
		ProfitTargetPct: cfg.ProfitTargetPct,
	}, ex, nil, nil, ledgers, nil, logger)
	exec := executor.NewExecutor(ex, tracker, ledgers, time.Millisecond, logger)
	loop := NewPairLoop(pair, strat, cfg, ex, tracker, exec, ledgers, nil, alerter, 3, logger)
	return loop, ledgers
}

func scalpCfg() strategy.Config {
	return strategy.Config{
		StopLossPct:     0.015,
		ProfitTargetPct: 0.02,
		AllocationPct:   0.05,
		TradeInterval:   30 * time.Second,
	}
}

func TestTickSizesAndPlacesEntry(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, ledgers := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	loop.tick(context.Background())

	// 1000 USDT, 5% allocation at 0.40 -> 125 ADA.
	require.Len(t, ex.placed, 1)
	require.Equal(t, domain.OrderSideBuy, ex.placed[0].Side)
	require.InDelta(t, 125.0, ex.placed[0].Quantity, 1e-9)
	require.InDelta(t, 50.0, ledgers.For("USDT").Outstanding(), 1e-9)
}

func TestTickHoldsExistingPosition(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	loop.tick(context.Background())
	require.Len(t, ex.placed, 1)

	// Price inside the stop/target band: the second tick does nothing.
	loop.tick(context.Background())
	require.Len(t, ex.placed, 1)
}

func TestConsecutiveFailuresSuspendPair(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	ex.balanceErr = errors.New("timeout")
	alerter := &memAlerter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), alerter)

	for i := 0; i < 2; i++ {
		loop.tick(context.Background())
	}
	suspended, _ := loop.Suspended()
	require.False(t, suspended, "below threshold")

	loop.tick(context.Background())
	suspended, reason := loop.Suspended()
	require.True(t, suspended)
	require.Contains(t, reason, "3 consecutive failures")
	require.Equal(t, []string{EventPairSuspended}, alerter.events)

	// Suspended loop stops calling the exchange entirely.
	before := len(ex.placed)
	loop.tick(context.Background())
	require.Len(t, ex.placed, before)
}

func TestFailureStreakResetsOnSuccess(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	ex.balanceErr = errors.New("timeout")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	loop.tick(context.Background())
	loop.tick(context.Background())

	ex.mu.Lock()
	ex.balanceErr = nil
	ex.mu.Unlock()
	loop.tick(context.Background()) // succeeds, streak resets

	ex.mu.Lock()
	ex.balanceErr = errors.New("timeout")
	ex.mu.Unlock()
	loop.tick(context.Background())
	loop.tick(context.Background())

	suspended, _ := loop.Suspended()
	require.False(t, suspended, "streak must reset after a good tick")
}

func TestStaleSnapshotSkipsTrading(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	ex.ticker.ObservedAt = time.Now().UTC().Add(-5 * time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	loop.tick(context.Background())
	require.Empty(t, ex.placed)

	suspended, _ := loop.Suspended()
	require.False(t, suspended, "stale data is not a gateway failure")
}

func TestInvariantViolationSuspendsImmediately(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	ex.openOrders = []domain.Order{
		{ID: "b1", Side: domain.OrderSideBuy},
		{ID: "b2", Side: domain.OrderSideBuy},
	}
	alerter := &memAlerter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := scalpCfg()
	cfg.SpreadPct = 0.002
	cfg.OrderSize = 10
	loop, _ := newLoop(t, ex, strategy.NewMarketMaker(cfg, logger), cfg, alerter)

	loop.tick(context.Background())

	suspended, reason := loop.Suspended()
	require.True(t, suspended)
	require.Contains(t, reason, "live bids")
	require.Equal(t, []string{EventPairSuspended}, alerter.events)
}

func TestPauseAndResume(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	loop.Pause("maintenance")
	loop.tick(context.Background())
	require.Empty(t, ex.placed)

	loop.Resume()
	loop.tick(context.Background())
	require.Len(t, ex.placed, 1)
}

func TestEngineRejectsDuplicatePairs(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	eng := NewEngine(logger)
	require.NoError(t, eng.AddPair(loop))
	require.Error(t, eng.AddPair(loop))
	require.Len(t, eng.Pairs(), 1)
}

func TestEnginePauseResume(t *testing.T) {
	ex := newScriptedExchange(1000, 0.40)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop, _ := newLoop(t, ex, strategy.NewScalping(scalpCfg(), logger), scalpCfg(), nil)

	eng := NewEngine(logger)
	require.NoError(t, eng.AddPair(loop))

	unknown := domain.TradingPair{Base: "SOL", Quote: "USDT"}
	require.ErrorIs(t, eng.Pause(unknown, "maintenance"), domain.ErrNotFound)
	require.ErrorIs(t, eng.Resume(unknown), domain.ErrNotFound)

	require.NoError(t, eng.Pause(loop.pair, "maintenance"))
	err := eng.Pause(loop.pair, "again")
	require.ErrorIs(t, err, domain.ErrPairSuspended)
	require.Contains(t, err.Error(), "maintenance")

	require.NoError(t, eng.Resume(loop.pair))
	suspended, _ := loop.Suspended()
	require.False(t, suspended)
}

package position

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/gateway"
	"github.com/alanyoungcy/spotbot/internal/risk"
)

// fakeExchange serves scripted order states and records cancels.
type fakeExchange struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	cancelled []string
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{orders: make(map[string]domain.Order)}
}

func (f *fakeExchange) setOrder(o domain.Order) {
	f.mu.Lock()
	f.orders[o.ID] = o
	f.mu.Unlock()
}

func (f *fakeExchange) GetOrder(_ context.Context, _ domain.TradingPair, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ domain.TradingPair, orderID string) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, orderID)
	f.mu.Unlock()
	return nil
}

func (f *fakeExchange) GetTicker(context.Context, domain.TradingPair) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{}, nil
}
func (f *fakeExchange) GetBalance(context.Context, string) (float64, error) { return 0, nil }
func (f *fakeExchange) GetSymbolFilter(context.Context, domain.TradingPair) (domain.SymbolFilter, error) {
	return domain.SymbolFilter{}, nil
}
func (f *fakeExchange) PlaceOrder(context.Context, gateway.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}
func (f *fakeExchange) GetOpenOrders(context.Context, domain.TradingPair) ([]domain.Order, error) {
	return nil, nil
}

var _ gateway.Exchange = (*fakeExchange)(nil)

// memTradeStore records trades in memory.
type memTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (m *memTradeStore) Record(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	m.trades = append(m.trades, t)
	m.mu.Unlock()
	return nil
}

func testTracker(t *testing.T, ex *fakeExchange, trades domain.TradeStore) (*Tracker, *risk.LedgerSet) {
	t.Helper()
	ledgers := risk.NewLedgerSet(0.05)
	ledgers.For("USDT").SetBalance(1000)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(Config{
		StopLossPct:     0.015,
		ProfitTargetPct: 0.02,
		EntryTimeout:    time.Minute,
	}, ex, nil, trades, ledgers, nil, logger)
	return tr, ledgers
}

func pairADA(t *testing.T) domain.TradingPair {
	t.Helper()
	p, err := domain.ParsePair("ADA/USDT")
	require.NoError(t, err)
	return p
}

func TestOpenEntryTracksPending(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)
	pair := pairADA(t)

	p, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{OrderID: "e1", Status: domain.OrderStatusNew})
	require.NoError(t, err)
	require.Equal(t, domain.PositionPending, p.State)
	require.InDelta(t, 0.394, p.StopPrice, 1e-9)
	require.InDelta(t, 0.408, p.TargetPrice, 1e-9)

	committed := tr.Committed(pair)
	require.Len(t, committed, 1)
	require.Equal(t, p.ID, committed[0].ID)
}

func TestImmediateFillOpensPosition(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)
	pair := pairADA(t)

	p, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{
			OrderID:      "e1",
			Status:       domain.OrderStatusFilled,
			FilledQty:    125,
			AvgFillPrice: 0.401,
		})
	require.NoError(t, err)
	require.Equal(t, domain.PositionOpen, p.State)
	require.InDelta(t, 0.401, p.EntryPrice, 1e-9)
	// Thresholds stay anchored to the decision price.
	require.InDelta(t, 0.394, p.StopPrice, 1e-9)
}

func TestSyncOpensOnEntryFill(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)
	pair := pairADA(t)

	_, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{OrderID: "e1", Status: domain.OrderStatusNew})
	require.NoError(t, err)

	ex.setOrder(domain.Order{
		ID: "e1", Status: domain.OrderStatusFilled,
		FilledQty: 125, AvgFillPrice: 0.4005,
	})
	require.NoError(t, tr.Sync(context.Background(), pair))

	committed := tr.Committed(pair)
	require.Len(t, committed, 1)
	require.Equal(t, domain.PositionOpen, committed[0].State)
	require.InDelta(t, 0.4005, committed[0].EntryPrice, 1e-9)
}

func TestSyncCancelsDeadEntryAndReleasesReservation(t *testing.T) {
	ex := newFakeExchange()
	tr, ledgers := testTracker(t, ex, nil)
	pair := pairADA(t)

	require.NoError(t, ledgers.Reserve(pair, "e1", 50))
	_, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{OrderID: "e1", Status: domain.OrderStatusNew})
	require.NoError(t, err)

	ex.setOrder(domain.Order{ID: "e1", Status: domain.OrderStatusExpired})
	require.NoError(t, tr.Sync(context.Background(), pair))

	require.Empty(t, tr.Committed(pair))
	require.Zero(t, ledgers.For("USDT").Outstanding())
}

func TestSyncWithdrawsStaleEntry(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)
	tr.cfg.EntryTimeout = time.Nanosecond
	pair := pairADA(t)

	_, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{OrderID: "e1", Status: domain.OrderStatusNew})
	require.NoError(t, err)

	ex.setOrder(domain.Order{ID: "e1", Status: domain.OrderStatusNew})
	time.Sleep(time.Millisecond)
	require.NoError(t, tr.Sync(context.Background(), pair))

	require.Equal(t, []string{"e1"}, ex.cancelled)
	// Still pending until the exchange confirms the cancel.
	committed := tr.Committed(pair)
	require.Len(t, committed, 1)
	require.Equal(t, domain.PositionPending, committed[0].State)
}

func TestPartialFillOnDeadEntryOpensSmallerPosition(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)
	pair := pairADA(t)

	_, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{OrderID: "e1", Status: domain.OrderStatusNew})
	require.NoError(t, err)

	ex.setOrder(domain.Order{
		ID: "e1", Status: domain.OrderStatusCancelled,
		FilledQty: 40, AvgFillPrice: 0.40,
	})
	require.NoError(t, tr.Sync(context.Background(), pair))

	committed := tr.Committed(pair)
	require.Len(t, committed, 1)
	require.Equal(t, domain.PositionOpen, committed[0].State)
	require.InDelta(t, 40.0, committed[0].Quantity, 1e-9)
}

func TestExitFillClosesAndRecordsTrade(t *testing.T) {
	ex := newFakeExchange()
	trades := &memTradeStore{}
	tr, ledgers := testTracker(t, ex, trades)
	pair := pairADA(t)

	require.NoError(t, ledgers.Reserve(pair, "e1", 50))
	p, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{
			OrderID: "e1", Status: domain.OrderStatusFilled,
			FilledQty: 125, AvgFillPrice: 0.40,
		})
	require.NoError(t, err)

	require.NoError(t, tr.BeginExit(context.Background(), p.ID, "x1", domain.ExitReasonProfitTarget))
	ex.setOrder(domain.Order{
		ID: "x1", Status: domain.OrderStatusFilled,
		FilledQty: 125, AvgFillPrice: 0.409,
	})
	require.NoError(t, tr.Sync(context.Background(), pair))

	require.Empty(t, tr.Committed(pair))
	require.Zero(t, ledgers.For("USDT").Outstanding())
	require.Len(t, trades.trades, 1)
	require.Equal(t, p.ID, trades.trades[0].PositionID)
	require.InDelta(t, 0.409, trades.trades[0].Price, 1e-9)
}

func TestDeadExitRevertsToOpen(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)
	pair := pairADA(t)

	p, err := tr.OpenEntry(context.Background(), pair, "scalping", 0.40, 125,
		domain.OrderResult{
			OrderID: "e1", Status: domain.OrderStatusFilled,
			FilledQty: 125, AvgFillPrice: 0.40,
		})
	require.NoError(t, err)
	require.NoError(t, tr.BeginExit(context.Background(), p.ID, "x1", domain.ExitReasonStopLoss))

	ex.setOrder(domain.Order{ID: "x1", Status: domain.OrderStatusRejected})
	require.NoError(t, tr.Sync(context.Background(), pair))

	committed := tr.Committed(pair)
	require.Len(t, committed, 1)
	require.Equal(t, domain.PositionOpen, committed[0].State)
	require.Empty(t, committed[0].ExitOrderID)
}

func TestBeginExitUnknownPosition(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := testTracker(t, ex, nil)

	err := tr.BeginExit(context.Background(), "nope", "x1", domain.ExitReasonStopLoss)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// memPositionStore holds positions in memory for restart tests.
type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) Create(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	m.positions[p.ID] = p
	m.mu.Unlock()
	return nil
}

func (m *memPositionStore) Update(ctx context.Context, p domain.Position) error {
	return m.Create(ctx, p)
}

func (m *memPositionStore) GetCommitted(_ context.Context, pair domain.TradingPair) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.positions {
		if p.Pair == pair && p.Committed() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositionStore) GetCommittedAll(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.positions {
		if p.Committed() {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ domain.PositionStore = (*memPositionStore)(nil)

func TestRestoreReReservesCommittedNotional(t *testing.T) {
	ex := newFakeExchange()
	store := newMemPositionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pair := pairADA(t)

	open := domain.NewPosition("p1", pair, 0.40, 125, 0.015, 0.02, "scalping", "e1", time.Now().UTC())
	require.NoError(t, open.TransitionTo(domain.PositionOpen))
	pending := domain.NewPosition("p2", pair, 0.40, 50, 0.015, 0.02, "scalping", "e2", time.Now().UTC())
	closed := domain.NewPosition("p3", pair, 0.40, 75, 0.015, 0.02, "scalping", "e3", time.Now().UTC())
	require.NoError(t, closed.TransitionTo(domain.PositionCancelled))
	for _, p := range []domain.Position{open, pending, closed} {
		require.NoError(t, store.Create(context.Background(), p))
	}

	ledgers := risk.NewLedgerSet(0.10)
	ledgers.For("USDT").SetBalance(1000)
	tr := NewTracker(Config{
		StopLossPct:     0.015,
		ProfitTargetPct: 0.02,
		EntryTimeout:    time.Minute,
	}, ex, store, nil, ledgers, nil, logger)

	require.NoError(t, tr.Restore(context.Background()))
	require.Len(t, tr.Committed(pair), 2)

	// Open and pending notional are both committed again after the restart;
	// the cancelled position reserves nothing.
	want := open.Notional() + pending.Notional()
	require.InDelta(t, want, ledgers.For("USDT").Outstanding(), 1e-9)

	// The reservation lifts only when the restored position terminates.
	ex.setOrder(domain.Order{ID: "e2", Status: domain.OrderStatusCancelled})
	require.NoError(t, tr.Sync(context.Background(), pair))
	require.InDelta(t, open.Notional(), ledgers.For("USDT").Outstanding(), 1e-9)
}

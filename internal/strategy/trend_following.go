package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/risk"
)

// trendState is the per-pair indicator state.
type trendState struct {
	ema       *EMA
	prevAbove bool
	seen      bool // at least one ready sample observed
}

// TrendFollowing enters when the price crosses above its EMA and exits on
// stop/target, or on a downward EMA cross when downtrend protection is
// enabled. Stop-loss always outranks every other exit signal evaluated in the
// same tick.
type TrendFollowing struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	pairs map[domain.TradingPair]*trendState
}

// NewTrendFollowing creates a TrendFollowing strategy.
func NewTrendFollowing(cfg Config, logger *slog.Logger) *TrendFollowing {
	return &TrendFollowing{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", NameTrendFollowing)),
		pairs:  make(map[domain.TradingPair]*trendState),
	}
}

// Name returns the strategy identifier.
func (t *TrendFollowing) Name() string { return NameTrendFollowing }

// EMAValue returns the current EMA for a pair (0 before any sample), for
// snapshot enrichment and logging.
func (t *TrendFollowing) EMAValue(pair domain.TradingPair) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.pairs[pair]; ok {
		return st.ema.Value()
	}
	return 0
}

// observe feeds the tick price into the pair's EMA and returns the crossing
// flags. Crossings are suppressed until a full period has been observed.
func (t *TrendFollowing) observe(pair domain.TradingPair, price float64) (crossedUp, crossedDown bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.pairs[pair]
	if !ok {
		st = &trendState{ema: NewEMA(t.cfg.EMAPeriod)}
		t.pairs[pair] = st
	}

	avg := st.ema.Update(price)
	if !st.ema.Ready() {
		return false, false
	}

	above := price > avg
	if st.seen {
		crossedUp = above && !st.prevAbove
		crossedDown = !above && st.prevAbove
	}
	st.prevAbove = above
	st.seen = true
	return crossedUp, crossedDown
}

// Evaluate updates the trend filter and emits entries/exits accordingly.
func (t *TrendFollowing) Evaluate(ctx context.Context, in TickInput) ([]domain.OrderAction, error) {
	price := in.Snapshot.Last
	crossedUp, crossedDown := t.observe(in.Pair, price)

	if hasInFlight(in.Positions) {
		return nil, nil
	}

	open := openPosition(in.Positions)
	if open != nil {
		// Stop/target first; the downtrend cross only matters when neither
		// risk threshold fired (stop-loss outranks everything).
		sig := risk.CheckExit(*open, price)
		if sig == domain.ExitNone && t.cfg.DowntrendProtect && !t.cfg.BuyOnly && crossedDown {
			sig = domain.ExitDowntrend
		}
		if sig == domain.ExitNone {
			return nil, nil
		}
		t.logger.InfoContext(ctx, "exit signal",
			slog.String("pair", in.Pair.String()),
			slog.String("signal", sig.String()),
			slog.Float64("price", price),
			slog.Float64("ema", t.EMAValue(in.Pair)),
		)
		exit := domain.PlaceMarket(domain.OrderSideSell, open.Quantity, fmt.Sprintf("trend exit: %s", sig))
		exit.PositionID = open.ID
		exit.Exit = sig.Reason()
		return []domain.OrderAction{exit}, nil
	}

	if crossedUp && in.EntryQuantity > 0 {
		t.logger.InfoContext(ctx, "uptrend entry",
			slog.String("pair", in.Pair.String()),
			slog.Float64("price", price),
			slog.Float64("ema", t.EMAValue(in.Pair)),
			slog.Float64("qty", in.EntryQuantity),
		)
		return []domain.OrderAction{
			domain.PlaceMarket(domain.OrderSideBuy, in.EntryQuantity, "trend entry: crossed above ema"),
		}, nil
	}
	return nil, nil
}

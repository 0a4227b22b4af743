package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/risk"
)

// Scalping takes quick round-trip trades bounded by the fixed stop-loss and
// profit-target derived at entry. It holds at most one position per pair:
// entry at market when flat, exit at market when a risk threshold is hit.
type Scalping struct {
	cfg    Config
	logger *slog.Logger
}

// NewScalping creates a Scalping strategy.
func NewScalping(cfg Config, logger *slog.Logger) *Scalping {
	return &Scalping{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", NameScalping)),
	}
}

// Name returns the strategy identifier.
func (s *Scalping) Name() string { return NameScalping }

// Evaluate emits a market buy when flat, or a market sell when the open
// position crosses its stop or target.
func (s *Scalping) Evaluate(ctx context.Context, in TickInput) ([]domain.OrderAction, error) {
	// An unfilled entry or exit is in flight; wait for the tracker to
	// resolve it before deciding anything new.
	if hasInFlight(in.Positions) {
		return nil, nil
	}

	open := openPosition(in.Positions)
	if open == nil {
		if in.EntryQuantity <= 0 {
			return nil, nil
		}
		s.logger.DebugContext(ctx, "entering",
			slog.String("pair", in.Pair.String()),
			slog.Float64("qty", in.EntryQuantity),
			slog.Float64("price", in.Snapshot.Last),
		)
		return []domain.OrderAction{
			domain.PlaceMarket(domain.OrderSideBuy, in.EntryQuantity, "scalping entry"),
		}, nil
	}

	sig := risk.CheckExit(*open, in.Snapshot.Last)
	if sig == domain.ExitNone {
		return nil, nil
	}

	s.logger.InfoContext(ctx, "exit signal",
		slog.String("pair", in.Pair.String()),
		slog.String("signal", sig.String()),
		slog.Float64("price", in.Snapshot.Last),
		slog.Float64("stop", open.StopPrice),
		slog.Float64("target", open.TargetPrice),
	)
	exit := domain.PlaceMarket(domain.OrderSideSell, open.Quantity, fmt.Sprintf("scalping exit: %s", sig))
	exit.PositionID = open.ID
	exit.Exit = sig.Reason()
	return []domain.OrderAction{exit}, nil
}

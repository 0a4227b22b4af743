package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// Engine owns one PairLoop per configured pair and runs them concurrently.
// Loop starts are staggered across the trade interval so the pairs do not
// hammer the exchange in lockstep.
type Engine struct {
	loops  map[domain.TradingPair]*PairLoop
	order  []domain.TradingPair
	logger *slog.Logger
}

// NewEngine creates an empty engine; pairs are added with AddPair before Run.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		loops:  make(map[domain.TradingPair]*PairLoop),
		logger: logger.With(slog.String("component", "engine")),
	}
}

// AddPair registers a loop. Adding the same pair twice is an error.
func (e *Engine) AddPair(loop *PairLoop) error {
	if _, exists := e.loops[loop.pair]; exists {
		return fmt.Errorf("engine: pair %s already registered", loop.pair)
	}
	e.loops[loop.pair] = loop
	e.order = append(e.order, loop.pair)
	return nil
}

// Pairs returns the registered pairs in registration order.
func (e *Engine) Pairs() []domain.TradingPair {
	out := make([]domain.TradingPair, len(e.order))
	copy(out, e.order)
	return out
}

// Loop returns the loop for a pair, or nil.
func (e *Engine) Loop(pair domain.TradingPair) *PairLoop {
	return e.loops[pair]
}

// Pause suspends trading on one pair. Pausing an already-suspended pair is an
// error so callers cannot silently overwrite the original suspension reason.
func (e *Engine) Pause(pair domain.TradingPair, reason string) error {
	loop, ok := e.loops[pair]
	if !ok {
		return fmt.Errorf("engine: pair %s: %w", pair, domain.ErrNotFound)
	}
	if suspended, why := loop.Suspended(); suspended {
		return fmt.Errorf("engine: pair %s (%s): %w", pair, why, domain.ErrPairSuspended)
	}
	loop.Pause(reason)
	return nil
}

// Resume lifts a pair's suspension.
func (e *Engine) Resume(pair domain.TradingPair) error {
	loop, ok := e.loops[pair]
	if !ok {
		return fmt.Errorf("engine: pair %s: %w", pair, domain.ErrNotFound)
	}
	loop.Resume()
	return nil
}

// Run starts every pair loop and blocks until the context is cancelled or a
// loop returns an error. Loop i starts after i/n of the trade interval.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.order) == 0 {
		return fmt.Errorf("engine: no pairs configured")
	}
	e.logger.Info("engine starting", slog.Int("pairs", len(e.order)))
	defer e.logger.Info("engine stopped")

	g, ctx := errgroup.WithContext(ctx)
	n := len(e.order)
	for i, pair := range e.order {
		loop := e.loops[pair]
		delay := loop.cfg.TradeInterval * time.Duration(i) / time.Duration(n)
		g.Go(func() error {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			return loop.Run(ctx)
		})
	}
	return g.Wait()
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Record inserts an executed fill. Re-recording the same fill (same id) is
// silently skipped via ON CONFLICT DO NOTHING so that position reconciliation
// can be retried safely.
func (s *TradeStore) Record(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, pair, side, price, quantity,
			order_id, position_id, strategy, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Pair.String(), string(t.Side),
		t.Price, t.Quantity,
		t.OrderID, t.PositionID, t.Strategy, t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade %s: %w", t.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)

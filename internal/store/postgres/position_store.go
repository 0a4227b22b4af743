package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, pair, side, entry_price, quantity, entry_time,
	stop_price, target_price, state, strategy,
	entry_order_id, exit_order_id, exit_reason, exit_price, closed_at`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var pairStr, side, state, exitReason string

		if err := rows.Scan(
			&p.ID, &pairStr, &side,
			&p.EntryPrice, &p.Quantity, &p.EntryTime,
			&p.StopPrice, &p.TargetPrice,
			&state, &p.Strategy,
			&p.EntryOrderID, &p.ExitOrderID, &exitReason,
			&p.ExitPrice, &p.ClosedAt,
		); err != nil {
			return nil, err
		}

		pair, err := domain.ParsePair(pairStr)
		if err != nil {
			return nil, fmt.Errorf("stored pair %q: %w", pairStr, err)
		}
		p.Pair = pair
		p.Side = domain.OrderSide(side)
		p.State = domain.PositionState(state)
		p.ExitReason = domain.ExitReason(exitReason)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, pair, side, entry_price, quantity, entry_time,
			stop_price, target_price, state, strategy,
			entry_order_id, exit_order_id, exit_reason, exit_price, closed_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Pair.String(), string(p.Side),
		p.EntryPrice, p.Quantity, p.EntryTime,
		p.StopPrice, p.TargetPrice,
		string(p.State), p.Strategy,
		p.EntryOrderID, p.ExitOrderID, string(p.ExitReason),
		p.ExitPrice, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			entry_price    = $2,
			quantity       = $3,
			stop_price     = $4,
			target_price   = $5,
			state          = $6,
			entry_order_id = $7,
			exit_order_id  = $8,
			exit_reason    = $9,
			exit_price     = $10,
			closed_at      = $11,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.EntryPrice, p.Quantity,
		p.StopPrice, p.TargetPrice,
		string(p.State),
		p.EntryOrderID, p.ExitOrderID, string(p.ExitReason),
		p.ExitPrice, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetCommitted returns all non-terminal positions for a pair, oldest first.
func (s *PositionStore) GetCommitted(ctx context.Context, pair domain.TradingPair) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE pair = $1 AND state NOT IN ('closed', 'cancelled')
		 ORDER BY entry_time ASC`, pair.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: get committed positions %s: %w", pair, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan committed positions %s: %w", pair, err)
	}
	return positions, nil
}

// GetCommittedAll returns all non-terminal positions across pairs.
func (s *PositionStore) GetCommittedAll(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE state NOT IN ('closed', 'cancelled')
		 ORDER BY entry_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get committed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan committed positions: %w", err)
	}
	return positions, nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: scan position %s: %w", id, err)
	}
	if len(positions) == 0 {
		return domain.Position{}, domain.ErrNotFound
	}
	return positions[0], nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

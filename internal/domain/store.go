package domain

import (
	"context"
	"time"
)

// PositionStore persists position state so committed capital can be
// reconstructed after a restart.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	Update(ctx context.Context, p Position) error
	// GetCommitted returns all non-terminal positions for a pair.
	GetCommitted(ctx context.Context, pair TradingPair) ([]Position, error)
	// GetCommittedAll returns all non-terminal positions across pairs.
	GetCommittedAll(ctx context.Context) ([]Position, error)
}

// TradeStore records executed fills.
type TradeStore interface {
	Record(ctx context.Context, t Trade) error
}

// SnapshotCache stores the last market observation per pair.
type SnapshotCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	// Get returns ErrNotFound when no snapshot has been stored for the pair.
	Get(ctx context.Context, pair TradingPair) (MarketSnapshot, error)
}

// RateLimiter gates outbound exchange calls.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit,
	// counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is permitted, or the context is
	// cancelled.
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

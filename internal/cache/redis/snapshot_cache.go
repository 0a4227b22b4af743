package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache using Redis hashes. Each
// pair's last observation is stored at key "snapshot:{SYMBOL}" with fields
// bid, ask, last, ema, and ts (Unix nanosecond timestamp). The websocket feed
// writes it, the pair loops read it.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
// Entries expire after ttl so a dead feed cannot serve ancient prices
// forever; zero disables expiry.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.rdb, ttl: ttl}
}

func snapshotKey(pair domain.TradingPair) string {
	return "snapshot:" + pair.Symbol()
}

// Set stores the latest market observation for a pair.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	key := snapshotKey(snap.Pair)
	fields := map[string]interface{}{
		"bid":  strconv.FormatFloat(snap.Bid, 'f', -1, 64),
		"ask":  strconv.FormatFloat(snap.Ask, 'f', -1, 64),
		"last": strconv.FormatFloat(snap.Last, 'f', -1, 64),
		"ema":  strconv.FormatFloat(snap.EMA, 'f', -1, 64),
		"ts":   strconv.FormatInt(snap.ObservedAt.UnixNano(), 10),
	}

	pipe := sc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if sc.ttl > 0 {
		pipe.Expire(ctx, key, sc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Pair, err)
	}
	return nil
}

// Get retrieves the last observation for a pair. It returns domain.ErrNotFound
// when no snapshot has been stored.
func (sc *SnapshotCache) Get(ctx context.Context, pair domain.TradingPair) (domain.MarketSnapshot, error) {
	vals, err := sc.rdb.HGetAll(ctx, snapshotKey(pair)).Result()
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}

	snap := domain.MarketSnapshot{Pair: pair}
	if snap.Bid, err = parseField(vals, "bid", pair); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if snap.Ask, err = parseField(vals, "ask", pair); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if snap.Last, err = parseField(vals, "last", pair); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if snap.EMA, err = parseField(vals, "ema", pair); err != nil {
		return domain.MarketSnapshot{}, err
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: parse snapshot ts %s: %w", pair, err)
	}
	snap.ObservedAt = time.Unix(0, tsNano).UTC()

	return snap, nil
}

func parseField(vals map[string]string, field string, pair domain.TradingPair) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse snapshot %s %s: %w", field, pair, err)
	}
	return f, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)

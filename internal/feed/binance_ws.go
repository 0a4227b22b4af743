// Package feed streams real-time market data into the snapshot cache so the
// tick loops can trade off fresh prices without polling REST on every tick.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

const (
	// ProductionStreamURL is the combined-stream endpoint for live trading.
	ProductionStreamURL = "wss://stream.binance.com:9443"
	// TestnetStreamURL is the spot testnet combined-stream endpoint.
	TestnetStreamURL = "wss://stream.testnet.binance.vision"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// cacheWriteTimeout bounds each snapshot write so a slow cache cannot
	// stall the read loop.
	cacheWriteTimeout = 2 * time.Second
)

// streamEnvelope is the outer shape of combined-stream messages,
// e.g. {"stream":"adausdt@bookTicker","data":{...}}.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// bookTickerMessage carries the best bid/ask for a symbol.
type bookTickerMessage struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// tradeMessage carries an executed trade for a symbol.
type tradeMessage struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// BinanceWSFeed subscribes to the bookTicker and trade streams for the given
// pairs and keeps the snapshot cache warm with the latest observation. The
// tick loops read the cache first and fall back to REST polling when the feed
// is down, so the feed is an accelerator, not a dependency.
type BinanceWSFeed struct {
	wsURL string
	pairs []domain.TradingPair
	cache domain.SnapshotCache

	// bySymbol maps exchange symbols back to trading pairs.
	bySymbol map[string]domain.TradingPair

	mu    sync.Mutex
	state map[string]domain.MarketSnapshot

	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewBinanceWSFeed creates a feed for the given pairs. Pass sandbox=true to
// stream from the spot testnet.
func NewBinanceWSFeed(pairs []domain.TradingPair, cache domain.SnapshotCache, sandbox bool, logger *slog.Logger) *BinanceWSFeed {
	wsURL := ProductionStreamURL
	if sandbox {
		wsURL = TestnetStreamURL
	}

	bySymbol := make(map[string]domain.TradingPair, len(pairs))
	for _, p := range pairs {
		bySymbol[p.Symbol()] = p
	}

	return &BinanceWSFeed{
		wsURL:    wsURL,
		pairs:    pairs,
		cache:    cache,
		bySymbol: bySymbol,
		state:    make(map[string]domain.MarketSnapshot, len(pairs)),
		logger:   logger.With(slog.String("component", "binance_ws_feed")),
		done:     make(chan struct{}),
	}
}

// streamPath builds the combined-stream request path for all configured pairs.
func (f *BinanceWSFeed) streamPath() string {
	streams := make([]string, 0, len(f.pairs)*2)
	for _, p := range f.pairs {
		sym := strings.ToLower(p.Symbol())
		streams = append(streams, sym+"@bookTicker", sym+"@trade")
	}
	return f.wsURL + "/stream?streams=" + strings.Join(streams, "/")
}

// Run connects and streams until ctx is cancelled or Close is called.
// Reconnects with exponential backoff on disconnect.
func (f *BinanceWSFeed) Run(ctx context.Context) error {
	if len(f.pairs) == 0 {
		f.logger.Info("no pairs to stream, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed.
func (f *BinanceWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// runConnection dials the combined stream and reads messages until the
// connection drops or the feed is stopped.
func (f *BinanceWSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.streamPath(), nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// The exchange pings the client; answering keeps the read deadline fresh.
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(payload))
	})

	f.logger.Info("stream connected", slog.Int("pairs", len(f.pairs)))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-f.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, message)
	}
}

// handleMessage routes a combined-stream message by its stream suffix and
// writes the merged snapshot to the cache.
func (f *BinanceWSFeed) handleMessage(ctx context.Context, raw []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return // silently drop unparseable messages
	}

	switch {
	case strings.HasSuffix(env.Stream, "@bookTicker"):
		var msg bookTickerMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		bid, err1 := strconv.ParseFloat(msg.Bid, 64)
		ask, err2 := strconv.ParseFloat(msg.Ask, 64)
		if err1 != nil || err2 != nil {
			return
		}
		f.update(ctx, msg.Symbol, func(snap *domain.MarketSnapshot) {
			snap.Bid = bid
			snap.Ask = ask
		})

	case strings.HasSuffix(env.Stream, "@trade"):
		var msg tradeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil {
			return
		}
		f.update(ctx, msg.Symbol, func(snap *domain.MarketSnapshot) {
			snap.Last = price
		})
	}
}

// update applies fn to the per-symbol state and persists the result. Writes
// are skipped until at least one price is known so the cache never serves an
// all-zero snapshot.
func (f *BinanceWSFeed) update(ctx context.Context, symbol string, fn func(*domain.MarketSnapshot)) {
	pair, ok := f.bySymbol[symbol]
	if !ok {
		return
	}

	f.mu.Lock()
	snap := f.state[symbol]
	snap.Pair = pair
	fn(&snap)
	snap.ObservedAt = time.Now().UTC()
	f.state[symbol] = snap
	f.mu.Unlock()

	if snap.Last == 0 && (snap.Bid == 0 || snap.Ask == 0) {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()
	if err := f.cache.Set(writeCtx, snap); err != nil {
		f.logger.Warn("snapshot cache write failed",
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()))
	}
}

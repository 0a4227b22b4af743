// Package binance implements the gateway.Exchange interface against the
// Binance spot REST API. Requests to signed endpoints carry an HMAC-SHA256
// signature over the query string; sandbox mode routes everything to the
// public testnet.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/spotbot/internal/crypto"
	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/gateway"
)

const (
	// ProductionBaseURL is the live Binance spot API root.
	ProductionBaseURL = "https://api.binance.com"
	// TestnetBaseURL is the spot testnet root used in sandbox mode.
	TestnetBaseURL = "https://testnet.binance.vision"

	recvWindowMs = "5000"

	// rateLimitKey groups all REST calls under one sliding window.
	rateLimitKey = "binance:rest"

	// codeUnknownOrder is the Binance API code for an order that is no
	// longer (or never was) on the book.
	codeUnknownOrder = -2011
)

// Client is the Binance spot REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth

	limiter      domain.RateLimiter
	limitPerSec  int
	limitWindow  time.Duration
}

// NewClient creates a Binance spot client. Pass sandbox=true to route all
// calls to the testnet.
func NewClient(auth *crypto.HMACAuth, sandbox bool) *Client {
	baseURL := ProductionBaseURL
	if sandbox {
		baseURL = TestnetBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		auth: auth,
	}
}

// WithRateLimiter gates every REST call through the given limiter.
func (c *Client) WithRateLimiter(rl domain.RateLimiter, limit int, window time.Duration) *Client {
	c.limiter = rl
	c.limitPerSec = limit
	c.limitWindow = window
	return c
}

// gate blocks until the rate limiter admits one more request, or the context
// is cancelled. A nil limiter admits everything; a broken limiter must not
// halt trading, so its errors fail open.
func (c *Client) gate(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, rateLimitKey, c.limitPerSec, c.limitWindow); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	return nil
}

// publicGet performs an unauthenticated GET against path with params.
func (c *Client) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.gate(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// signedRequest performs an authenticated request. The timestamp and
// signature are appended to the query string per the Binance signing scheme.
func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.gate(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if params.Get("recvWindow") == "" {
		params.Set("recvWindow", recvWindowMs)
	}

	query := params.Encode()
	signature := c.auth.Sign(query)
	endpoint := fmt.Sprintf("%s%s?%s&signature=%s", strings.TrimRight(c.baseURL, "/"), path, query, signature)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.auth.Key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			if apiErr.Code == codeUnknownOrder {
				return nil, fmt.Errorf("binance: %s %s: %s: %w",
					req.Method, req.URL.Path, apiErr.Msg, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("binance: %s %s: http %d code %d: %s",
				req.Method, req.URL.Path, resp.StatusCode, apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("binance: %s %s: http %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	return body, nil
}

// GetTicker fetches bid/ask from the book ticker and the last trade price.
func (c *Client) GetTicker(ctx context.Context, pair domain.TradingPair) (domain.MarketSnapshot, error) {
	params := url.Values{"symbol": {pair.Symbol()}}

	bookBody, err := c.publicGet(ctx, "/api/v3/ticker/bookTicker", params)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("binance: book ticker %s: %w", pair, err)
	}
	var book bookTickerResp
	if err := json.Unmarshal(bookBody, &book); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("binance: decode book ticker: %w", err)
	}

	priceBody, err := c.publicGet(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("binance: price ticker %s: %w", pair, err)
	}
	var price priceTickerResp
	if err := json.Unmarshal(priceBody, &price); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("binance: decode price ticker: %w", err)
	}

	return domain.MarketSnapshot{
		Pair:       pair,
		Bid:        parseFloat(book.BidPrice),
		Ask:        parseFloat(book.AskPrice),
		Last:       parseFloat(price.Price),
		ObservedAt: time.Now().UTC(),
	}, nil
}

// GetBalance returns the free balance of one asset.
func (c *Client) GetBalance(ctx context.Context, asset string) (float64, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return 0, fmt.Errorf("binance: account: %w", err)
	}
	var acct accountResp
	if err := json.Unmarshal(body, &acct); err != nil {
		return 0, fmt.Errorf("binance: decode account: %w", err)
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return parseFloat(b.Free), nil
		}
	}
	return 0, nil
}

// GetSymbolFilter returns the lot-size and notional rules for a pair.
func (c *Client) GetSymbolFilter(ctx context.Context, pair domain.TradingPair) (domain.SymbolFilter, error) {
	params := url.Values{"symbol": {pair.Symbol()}}
	body, err := c.publicGet(ctx, "/api/v3/exchangeInfo", params)
	if err != nil {
		return domain.SymbolFilter{}, fmt.Errorf("binance: exchange info %s: %w", pair, err)
	}
	var info exchangeInfoResp
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.SymbolFilter{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	if len(info.Symbols) == 0 {
		return domain.SymbolFilter{}, fmt.Errorf("binance: symbol %s: %w", pair.Symbol(), domain.ErrNotFound)
	}

	var filter domain.SymbolFilter
	for _, f := range info.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			filter.MinQty = parseFloat(f.MinQty)
			filter.LotStep = parseFloat(f.StepSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			filter.MinNotional = parseFloat(f.MinNotional)
		case "PRICE_FILTER":
			filter.PriceTick = parseFloat(f.TickSize)
		}
	}
	return filter, nil
}

// PlaceOrder submits a market or limit order. The request's ClientOrderID is
// passed as newClientOrderId so a network-level retry of the same placement
// is rejected by the exchange instead of double-filling.
func (c *Client) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (domain.OrderResult, error) {
	params := url.Values{
		"symbol":   {req.Pair.Symbol()},
		"side":     {strings.ToUpper(string(req.Side))},
		"quantity": {strconv.FormatFloat(req.Quantity, 'f', -1, 64)},
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	switch req.Type {
	case domain.OrderTypeMarket:
		params.Set("type", "MARKET")
	case domain.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	default:
		return domain.OrderResult{}, fmt.Errorf("binance: unsupported order type %q", req.Type)
	}

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: place order %s %s: %w", req.Side, req.Pair, err)
	}
	var ack orderAckResp
	if err := json.Unmarshal(body, &ack); err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: decode order ack: %w", err)
	}
	result := ack.toDomainResult()
	if result.Status == domain.OrderStatusRejected {
		return result, fmt.Errorf("binance: order %s: %w", result.OrderID, domain.ErrOrderRejected)
	}
	return result, nil
}

// CancelOrder cancels an open order by exchange order ID.
func (c *Client) CancelOrder(ctx context.Context, pair domain.TradingPair, orderID string) error {
	params := url.Values{
		"symbol":  {pair.Symbol()},
		"orderId": {orderID},
	}
	if _, err := c.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params); err != nil {
		return fmt.Errorf("binance: cancel order %s %s: %w", pair, orderID, err)
	}
	return nil
}

// GetOpenOrders lists all open orders for a pair.
func (c *Client) GetOpenOrders(ctx context.Context, pair domain.TradingPair) ([]domain.Order, error) {
	params := url.Values{"symbol": {pair.Symbol()}}
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("binance: open orders %s: %w", pair, err)
	}
	var apiOrders []apiOrder
	if err := json.Unmarshal(body, &apiOrders); err != nil {
		return nil, fmt.Errorf("binance: decode open orders: %w", err)
	}
	orders := make([]domain.Order, 0, len(apiOrders))
	for _, o := range apiOrders {
		orders = append(orders, o.toDomain(pair))
	}
	return orders, nil
}

// GetOrder fetches the current state of one order.
func (c *Client) GetOrder(ctx context.Context, pair domain.TradingPair, orderID string) (domain.Order, error) {
	params := url.Values{
		"symbol":  {pair.Symbol()},
		"orderId": {orderID},
	}
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: get order %s %s: %w", pair, orderID, err)
	}
	var o apiOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return domain.Order{}, fmt.Errorf("binance: decode order: %w", err)
	}
	return o.toDomain(pair), nil
}

// Compile-time interface check.
var _ gateway.Exchange = (*Client)(nil)

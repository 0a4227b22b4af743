package binance

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// bookTickerResp is the /api/v3/ticker/bookTicker response.
type bookTickerResp struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// priceTickerResp is the /api/v3/ticker/price response.
type priceTickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// accountResp is the /api/v3/account response (balances only).
type accountResp struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// exchangeInfoResp is the /api/v3/exchangeInfo response, reduced to the
// filters the sizer needs.
type exchangeInfoResp struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
			TickSize    string `json:"tickSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// apiOrder is an order object as returned by /api/v3/order and
// /api/v3/openOrders.
type apiOrder struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	Time                int64  `json:"time"`
}

// orderAckResp is the /api/v3/order placement response (FULL response type).
type orderAckResp struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Fills               []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

// apiError is the error envelope Binance returns on non-2xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func toDomainStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW", "PENDING_NEW":
		return domain.OrderStatusNew
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartiallyFilled
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusNew
	}
}

func toDomainSide(s string) domain.OrderSide {
	if s == "SELL" {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

func toDomainType(s string) domain.OrderType {
	if s == "MARKET" {
		return domain.OrderTypeMarket
	}
	return domain.OrderTypeLimit
}

func (o apiOrder) toDomain(pair domain.TradingPair) domain.Order {
	ord := domain.Order{
		ID:            strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Pair:          pair,
		Side:          toDomainSide(o.Side),
		Type:          toDomainType(o.Type),
		Price:         parseFloat(o.Price),
		Quantity:      parseFloat(o.OrigQty),
		FilledQty:     parseFloat(o.ExecutedQty),
		Status:        toDomainStatus(o.Status),
		CreatedAt:     time.UnixMilli(o.Time),
	}
	if ord.FilledQty > 0 {
		ord.AvgFillPrice = parseFloat(o.CummulativeQuoteQty) / ord.FilledQty
	}
	return ord
}

func (r orderAckResp) toDomainResult() domain.OrderResult {
	res := domain.OrderResult{
		OrderID:       strconv.FormatInt(r.OrderID, 10),
		ClientOrderID: r.ClientOrderID,
		Status:        toDomainStatus(r.Status),
		FilledQty:     parseFloat(r.ExecutedQty),
	}
	if res.FilledQty > 0 {
		res.AvgFillPrice = parseFloat(r.CummulativeQuoteQty) / res.FilledQty
	}
	return res
}

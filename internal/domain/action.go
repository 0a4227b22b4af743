package domain

// ActionKind tags the OrderAction variant.
type ActionKind string

const (
	ActionPlace  ActionKind = "place"
	ActionCancel ActionKind = "cancel"
	ActionModify ActionKind = "modify"
)

// OrderAction is a tagged variant emitted by strategies and executed in
// order. Place with LimitPrice == 0 is a market order. Cancel and Modify
// reference an existing exchange order ID.
type OrderAction struct {
	Kind       ActionKind
	Side       OrderSide // Place only
	Quantity   float64   // Place, Modify
	LimitPrice float64   // Place (0 = market), Modify (new price)
	OrderID    string    // Cancel, Modify
	Reason     string
	// PositionID links the action to a tracked position, when any. The
	// executor uses it to route fills back to the tracker.
	PositionID string
	// Exit records which risk signal requested the sell, for exit actions.
	Exit ExitReason
}

// PlaceMarket builds a market-order placement action.
func PlaceMarket(side OrderSide, qty float64, reason string) OrderAction {
	return OrderAction{Kind: ActionPlace, Side: side, Quantity: qty, Reason: reason}
}

// PlaceLimit builds a limit-order placement action.
func PlaceLimit(side OrderSide, qty, price float64, reason string) OrderAction {
	return OrderAction{Kind: ActionPlace, Side: side, Quantity: qty, LimitPrice: price, Reason: reason}
}

// CancelOrder builds a cancellation action for an existing order.
func CancelOrder(orderID, reason string) OrderAction {
	return OrderAction{Kind: ActionCancel, OrderID: orderID, Reason: reason}
}

// ModifyOrder builds a modify action (re-price an existing order).
func ModifyOrder(orderID string, newPrice, qty float64, reason string) OrderAction {
	return OrderAction{Kind: ActionModify, OrderID: orderID, LimitPrice: newPrice, Quantity: qty, Reason: reason}
}

// ExitSignal is the result of a risk exit check on an open position.
type ExitSignal int

const (
	ExitNone ExitSignal = iota
	ExitStopLoss
	ExitProfitTarget
	ExitDowntrend
)

// String returns the lowercase signal name for logging.
func (s ExitSignal) String() string {
	switch s {
	case ExitStopLoss:
		return "stop_loss"
	case ExitProfitTarget:
		return "profit_target"
	case ExitDowntrend:
		return "downtrend"
	default:
		return "none"
	}
}

// Reason converts the signal into the ExitReason recorded on the position.
func (s ExitSignal) Reason() ExitReason {
	switch s {
	case ExitStopLoss:
		return ExitReasonStopLoss
	case ExitProfitTarget:
		return ExitReasonProfitTarget
	case ExitDowntrend:
		return ExitReasonDowntrend
	default:
		return ""
	}
}

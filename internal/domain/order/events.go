package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted once per successful checkout.
type OrderCreatedEvent struct {
	OrderID    string
	UserID     string
	Lines      []Line
	Total      decimal.Decimal
	OccurredAt time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func (e OrderCreatedEvent) EventKey() string { return e.UserID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	lines := make([]Line, len(o.Lines))
	copy(lines, o.Lines)
	return OrderCreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Lines:      lines,
		Total:      o.Total(),
		OccurredAt: time.Now().UTC(),
	}
}

const (
	FailureReasonEmptyCart         = "empty_cart"
	FailureReasonInsufficientStock = "insufficient_stock"
	FailureReasonProductNotFound   = "product_not_found"
	FailureReasonPersistenceError  = "persist_error"
)

// CheckoutFailedEvent is emitted when a checkout rolls back.
type CheckoutFailedEvent struct {
	UserID     string
	ProductID  string
	Reason     string
	OccurredAt time.Time
}

func (CheckoutFailedEvent) EventName() string { return "checkout.failed" }

func (e CheckoutFailedEvent) EventKey() string { return e.UserID }

func NewCheckoutFailedEvent(userID, productID, reason string) CheckoutFailedEvent {
	return CheckoutFailedEvent{
		UserID:     userID,
		ProductID:  productID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// StockCompensationFailedEvent signals stock that was decremented but could not be
// given back. Operators reconcile these by hand.
type StockCompensationFailedEvent struct {
	UserID     string
	ProductID  string
	Quantity   int
	Error      string
	OccurredAt time.Time
}

func (StockCompensationFailedEvent) EventName() string { return "inventory.compensation_failed" }

func (e StockCompensationFailedEvent) EventKey() string { return e.ProductID }

func NewStockCompensationFailedEvent(userID, productID string, quantity int, cause error) StockCompensationFailedEvent {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return StockCompensationFailedEvent{
		UserID:     userID,
		ProductID:  productID,
		Quantity:   quantity,
		Error:      msg,
		OccurredAt: time.Now().UTC(),
	}
}

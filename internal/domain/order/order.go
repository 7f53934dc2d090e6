package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrConflict        = errors.New("order: already exists")
	ErrNoLines         = errors.New("order: at least one line is required")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("order: price must be zero or greater")
)

// Line captures what was bought and at which unit price.
type Line struct {
	ID              string
	ProductID       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is immutable once created.
type Order struct {
	ID        string
	UserID    string
	Lines     []Line
	CreatedAt time.Time
}

func New(id, userID string, lines []Line, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if l.PriceAtPurchase.IsNegative() {
			return nil, ErrInvalidPrice
		}
	}
	copied := make([]Line, len(lines))
	copy(copied, lines)
	return &Order{
		ID:        id,
		UserID:    userID,
		Lines:     copied,
		CreatedAt: now.UTC(),
	}, nil
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = make([]Line, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}

package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesLines(t *testing.T) {
	now := time.Now()

	_, err := New("o1", "u1", nil, now)
	assert.ErrorIs(t, err, ErrNoLines)

	_, err = New("o1", "u1", []Line{{ProductID: "p1", Quantity: 0, PriceAtPurchase: decimal.NewFromInt(1)}}, now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("o1", "u1", []Line{{ProductID: "p1", Quantity: 1, PriceAtPurchase: decimal.NewFromInt(-1)}}, now)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestTotalAndIndependentLines(t *testing.T) {
	lines := []Line{
		{ID: "l1", ProductID: "p1", Quantity: 2, PriceAtPurchase: decimal.NewFromInt(10)},
		{ID: "l2", ProductID: "p2", Quantity: 1, PriceAtPurchase: decimal.RequireFromString("0.99")},
	}
	o, err := New("o1", "u1", lines, time.Now())
	require.NoError(t, err)

	lines[0].Quantity = 100
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, "20.99", o.Total().String())

	evt := NewOrderCreatedEvent(o)
	assert.Equal(t, "order.created", evt.EventName())
	assert.Equal(t, "u1", evt.EventKey())
	assert.True(t, o.Total().Equal(evt.Total))
}

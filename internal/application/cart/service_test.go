package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/outbox"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewID() string { return fmt.Sprintf("id-%d", g.n.Add(1)) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) named(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	products  *memory.ProductRepository
	carts     *memory.CartRepository
	orders    *memory.OrderRepository
	publisher *recordingPublisher
	svc       *Service
}

func newFixture(t *testing.T, seed ...*domproduct.Product) *fixture {
	t.Helper()
	f := &fixture{
		products:  memory.NewProductRepository(seed...),
		carts:     memory.NewCartRepository(),
		orders:    memory.NewOrderRepository(),
		publisher: &recordingPublisher{},
	}
	f.svc = NewService(f.products, f.carts, f.orders, &seqIDs{}, f.publisher, nil,
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	return f
}

func product(id string, price int64, stock int) *domproduct.Product {
	return &domproduct.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(price), Stock: stock}
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestGetCartCreatesLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.Empty(t, c.Lines)

	again, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	_, err = f.svc.GetCart(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAddItemMergesDuplicates(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	c, err := f.svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)
	assert.Equal(t, "Product p1", c.Lines[0].Snapshot.Name)
	assert.Equal(t, "20", c.Total().String())
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t, product("p1", 10, 0))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p1", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.AddItem(ctx, "u1", "p1", -3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.AddItem(ctx, "u1", "", 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.AddItem(ctx, "u1", "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// out of stock products may sit in a cart; checkout enforces stock
	c, err := f.svc.AddItem(ctx, "u1", "p1", 3)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5), product("p2", 3, 5))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	c, err := f.svc.AddItem(ctx, "u1", "p2", 1)
	require.NoError(t, err)
	lineID := c.Lines[0].ID

	c, err = f.svc.RemoveItem(ctx, "u1", lineID)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	version := c.Version

	again, err := f.svc.RemoveItem(ctx, "u1", lineID)
	require.NoError(t, err)
	assert.Equal(t, c.Lines, again.Lines)
	assert.Equal(t, version, again.Version)
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5))
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	lineID := c.Lines[0].ID

	_, err = f.svc.UpdateQuantity(ctx, "u1", "missing", "p1", 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.UpdateQuantity(ctx, "u1", lineID, "p2", 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.UpdateQuantity(ctx, "u1", lineID, "p1", -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	c, err = f.svc.UpdateQuantity(ctx, "u1", lineID, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Lines[0].Quantity)

	c, err = f.svc.UpdateQuantity(ctx, "u1", lineID, "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestClearCartKeepsDocument(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5))
	ctx := context.Background()

	before, err := f.svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)

	c, err := f.svc.ClearCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.Equal(t, before.ID, c.ID)
}

func TestCheckoutScenario(t *testing.T) {
	f := newFixture(t, product("P1", 10, 5))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "U1", "P1", 2)
	require.NoError(t, err)

	o, err := f.svc.Checkout(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "P1", o.Lines[0].ProductID)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(o.Lines[0].PriceAtPurchase))
	assert.Equal(t, 3, f.stock(t, "P1"))

	c, err := f.svc.GetCart(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	created := f.publisher.named(domorder.OrderCreatedEvent{}.EventName())
	require.Len(t, created, 1)
	assert.Equal(t, o.ID, created[0].(domorder.OrderCreatedEvent).OrderID)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5))
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, "nobody")
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1")
	assert.ErrorIs(t, err, ErrEmptyCart)

	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Len(t, f.publisher.named(domorder.CheckoutFailedEvent{}.EventName()), 2)
}

func TestCheckoutRollsBackPartialDecrements(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5), product("p2", 4, 1))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "u1", "p2", 2)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "p2", stockErr.ProductID)

	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Equal(t, 1, f.stock(t, "p2"))

	c, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)

	orders, err := f.orders.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutSnapshotsPrice(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	// the cart snapshot is stale; the order must use the live price
	f.products.Put(product("p1", 12, 5))
	o, err := f.svc.Checkout(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "12", o.Lines[0].PriceAtPurchase.String())

	f.products.Put(product("p1", 99, 4))

	views, err := f.svc.GetOrdersByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	line := views[0].Lines[0]
	assert.Equal(t, "12", line.PriceAtPurchase.String())
	require.NotNil(t, line.Product)
	assert.Equal(t, "99", line.Product.CurrentPrice.String())
	assert.Equal(t, "12", views[0].Total.String())
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t, product("P2", 7, 1))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "a", "P2", 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "b", "P2", 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(ctx, user)
		}()
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientStock):
			failed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, f.stock(t, "P2"))
}

func TestConcurrentAddsConverge(t *testing.T) {
	f := newFixture(t, product("p1", 1, 0))
	f.svc = NewService(f.products, f.carts, f.orders, &seqIDs{}, nil, nil,
		WithRetryPolicy(RetryPolicy{MaxAttempts: 50, BaseDelay: 0, MaxDelay: time.Millisecond}),
	)
	ctx := context.Background()
	_, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddItem(ctx, "u1", "p1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, writers, c.Lines[0].Quantity)
}

func TestGetOrdersPlaceholderForDeletedProduct(t *testing.T) {
	f := newFixture(t, product("p1", 10, 5), product("p2", 3, 5))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "u1", "p2", 2)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "u1")
	require.NoError(t, err)

	f.products.Delete("p2")

	views, err := f.svc.GetOrdersByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Len(t, views[0].Lines, 2)

	byProduct := map[string]OrderLineView{}
	for _, l := range views[0].Lines {
		byProduct[l.ProductID] = l
	}
	assert.False(t, byProduct["p1"].ProductMissing)
	assert.True(t, byProduct["p2"].ProductMissing)
	assert.Nil(t, byProduct["p2"].Product)
	assert.Equal(t, "6", byProduct["p2"].Subtotal.String())
	assert.Equal(t, "16", views[0].Total.String())
}

func TestGetOrdersEmptyHistory(t *testing.T) {
	f := newFixture(t)
	views, err := f.svc.GetOrdersByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, views)
}

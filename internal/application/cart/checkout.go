package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/outbox"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// reservation is one applied stock decrement, the saga step that needs compensation.
type reservation struct {
	productID string
	quantity  int
}

// Checkout turns the user's server-side cart into an order:
//
//  1. load the cart, fail ErrEmptyCart when it has no lines
//  2. conditionally decrement stock per line, compensating earlier decrements on failure
//  3. create the order with prices read from the live products
//  4. remove the purchased lines from the cart
//
// Steps 2 to 4 are not one transaction. A crash between 3 and 4 leaves an order
// next to a cart that still lists the purchased items. Retrying a checkout after
// a client timeout can decrement stock twice; there is no idempotency key.
func (s *Service) Checkout(ctx context.Context, userID string) (_ *domorder.Order, err error) {
	ctx, r := s.begin(ctx, useCaseCheckout, "Checkout", attribute.String("cart.user_id", userID))
	tracker := domcheckout.NewTracker()
	defer func() {
		r.extra = append(r.extra, observability.F("checkout_phase", string(tracker.Phase())))
		r.end(ctx, err)
	}()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}

	c, err := s.carts.Load(ctx, userID)
	switch {
	case errors.Is(err, domcart.ErrNotFound):
		c = domcart.New("", userID)
	case err != nil:
		return nil, wrapRepositoryError(err)
	}
	if c.IsEmpty() {
		s.publishFailure(ctx, r, userID, "", domorder.FailureReasonEmptyCart)
		return nil, fmt.Errorf("%w: user %s", ErrEmptyCart, userID)
	}
	if err := tracker.Begin(); err != nil {
		return nil, err
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("cart.lines", len(c.Lines)))

	reserved := make([]reservation, 0, len(c.Lines))
	lines := make([]domorder.Line, 0, len(c.Lines))

	rollback := func(productID, reason string) {
		s.compensate(ctx, r, userID, reserved)
		_ = tracker.Fail()
		s.publishFailure(ctx, r, userID, productID, reason)
	}

	for _, line := range c.Lines {
		p, getErr := s.products.Get(ctx, line.ProductID)
		if getErr != nil {
			reason := domorder.FailureReasonPersistenceError
			if errors.Is(getErr, domproduct.ErrNotFound) {
				reason = domorder.FailureReasonProductNotFound
			}
			rollback(line.ProductID, reason)
			return nil, wrapRepositoryError(getErr)
		}

		if decErr := s.products.DecrementStock(ctx, line.ProductID, line.Quantity); decErr != nil {
			reason := domorder.FailureReasonPersistenceError
			if errors.Is(decErr, domproduct.ErrInsufficientStock) {
				reason = domorder.FailureReasonInsufficientStock
			}
			rollback(line.ProductID, reason)
			return nil, wrapRepositoryError(decErr)
		}
		reserved = append(reserved, reservation{productID: line.ProductID, quantity: line.Quantity})
		span.AddEvent("stock.decremented", trace.WithAttributes(
			attribute.String("product.id", line.ProductID),
			attribute.Int("quantity", line.Quantity),
		))

		lines = append(lines, domorder.Line{
			ID:              s.ids.NewID(),
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PriceAtPurchase: p.Price,
		})
	}

	o, err := domorder.New(s.ids.NewID(), userID, lines, s.now())
	if err != nil {
		rollback("", domorder.FailureReasonPersistenceError)
		return nil, fmt.Errorf("checkout: construct order: %w", err)
	}
	if err := s.orders.Create(ctx, o); err != nil {
		rollback("", domorder.FailureReasonPersistenceError)
		return nil, wrapRepositoryError(err)
	}
	_ = tracker.OrderCreated()
	span.SetAttributes(attribute.String("order.id", o.ID))
	r.extra = append(r.extra,
		observability.F("order_id", o.ID),
		observability.F("order_total", o.Total().String()),
	)

	// The order is committed: a caller that goes away now must not leave the
	// purchased lines in the cart for a second checkout to buy again.
	committed := context.WithoutCancel(ctx)

	// Only the purchased quantities are taken out rather than clearing the whole
	// list, so lines added by a concurrent request survive.
	if clearErr := s.removePurchased(committed, r, userID, c); clearErr != nil {
		r.note("CART_CLEAR_FAILED", observability.F("cart_clear_error", clearErr.Error()))
		r.logger.Error("cart_clear_after_checkout_failed",
			observability.F("order_id", o.ID),
			observability.F("error", clearErr.Error()),
		)
	}

	if pubErr := s.publish(committed, domorder.NewOrderCreatedEvent(o)); pubErr != nil {
		r.note("EVENT_PUBLISH_FAILED", observability.F("event_publish_error", pubErr.Error()))
	}

	return o.Clone(), nil
}

// compensate gives back every applied decrement, newest first. It runs detached
// from ctx cancellation. A failed increment is logged, counted and announced but
// never returned: the checkout error the caller sees stays the original one.
func (s *Service) compensate(ctx context.Context, r *run, userID string, reserved []reservation) {
	if len(reserved) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		res := reserved[i]
		err := s.products.IncrementStock(ctx, res.productID, res.quantity)
		if err == nil {
			s.compensations.Add(1, observability.L("outcome", "success"))
			continue
		}

		s.compensations.Add(1, observability.L("outcome", "error"))
		r.logger.Error("stock_compensation_failed",
			observability.F("product_id", res.productID),
			observability.F("quantity", res.quantity),
			observability.F("error", err.Error()),
			observability.F("alert", true),
		)
		_ = s.publish(ctx, domorder.NewStockCompensationFailedEvent(userID, res.productID, res.quantity, err))
	}
	trace.SpanFromContext(ctx).AddEvent("stock.compensated",
		trace.WithAttributes(attribute.Int("steps", len(reserved))),
	)
}

// removePurchased takes the purchased quantities out of the cart. Without
// concurrent edits this empties it; lines added while the checkout ran survive.
func (s *Service) removePurchased(ctx context.Context, r *run, userID string, purchased *domcart.Cart) error {
	bought := make(map[string]int, len(purchased.Lines))
	for _, l := range purchased.Lines {
		bought[l.ID] = l.Quantity
	}
	_, err := s.mutate(ctx, r, userID, func(c *domcart.Cart) (bool, error) {
		changed := false
		for _, l := range append([]domcart.Line(nil), c.Lines...) {
			qty, ok := bought[l.ID]
			if !ok {
				continue
			}
			remaining := l.Quantity - qty
			if remaining < 0 {
				remaining = 0
			}
			if err := c.UpdateLine(l.ID, l.ProductID, remaining); err != nil {
				return false, err
			}
			changed = true
		}
		return changed, nil
	})
	return err
}

func (s *Service) publishFailure(ctx context.Context, r *run, userID, productID, reason string) {
	r.extra = append(r.extra, observability.F("failure_reason", reason))
	_ = s.publish(ctx, domorder.NewCheckoutFailedEvent(userID, productID, reason))
}

// publish hands the event to the outbox with a short timeout. Failures are
// logged and returned for bookkeeping; they never fail the use case.
func (s *Service) publish(ctx context.Context, e domoutbox.Event) error {
	if s.publisher == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	err := s.publisher.Publish(pubCtx, e)
	if err == nil && pubCtx.Err() != nil {
		err = pubCtx.Err()
	}
	s.observeExternal(publishPeer, e.EventName(), start, err)
	if err != nil {
		logctx.FromOr(ctx, s.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
	return err
}

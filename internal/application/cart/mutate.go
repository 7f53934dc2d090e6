package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// GetCart returns the user's cart, creating an empty one on first access.
func (s *Service) GetCart(ctx context.Context, userID string) (_ *domcart.Cart, err error) {
	ctx, r := s.begin(ctx, useCaseGetCart, "GetCart", attribute.String("cart.user_id", userID))
	defer func() { r.end(ctx, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}
	return s.loadOrCreate(ctx, userID)
}

// AddItem merges quantity into the line for productID. Calling it twice with 1
// is the same as calling it once with 2. Stock is not checked here.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (_ *domcart.Cart, err error) {
	ctx, r := s.begin(ctx, useCaseAddItem, "AddItem",
		attribute.String("cart.user_id", userID),
		attribute.String("cart.product_id", productID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { r.end(ctx, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}
	if strings.TrimSpace(productID) == "" {
		return nil, invalidArgument("product id is required")
	}
	if quantity <= 0 {
		return nil, invalidArgument("quantity must be greater than zero")
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domproduct.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, wrapRepositoryError(err)
	}
	snap := domcart.Snapshot{Name: p.Name, Price: p.Price}

	return s.mutate(ctx, r, userID, func(c *domcart.Cart) (bool, error) {
		if _, err := c.AddLine(s.ids.NewID(), productID, quantity, snap); err != nil {
			return false, invalidArgument(err.Error())
		}
		return true, nil
	})
}

// RemoveItem deletes the line. A missing line is already satisfied and returns
// the cart unchanged.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID string) (_ *domcart.Cart, err error) {
	ctx, r := s.begin(ctx, useCaseRemoveItem, "RemoveItem",
		attribute.String("cart.user_id", userID),
		attribute.String("cart.line_id", lineID),
	)
	defer func() { r.end(ctx, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}
	if strings.TrimSpace(lineID) == "" {
		return nil, invalidArgument("line id is required")
	}

	removed := false
	c, err := s.mutate(ctx, r, userID, func(c *domcart.Cart) (bool, error) {
		removed = c.RemoveLine(lineID)
		return removed, nil
	})
	if err == nil && !removed {
		r.note("ALREADY_REMOVED")
	}
	return c, err
}

// UpdateQuantity sets the quantity of a line the caller knows exists. The line
// must match both lineID and productID; a mismatch means the caller's view is
// stale and fails with ErrNotFound. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID, productID string, quantity int) (_ *domcart.Cart, err error) {
	ctx, r := s.begin(ctx, useCaseUpdateQuantity, "UpdateQuantity",
		attribute.String("cart.user_id", userID),
		attribute.String("cart.line_id", lineID),
		attribute.String("cart.product_id", productID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { r.end(ctx, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}
	if strings.TrimSpace(lineID) == "" || strings.TrimSpace(productID) == "" {
		return nil, invalidArgument("line id and product id are required")
	}
	if quantity < 0 {
		return nil, invalidArgument("quantity must be zero or greater")
	}

	return s.mutate(ctx, r, userID, func(c *domcart.Cart) (bool, error) {
		if err := c.UpdateLine(lineID, productID, quantity); err != nil {
			if errors.Is(err, domcart.ErrLineNotFound) {
				return false, fmt.Errorf("%w: line %s for product %s", ErrNotFound, lineID, productID)
			}
			return false, invalidArgument(err.Error())
		}
		return true, nil
	})
}

// ClearCart empties the line list and keeps the cart document for reuse.
func (s *Service) ClearCart(ctx context.Context, userID string) (_ *domcart.Cart, err error) {
	ctx, r := s.begin(ctx, useCaseClearCart, "ClearCart", attribute.String("cart.user_id", userID))
	defer func() { r.end(ctx, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}
	return s.mutate(ctx, r, userID, func(c *domcart.Cart) (bool, error) {
		if c.IsEmpty() {
			return false, nil
		}
		c.Clear()
		return true, nil
	})
}

// mutate runs read-merge-write until the optimistic write commits or the retry
// budget is spent. apply works on a private copy and reports whether it changed
// anything; unchanged carts are returned without a write.
func (s *Service) mutate(ctx context.Context, r *run, userID string, apply func(c *domcart.Cart) (bool, error)) (*domcart.Cart, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		current, err := s.loadOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		working := current.Clone()
		changed, err := apply(working)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}

		stored, err := s.carts.Replace(ctx, working)
		if err == nil {
			if attempt > 1 {
				s.conflicts.Add(1,
					observability.L("use_case", r.useCase),
					observability.L("resolution", "resolved"),
				)
			}
			return stored, nil
		}
		if !errors.Is(err, domcart.ErrVersionConflict) {
			return nil, wrapRepositoryError(err)
		}

		lastErr = err
		r.logger.Warn("cart_write_conflict",
			observability.F("attempt", attempt),
			observability.F("max_attempts", s.retry.MaxAttempts),
			observability.F("version", working.Version),
		)
		if attempt == s.retry.MaxAttempts {
			break
		}
		s.conflicts.Add(1,
			observability.L("use_case", r.useCase),
			observability.L("resolution", "retried"),
		)
		if err := s.sleep(ctx, s.retry.Backoff(attempt)); err != nil {
			return nil, err
		}
	}

	s.conflicts.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("resolution", "exhausted"),
	)
	return nil, fmt.Errorf("%w: gave up after %d attempts: %w", ErrConflict, s.retry.MaxAttempts, lastErr)
}

func (s *Service) loadOrCreate(ctx context.Context, userID string) (*domcart.Cart, error) {
	c, err := s.carts.Load(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domcart.ErrNotFound) {
		return nil, wrapRepositoryError(err)
	}

	c, err = s.carts.CreateIfAbsent(ctx, domcart.New(s.ids.NewID(), userID))
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return c, nil
}

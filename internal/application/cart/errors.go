package cart

import (
	"context"
	"errors"
	"fmt"

	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
)

// Error kinds surfaced by the service. Callers branch on them with errors.Is:
// ErrConflict is safe to retry, ErrInvalidArgument and ErrInsufficientStock need
// different input, ErrEmptyCart and ErrNotFound end the flow.
var (
	ErrInvalidArgument   = errors.New("cart: invalid argument")
	ErrNotFound          = errors.New("cart: not found")
	ErrEmptyCart         = errors.New("cart: cart is empty")
	ErrInsufficientStock = domproduct.ErrInsufficientStock
	ErrConflict          = errors.New("cart: concurrent modification")
	ErrRepository        = errors.New("cart: repository failure")
)

// InsufficientStockError names the product that blocked a checkout.
type InsufficientStockError = domproduct.InsufficientStockError

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domproduct.ErrNotFound),
		errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domorder.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, domcart.ErrVersionConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, domproduct.ErrInsufficientStock):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

// statusOf maps an error to the low-cardinality status text used in logs and spans.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	default:
		return "INTERNAL"
	}
}

package order

import "context"

// Repository is append-only: orders are created once and never updated.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}

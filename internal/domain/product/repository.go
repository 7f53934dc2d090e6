package product

import "context"

// Repository is the inventory store contract used by checkout.
type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	// DecrementStock must be a single conditional write: it succeeds only when
	// stock >= amount at write time and returns *InsufficientStockError otherwise.
	DecrementStock(ctx context.Context, id string, amount int) error
	// IncrementStock is used for compensation only.
	IncrementStock(ctx context.Context, id string, amount int) error
}

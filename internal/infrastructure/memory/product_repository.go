package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
)

// ProductRepository keeps products in a map. The mutex makes DecrementStock a
// true check-and-set: two callers racing for the last unit cannot both win.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductRepository(seed ...*domain.Product) *ProductRepository {
	r := &ProductRepository{
		products: make(map[string]*domain.Product, len(seed)),
	}
	for _, p := range seed {
		r.Put(p)
	}
	return r
}

// Put inserts or replaces a product. Catalog management lives elsewhere; this
// exists for seeding and tests.
func (r *ProductRepository) Put(p *domain.Product) {
	if p == nil || p.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p.Clone()
}

// Delete removes a product; past orders keep referencing its id.
func (r *ProductRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, id string, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	return p.Deduct(amount)
}

// IncrementStock ignores cancellation: it only runs as compensation, which must
// complete even when the request that triggered it is gone.
func (r *ProductRepository) IncrementStock(_ context.Context, id string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	return p.Restock(amount)
}

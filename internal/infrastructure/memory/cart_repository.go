package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
)

// CartRepository stores one cart per user with a version counter checked on Replace.
type CartRepository struct {
	mu     sync.RWMutex
	byUser map[string]*domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{
		byUser: make(map[string]*domain.Cart),
	}
}

func (r *CartRepository) Load(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CartRepository) CreateIfAbsent(ctx context.Context, c *domain.Cart) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil || c.UserID == "" {
		return nil, fmt.Errorf("cart repository: user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byUser[c.UserID]; ok {
		return existing.Clone(), nil
	}
	stored := c.Clone()
	stored.Version = 1
	r.byUser[c.UserID] = stored
	return stored.Clone(), nil
}

func (r *CartRepository) Replace(ctx context.Context, c *domain.Cart) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil || c.UserID == "" {
		return nil, fmt.Errorf("cart repository: user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byUser[c.UserID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if existing.Version != c.Version {
		return nil, domain.ErrVersionConflict
	}

	stored := c.Clone()
	stored.Version = existing.Version + 1
	stored.UpdatedAt = time.Now().UTC()
	r.byUser[c.UserID] = stored
	return stored.Clone(), nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type ProductRepository struct {
	db Executor
}

func NewProductRepository(db Executor) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, price::text, stock, updated_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get product %s: %w", id, err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("postgres: product %s price %q: %w", id, price, err)
	}
	return &p, nil
}

// DecrementStock is a single conditional UPDATE; the row lock taken by the
// statement serializes concurrent decrements of the same product.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidQuantity
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2 AND stock >= $1`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: decrement stock %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: either the product is gone or its stock is short.
	var stock int
	err = r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: read stock %s: %w", id, err)
	}
	return &domain.InsufficientStockError{ProductID: id, Requested: amount, Available: stock}
}

func (r *ProductRepository) IncrementStock(ctx context.Context, id string, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidQuantity
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: increment stock %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a product. Used for seeding and tests.
func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, description, price, stock, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
		    price = EXCLUDED.price, stock = EXCLUDED.stock, updated_at = now()`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Stock,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert product %s: %w", p.ID, err)
	}
	return nil
}

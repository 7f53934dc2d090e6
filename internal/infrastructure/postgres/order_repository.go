package postgres

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create writes the order and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	return runAtomic(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO orders (id, user_id, created_at) VALUES ($1, $2, $3)`,
			o.ID, o.UserID, o.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
		}

		batch := &pgx.Batch{}
		for i, l := range o.Lines {
			batch.Queue(`
				INSERT INTO order_lines (order_id, position, id, product_id, quantity, price_at_purchase)
				VALUES ($1, $2, $3, $4, $5, $6::numeric)`,
				o.ID, i, l.ID, l.ProductID, l.Quantity, l.PriceAtPurchase.String(),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert order lines %s: %w", o.ID, err)
		}
		return nil
	})
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT o.id, o.created_at, l.id, l.product_id, l.quantity, l.price_at_purchase::text
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id, l.position`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", userID, err)
	}
	defer rows.Close()

	var (
		out     []*domain.Order
		current *domain.Order
	)
	for rows.Next() {
		var (
			o     domain.Order
			l     domain.Line
			price string
		)
		if err := rows.Scan(&o.ID, &o.CreatedAt, &l.ID, &l.ProductID, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("postgres: scan order row: %w", err)
		}
		if l.PriceAtPurchase, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: order %s price %q: %w", o.ID, price, err)
		}
		if current == nil || current.ID != o.ID {
			o.UserID = userID
			current = &o
			out = append(out, current)
		}
		current.Lines = append(current.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", userID, err)
	}
	return out, nil
}

package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ProductInfo is the live product data shown next to a past purchase.
type ProductInfo struct {
	Name         string
	Description  string
	CurrentPrice decimal.Decimal
}

type OrderLineView struct {
	LineID          string
	ProductID       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
	Subtotal        decimal.Decimal
	// Product is nil when the product no longer exists; ProductMissing is then true.
	Product        *ProductInfo
	ProductMissing bool
}

type OrderView struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	Lines     []OrderLineView
	Total     decimal.Decimal
}

// GetOrdersByUserID returns the user's orders with each line enriched from the
// catalog. Prices stay the captured ones. A product deleted since purchase turns
// into a placeholder line instead of failing the query.
func (s *Service) GetOrdersByUserID(ctx context.Context, userID string) (_ []OrderView, err error) {
	ctx, r := s.begin(ctx, useCaseListOrders, "GetOrdersByUserID", attribute.String("order.user_id", userID))
	defer func() { r.end(ctx, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, invalidArgument("user id is required")
	}

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}

	products, missing, err := s.lookupProducts(ctx, orders)
	if err != nil {
		return nil, err
	}
	if missing > 0 {
		r.note("PRODUCTS_MISSING", observability.F("missing_products", missing))
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		v := OrderView{
			ID:        o.ID,
			UserID:    o.UserID,
			CreatedAt: o.CreatedAt,
			Lines:     make([]OrderLineView, 0, len(o.Lines)),
			Total:     o.Total(),
		}
		for _, l := range o.Lines {
			lv := OrderLineView{
				LineID:          l.ID,
				ProductID:       l.ProductID,
				Quantity:        l.Quantity,
				PriceAtPurchase: l.PriceAtPurchase,
				Subtotal:        l.Subtotal(),
			}
			if info, ok := products[l.ProductID]; ok {
				lv.Product = info
			} else {
				lv.ProductMissing = true
			}
			v.Lines = append(v.Lines, lv)
		}
		views = append(views, v)
	}
	return views, nil
}

// lookupProducts fetches each distinct product once with bounded concurrency.
// Absent products are left out of the map and counted.
func (s *Service) lookupProducts(ctx context.Context, orders []*domorder.Order) (map[string]*ProductInfo, int, error) {
	ids := make(map[string]struct{})
	for _, o := range orders {
		for _, l := range o.Lines {
			ids[l.ProductID] = struct{}{}
		}
	}

	var (
		mu      sync.Mutex
		found   = make(map[string]*ProductInfo, len(ids))
		missing int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.enrichConcurrency)
	for id := range ids {
		g.Go(func() error {
			p, err := s.products.Get(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				found[id] = &ProductInfo{Name: p.Name, Description: p.Description, CurrentPrice: p.Price}
			case errors.Is(err, domproduct.ErrNotFound):
				missing++
			default:
				return wrapRepositoryError(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return found, missing, nil
}

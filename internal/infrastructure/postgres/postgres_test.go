package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type storeSuite struct {
	suite.Suite
	pool     *pgxpool.Pool
	products *ProductRepository
	orders   *OrderRepository
}

func TestPostgresStores(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	suite.Run(t, &storeSuite{})
}

func (s *storeSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := Connect(ctx, os.Getenv("TEST_DATABASE_URL"))
	s.Require().NoError(err)
	s.Require().NoError(Migrate(ctx, pool))
	s.pool = pool
	s.products = NewProductRepository(pool)
	s.orders = NewOrderRepository(pool)
}

func (s *storeSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *storeSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), `TRUNCATE TABLE order_lines, orders, products`)
	s.Require().NoError(err)
}

func (s *storeSuite) seed(id string, price string, stock int) {
	p, err := domproduct.New(id, "Product "+id, decimal.RequireFromString(price), stock)
	s.Require().NoError(err)
	s.Require().NoError(s.products.Upsert(context.Background(), p))
}

func (s *storeSuite) TestGetRoundTripsPrice() {
	s.seed("p1", "19.99", 4)

	p, err := s.products.Get(context.Background(), "p1")
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("19.99").Equal(p.Price))
	s.Equal(4, p.Stock)

	_, err = s.products.Get(context.Background(), "missing")
	s.ErrorIs(err, domproduct.ErrNotFound)
}

func (s *storeSuite) TestDecrementStockIsConditional() {
	ctx := context.Background()
	s.seed("p1", "10", 3)

	s.Require().NoError(s.products.DecrementStock(ctx, "p1", 2))

	err := s.products.DecrementStock(ctx, "p1", 2)
	var ise *domproduct.InsufficientStockError
	s.Require().True(errors.As(err, &ise))
	s.Equal("p1", ise.ProductID)
	s.Equal(1, ise.Available)

	s.ErrorIs(s.products.DecrementStock(ctx, "missing", 1), domproduct.ErrNotFound)

	s.Require().NoError(s.products.IncrementStock(ctx, "p1", 2))
	p, err := s.products.Get(ctx, "p1")
	s.Require().NoError(err)
	s.Equal(3, p.Stock)
}

func (s *storeSuite) TestConcurrentDecrementsNeverOversell() {
	ctx := context.Background()
	s.seed("p1", "10", 5)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.products.DecrementStock(ctx, "p1", 1) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(5, won)
	p, err := s.products.Get(ctx, "p1")
	s.Require().NoError(err)
	s.Equal(0, p.Stock)
}

func (s *storeSuite) TestOrdersListNewestFirst() {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	older, err := domorder.New("o1", "u1", []domorder.Line{
		{ID: "l1", ProductID: "p1", Quantity: 2, PriceAtPurchase: decimal.RequireFromString("10.50")},
		{ID: "l2", ProductID: "p2", Quantity: 1, PriceAtPurchase: decimal.RequireFromString("3")},
	}, base)
	s.Require().NoError(err)
	newer, err := domorder.New("o2", "u1", []domorder.Line{
		{ID: "l3", ProductID: "p1", Quantity: 1, PriceAtPurchase: decimal.RequireFromString("11")},
	}, base.Add(time.Hour))
	s.Require().NoError(err)

	s.Require().NoError(s.orders.Create(ctx, older))
	s.Require().NoError(s.orders.Create(ctx, newer))
	s.ErrorIs(s.orders.Create(ctx, older), domorder.ErrConflict)

	got, err := s.orders.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("o2", got[0].ID)
	s.Equal("o1", got[1].ID)
	s.Require().Len(got[1].Lines, 2)
	s.Equal("l1", got[1].Lines[0].ID)
	s.True(decimal.RequireFromString("24").Equal(got[1].Total()))

	none, err := s.orders.ListByUser(ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(none)
}

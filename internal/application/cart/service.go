package cart

import (
	"context"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/outbox"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
)

const (
	cartService = "cart-service"
	spanPrefix  = "UC."

	useCaseGetCart        = "cart.get"
	useCaseAddItem        = "cart.add_item"
	useCaseRemoveItem     = "cart.remove_item"
	useCaseUpdateQuantity = "cart.update_quantity"
	useCaseClearCart      = "cart.clear"
	useCaseCheckout       = "cart.checkout"
	useCaseListOrders     = "order.list_by_user"

	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond

	defaultEnrichConcurrency = 8
)

type IDGenerator interface {
	NewID() string
}

// Service owns the cart mutation rules and the checkout saga. It is the only
// component that touches the product, cart and order stores together.
type Service struct {
	products  domproduct.Repository
	carts     domcart.Repository
	orders    domorder.Repository
	ids       IDGenerator
	publisher domoutbox.Publisher

	retry             RetryPolicy
	now               func() time.Time
	sleep             func(ctx context.Context, d time.Duration) error
	enrichConcurrency int

	log    observability.Logger
	tracer observability.Tracer
	// RED metrics (supplied via DI; do not instantiate inside methods).
	reqCounter    observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram  observability.Histogram // usecase_duration_seconds{use_case}
	extCounter    observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram  observability.Histogram // external_request_duration_seconds{peer,endpoint}
	conflicts     observability.Counter   // cart_write_conflicts_total{use_case,resolution}
	compensations observability.Counter   // stock_compensations_total{outcome}
}

type Option func(*Service)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p.normalized() }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleeper replaces the backoff wait; tests use it to avoid real delays.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func WithEnrichConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.enrichConcurrency = n
		}
	}
}

// NewService wires the collaborators. publisher and tel may be nil.
func NewService(
	products domproduct.Repository,
	carts domcart.Repository,
	orders domorder.Repository,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts ...Option,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	metricsProvider := tel.Metrics()

	s := &Service{
		products:          products,
		carts:             carts,
		orders:            orders,
		ids:               ids,
		publisher:         publisher,
		retry:             DefaultRetryPolicy(),
		now:               time.Now,
		sleep:             sleepCtx,
		enrichConcurrency: defaultEnrichConcurrency,
		log:               tel.Logger().With(observability.F("service", cartService)),
		tracer:            tel.Tracer(),
		reqCounter:        metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram:      metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:        metricsProvider.Counter(observability.MExternalRequests),
		extHistogram:      metricsProvider.Histogram(observability.MExternalRequestDuration),
		conflicts:         metricsProvider.Counter(observability.MCartWriteConflicts),
		compensations:     metricsProvider.Counter(observability.MStockCompensations),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

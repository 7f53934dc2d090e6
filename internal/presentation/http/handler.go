package httppresentation

import (
	"context"
	"net/http"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability/logctx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CartService is the application surface the transport drives.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domcart.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*domcart.Cart, error)
	RemoveItem(ctx context.Context, userID, lineID string) (*domcart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, lineID, productID string, quantity int) (*domcart.Cart, error)
	ClearCart(ctx context.Context, userID string) (*domcart.Cart, error)
	Checkout(ctx context.Context, userID string) (*domorder.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]appcart.OrderView, error)
}

type Handler struct {
	carts   CartService
	log     observability.Logger
	tel     observability.Observability
	metrics http.Handler

	reqCounter   observability.Counter   // http_requests_total{method,route,status}
	durHistogram observability.Histogram // http_request_duration_seconds{method,route,status}
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
)

type Option func(*Handler)

// WithMetricsEndpoint serves h at GET /metrics, outside the instrumented chain.
func WithMetricsEndpoint(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

func NewHandler(carts CartService, tel observability.Observability, opts ...Option) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	h := &Handler{
		carts:        carts,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:          tel,
		reqCounter:   m.Counter(observability.MHTTPRequests),
		durHistogram: m.Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Trace → ObservabilityMiddleware (request logger + HTTP metrics) → Access log → [user] → Handler
	h.mount(r, http.MethodGet, "/health", http.HandlerFunc(h.handleHealth))

	h.mount(r, http.MethodGet, "/cart", requireUser(h.handleGetCart))
	h.mount(r, http.MethodDelete, "/cart", requireUser(h.handleClearCart))
	h.mount(r, http.MethodPost, "/cart/items", requireUser(h.handleAddItem))
	h.mount(r, http.MethodPatch, "/cart/items/{lineID}", requireUser(h.handleUpdateQuantity))
	h.mount(r, http.MethodDelete, "/cart/items/{lineID}", requireUser(h.handleRemoveItem))
	h.mount(r, http.MethodPost, "/cart/checkout", requireUser(h.handleCheckout))
	h.mount(r, http.MethodGet, "/orders", requireUser(h.handleListOrders))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

func (h *Handler) mount(r chi.Router, method, route string, handler http.Handler) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			h.reqCounter,
			h.durHistogram,
		)(
			h.withAccessLog(handler),
		),
	)
	r.Method(method, route, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Store stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.GetCart(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.ClearCart(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

type lineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

func (req lineRequest) validate() error {
	if req.ProductID == "" {
		return errMissingField("product_id")
	}
	if req.Quantity == nil {
		return errMissingField("quantity")
	}
	return nil
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	c, err := h.carts.AddItem(r.Context(), userFromContext(r.Context()), req.ProductID, *req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), userFromContext(r.Context()),
		chi.URLParam(r, "lineID"), req.ProductID, *req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "lineID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	o, err := h.carts.Checkout(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.carts.GetOrdersByUserID(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newOrderViewResponse(v))
	}
	writeJSON(w, http.StatusOK, ordersResponse{Orders: out})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		fields := []observability.Field{
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		}
		if uid := r.Header.Get(headerUserID); uid != "" {
			fields = append(fields, observability.F("user_id", uid))
		}
		logctx.FromOr(r.Context(), h.log).Info("http_access", fields...)
	})
}

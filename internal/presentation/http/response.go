package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"

	"github.com/shopspring/decimal"
)

const (
	codeInvalidArgument   = "INVALID_ARGUMENT"
	codeEmptyCart         = "EMPTY_CART"
	codeNotFound          = "NOT_FOUND"
	codeInsufficientStock = "INSUFFICIENT_STOCK"
	codeConflict          = "CONFLICT"
	codeUnauthenticated   = "UNAUTHENTICATED"
	codeInternal          = "INTERNAL"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
}

type cartLineResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type cartResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Version   int64              `json:"version"`
	Lines     []cartLineResponse `json:"lines"`
	Total     string             `json:"total"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func newCartResponse(c *domcart.Cart) cartResponse {
	out := cartResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Version:   c.Version,
		Lines:     make([]cartLineResponse, 0, len(c.Lines)),
		Total:     c.Total().StringFixed(2),
		UpdatedAt: c.UpdatedAt,
	}
	for _, l := range c.Lines {
		out.Lines = append(out.Lines, cartLineResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.Snapshot.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.Snapshot.Price.StringFixed(2),
			Subtotal:  l.Snapshot.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).StringFixed(2),
		})
	}
	return out
}

type productResponse struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CurrentPrice string `json:"current_price"`
}

type orderLineResponse struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"product_id"`
	Quantity        int              `json:"quantity"`
	PriceAtPurchase string           `json:"price_at_purchase"`
	Subtotal        string           `json:"subtotal"`
	Product         *productResponse `json:"product,omitempty"`
	ProductMissing  bool             `json:"product_missing,omitempty"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	CreatedAt time.Time           `json:"created_at"`
	Lines     []orderLineResponse `json:"lines"`
	Total     string              `json:"total"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

func newOrderResponse(o *domorder.Order) orderResponse {
	out := orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		CreatedAt: o.CreatedAt,
		Lines:     make([]orderLineResponse, 0, len(o.Lines)),
		Total:     o.Total().StringFixed(2),
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, orderLineResponse{
			ID:              l.ID,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase.StringFixed(2),
			Subtotal:        l.Subtotal().StringFixed(2),
		})
	}
	return out
}

func newOrderViewResponse(v appcart.OrderView) orderResponse {
	out := orderResponse{
		ID:        v.ID,
		UserID:    v.UserID,
		CreatedAt: v.CreatedAt,
		Lines:     make([]orderLineResponse, 0, len(v.Lines)),
		Total:     v.Total.StringFixed(2),
	}
	for _, l := range v.Lines {
		line := orderLineResponse{
			ID:              l.LineID,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase.StringFixed(2),
			Subtotal:        l.Subtotal.StringFixed(2),
			ProductMissing:  l.ProductMissing,
		}
		if l.Product != nil {
			line.Product = &productResponse{
				Name:         l.Product.Name,
				Description:  l.Product.Description,
				CurrentPrice: l.Product.CurrentPrice.StringFixed(2),
			}
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func errMissingField(name string) error {
	return fmt.Errorf("%s is required", name)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeInvalidArgument})
}

func writeDomainError(w http.ResponseWriter, err error) {
	body := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, appcart.ErrInvalidArgument):
		status, body.Code = http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, appcart.ErrEmptyCart):
		status, body.Code = http.StatusBadRequest, codeEmptyCart
	case errors.Is(err, appcart.ErrInsufficientStock):
		status, body.Code = http.StatusConflict, codeInsufficientStock
		var ise *appcart.InsufficientStockError
		if errors.As(err, &ise) {
			body.ProductID = ise.ProductID
		}
	case errors.Is(err, appcart.ErrNotFound):
		status, body.Code = http.StatusNotFound, codeNotFound
	case errors.Is(err, appcart.ErrConflict):
		status, body.Code = http.StatusConflict, codeConflict
	default:
		// Store and infrastructure details stay in the logs.
		body.Code, body.Error = codeInternal, "internal error"
	}
	writeJSON(w, status, body)
}

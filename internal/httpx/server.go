package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/salon-storefront/internal/cart"
	"github.com/ariefcatur/salon-storefront/internal/checkout"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/payments"
)

const maxBody = 1 << 20

// StatusCache holds the JSON order documents served by GET /orders/{id}.
type StatusCache interface {
	Get(ctx context.Context, orderID string) ([]byte, bool)
	Set(ctx context.Context, orderID string, doc []byte, version time.Time) error
	Invalidate(ctx context.Context, orderID string, version time.Time) error
}

type API struct {
	Cart     *cart.Materializer
	Carts    *cart.Coalescer
	Checkout *checkout.Service
	Orders   orders.Store
	Payments *payments.Processor
	Status   StatusCache // optional
	AdminKey string
	Timeout  time.Duration
}

func NewRouter(a *API) *chi.Mux {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// mounted outside the request timeout
	r.Post("/webhooks/payments", a.paymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Post("/cart/validate", a.validateCart)
		r.Put("/cart", a.saveCart)
		r.Get("/cart", a.getCart)
		r.Post("/checkout", a.checkout)
		r.Post("/orders/{id}/session", a.resumeSession)
		r.Get("/orders/{id}", a.getOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireAdmin)
			r.Patch("/orders/{id}/status", a.setOrderStatus)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, map[string]string{"error": kind, "message": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

// userID is the authenticated caller set by the upstream session layer, nil for guests.
func userID(r *http.Request) *string {
	v := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if v == "" {
		return nil
	}
	return &v
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Admin-Token")
		if a.AdminKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.AdminKey)) != 1 {
			writeError(w, http.StatusForbidden, "forbidden", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// mapError writes the response for an error returned by the domain packages.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cie *checkout.CartInvalidError
		ge  *checkout.GatewayError
	)
	switch {
	case errors.As(err, &cie):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "cart_invalid",
			"message": cie.View.Summary(),
			"cart":    cie.View,
		})
	case errors.As(err, &ge):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":    "gateway_unavailable",
			"message":  "payment page could not be opened, retry with the order id",
			"order_id": ge.OrderID,
		})
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidLine),
		errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, checkout.ErrCatalogUnavailable):
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog is temporarily unavailable")
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway is temporarily unavailable")
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, checkout.ErrNotPayable):
		writeError(w, http.StatusConflict, "not_payable", err.Error())
	case errors.Is(err, payments.ErrSignatureInvalid):
		writeError(w, http.StatusBadRequest, "signature_invalid", "signature verification failed")
	case errors.Is(err, payments.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, "malformed_event", err.Error())
	case errors.Is(err, cart.ErrCoalescerClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Printf("request %s %s id=%s: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/salon-storefront/internal/checkout"
)

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.Checkout.Checkout(r.Context(), checkout.Request{
		Lines:          req.Items,
		UserID:         userID(r),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) resumeSession(w http.ResponseWriter, r *http.Request) {
	res, err := a.Checkout.ResumeSession(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

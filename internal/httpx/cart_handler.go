package httpx

import (
	"net/http"

	"github.com/ariefcatur/salon-storefront/internal/cart"
)

type cartRequest struct {
	Items []cart.Line `json:"items"`
}

type cartResponse struct {
	cart.View
	Message string `json:"message"`
}

func viewResponse(v cart.View) cartResponse {
	return cartResponse{View: v, Message: v.Summary()}
}

func (a *API) validateCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := a.Cart.Reconcile(r.Context(), req.Items)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(view))
}

func (a *API) saveCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "X-User-ID is required")
		return
	}
	var req cartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lines, err := cart.Normalize(req.Items)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if err := a.Carts.Submit(*uid, lines); err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"items": lines})
}

// getCart reconciles the stored cart; the stored copy is never trusted for prices or stock.
func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "X-User-ID is required")
		return
	}
	lines, err := a.Carts.Load(r.Context(), *uid)
	if err != nil {
		mapError(w, r, err)
		return
	}
	view, err := a.Cart.Reconcile(r.Context(), lines)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(view))
}

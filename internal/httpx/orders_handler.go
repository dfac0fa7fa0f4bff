package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/salon-storefront/internal/orders"
)

func ownedBy(o orders.Order, uid *string) bool {
	return o.UserID == nil || (uid != nil && *uid == *o.UserID)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing id")
		return
	}
	ctx := r.Context()
	uid := userID(r)

	// fast path
	if a.Status != nil {
		if doc, ok := a.Status.Get(ctx, id); ok {
			var o orders.Order
			if err := json.Unmarshal(doc, &o); err == nil {
				if !ownedBy(o, uid) {
					mapError(w, r, orders.ErrNotFound)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "hit")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(doc)
				return
			}
		}
	}

	o, err := a.Orders.Get(ctx, id)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if !ownedBy(o, uid) {
		mapError(w, r, orders.ErrNotFound)
		return
	}
	if a.Status != nil {
		if doc, err := json.Marshal(o); err == nil {
			if err := a.Status.Set(ctx, id, doc, o.UpdatedAt); err != nil {
				log.Printf("order %s: cache set: %v", id, err)
			}
		}
	}
	writeJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status orders.Status `json:"status"`
}

func (a *API) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status")
		return
	}
	id := chi.URLParam(r, "id")
	o, err := a.Orders.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if a.Status != nil {
		if err := a.Status.Invalidate(r.Context(), id, o.UpdatedAt); err != nil {
			log.Printf("order %s: cache invalidate: %v", id, err)
		}
	}
	log.Printf("admin status order=%s status=%s", id, o.Status)
	writeJSON(w, http.StatusOK, o)
}

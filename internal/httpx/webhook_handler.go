package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/salon-storefront/internal/gateway"
)

// paymentWebhook reads the raw body; the signature covers the exact bytes sent.
func (a *API) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}
	out, err := a.Payments.Handle(r.Context(), body, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": out})
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	var got map[string]any
	var idem, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		idem = r.Header.Get("Idempotency-Key")
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://pay.example/cs_123"}`))
	}))
	defer srv.Close()

	uid := "user-1"
	c := NewClient(srv.URL+"/", "sk_test")
	s, err := c.CreateSession(context.Background(), SessionRequest{
		IdempotencyKey:  "order-1",
		ClientReference: "ext-1",
		Currency:        "usd",
		Items:           []LineItem{{Name: "Serum", UnitAmount: 2700, Quantity: 2}},
		ShippingAmount:  500,
		Metadata:        Metadata{OrderExternalID: "ext-1", UserID: &uid},
	})
	require.NoError(t, err)
	assert.Equal(t, Session{ID: "cs_123", URL: "https://pay.example/cs_123"}, s)
	assert.Equal(t, "order-1", idem)
	assert.Equal(t, "Bearer sk_test", auth)
	assert.Equal(t, map[string]any{"order_external_id": "ext-1", "user_id": "user-1"}, got["metadata"])
	assert.Equal(t, "ext-1", got["client_reference_id"])
}

func TestCreateSessionFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{`)) }},
		{"missing url", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"id":"cs_1"}`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewClient(srv.URL, "k").CreateSession(context.Background(), SessionRequest{})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewClient(url, "k").CreateSession(context.Background(), SessionRequest{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestParseMetadata(t *testing.T) {
	m, err := ParseMetadata(map[string]string{
		"order_external_id": "3f1c1a9e-7a1d-4d0e-9a59-1c1f5d3b2a10",
		"user_id":           "u-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "3f1c1a9e-7a1d-4d0e-9a59-1c1f5d3b2a10", m.OrderExternalID)
	require.NotNil(t, m.UserID)
	assert.Equal(t, "u-7", *m.UserID)

	m, err = ParseMetadata(nil)
	require.NoError(t, err)
	assert.Empty(t, m.OrderExternalID)
	assert.Nil(t, m.UserID)

	_, err = ParseMetadata(map[string]string{"order_external_id": "not-a-uuid"})
	assert.ErrorIs(t, err, ErrBadMetadata)
	_, err = ParseMetadata(map[string]string{"user_id": " "})
	assert.ErrorIs(t, err, ErrBadMetadata)
}

func TestParseEvent(t *testing.T) {
	ev, obj, err := ParseEvent([]byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{
		"id":"pi_1","object":"payment_intent","checkout_session":"cs_9",
		"customer_details":{"name":"Ana","phone":"111"},"shipping_details":{"name":"Ana B"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "cs_9", obj.SessionRef())
	assert.Equal(t, Contact{Name: "Ana B", Phone: "111"}, obj.Contact())

	_, obj, err = ParseEvent([]byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "cs_1", obj.SessionRef())

	for _, bad := range []string{`nope`, `{}`, `{"id":"e","type":"x"}`, `{"id":"e","type":"x","data":{"object":1}}`} {
		_, _, err := ParseEvent([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformedEvent, bad)
	}
}

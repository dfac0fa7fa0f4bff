// Package gateway talks to the hosted payment page provider: opening checkout sessions and
// decoding and verifying the webhook events it sends back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("payment gateway unavailable")

type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

type SessionRequest struct {
	// IdempotencyKey makes repeated calls for the same order return the same session.
	IdempotencyKey  string     `json:"-"`
	ClientReference string     `json:"client_reference_id"`
	Currency        string     `json:"currency"`
	Items           []LineItem `json:"line_items"`
	ShippingAmount  int64      `json:"shipping_amount"`
	SuccessURL      string     `json:"success_url"`
	CancelURL       string     `json:"cancel_url"`
	Metadata        Metadata   `json:"-"`
	CollectShipping bool       `json:"collect_shipping_address"`
	CollectPhone    bool       `json:"collect_phone_number"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Sessions is what checkout needs from the gateway.
type Sessions interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

var _ Sessions = (*Client)(nil)

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body := struct {
		SessionRequest
		Metadata map[string]string `json:"metadata"`
	}{SessionRequest: req, Metadata: req.Metadata.Map()}
	b, err := json.Marshal(body)
	if err != nil {
		return Session{}, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/checkout/sessions", bytes.NewReader(b))
	if err != nil {
		return Session{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+c.APIKey)
	if req.IdempotencyKey != "" {
		hreq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 != 2 {
		return Session{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("%w: decode session: %v", ErrUnavailable, err)
	}
	if s.ID == "" || s.URL == "" {
		return Session{}, fmt.Errorf("%w: session without id or url", ErrUnavailable)
	}
	return s, nil
}

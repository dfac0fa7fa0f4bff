package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPaid     = "OrderPaid"
	EventBookingPaid   = "BookingPaid"
	EventPaymentFailed = "PaymentFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderPaidPayload struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id,omitempty"`
	Subtotal      int64  `json:"subtotal"`
	ShippingCost  int64  `json:"shipping_cost"`
	Total         int64  `json:"total"`
	Lines         []Line `json:"lines"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

type BookingPaidPayload struct {
	BookingID string    `json:"booking_id"`
	ServiceID string    `json:"service_id"`
	StartsAt  time.Time `json:"starts_at"`
	Price     int64     `json:"price"`
}

type PaymentFailedPayload struct {
	Kind       string `json:"kind"` // order | booking
	ID         string `json:"id"`
	SessionRef string `json:"session_ref"`
	Reason     string `json:"reason,omitempty"`
}

package gateway

import (
	"encoding/json"
	"errors"
)

const (
	EventSessionCompleted          = "checkout.session.completed"
	EventSessionAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventPaymentSucceeded          = "payment_intent.succeeded"
	EventPaymentFailed             = "payment_intent.payment_failed"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Object is the union of the session and payment fields this service reads. For session
// events ID is the session reference; payment events carry it in Session.
type Object struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Session          string            `json:"checkout_session"`
	PaymentStatus    string            `json:"payment_status"`
	Metadata         map[string]string `json:"metadata"`
	CustomerDetails  *Contact          `json:"customer_details"`
	ShippingDetails  *Contact          `json:"shipping_details"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// SessionRef is the join key with local orders and bookings.
func (o Object) SessionRef() string {
	if o.Object == "checkout.session" || o.Session == "" {
		return o.ID
	}
	return o.Session
}

// Contact merges shipping over customer details, field by field.
func (o Object) Contact() Contact {
	var c Contact
	if o.CustomerDetails != nil {
		c = *o.CustomerDetails
	}
	if s := o.ShippingDetails; s != nil {
		if s.Name != "" {
			c.Name = s.Name
		}
		if s.Phone != "" {
			c.Phone = s.Phone
		}
	}
	return c
}

func (o Object) FailureReason() string {
	if o.LastPaymentError != nil {
		return o.LastPaymentError.Message
	}
	return ""
}

// ParseEvent decodes an already verified payload.
func ParseEvent(payload []byte) (Event, Object, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, Object{}, ErrMalformedEvent
	}
	if ev.ID == "" || ev.Type == "" || len(ev.Data.Object) == 0 {
		return Event{}, Object{}, ErrMalformedEvent
	}
	var obj Object
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return Event{}, Object{}, ErrMalformedEvent
	}
	return ev, obj, nil
}

// Package notify turns payment milestones into events on Kafka and, on the consuming side,
// into mail for the salon admin and the customer.
package notify

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/salon-storefront/internal/bookings"
	kafkax "github.com/ariefcatur/salon-storefront/internal/kafka"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/users"
)

type Producer interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

// Publisher is fire-and-forget: a full or closed producer is returned to the caller, who
// only logs it.
type Publisher struct {
	Producer Producer
	Service  string
}

func (p *Publisher) OrderPaid(ctx context.Context, o orders.Order, c users.Contact) error {
	payload := orders.OrderPaidPayload{
		OrderID:       o.ExternalID,
		Subtotal:      o.Subtotal,
		ShippingCost:  o.ShippingCost,
		Total:         o.Total,
		Lines:         o.Lines,
		CustomerName:  c.Name,
		CustomerEmail: c.Email,
	}
	if o.UserID != nil {
		payload.UserID = *o.UserID
	}
	return p.publish(ctx, orders.TopicOrderPaid, orders.EventOrderPaid, o.ExternalID, payload)
}

func (p *Publisher) BookingPaid(ctx context.Context, b bookings.Booking) error {
	return p.publish(ctx, orders.TopicBookingPaid, orders.EventBookingPaid, b.ID, orders.BookingPaidPayload{
		BookingID: b.ID,
		ServiceID: b.ServiceID,
		StartsAt:  b.StartsAt,
		Price:     b.Price,
	})
}

func (p *Publisher) PaymentFailed(ctx context.Context, f orders.PaymentFailedPayload) error {
	return p.publish(ctx, orders.TopicPaymentFailed, orders.EventPaymentFailed, f.ID, f)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, id string, payload any) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: id,
		Payload:       kafkax.MustMarshal(payload),
	}
	return p.Producer.Publish(topic, orders.PartitionKey(id), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

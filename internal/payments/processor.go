// Package payments applies verified gateway webhook events to orders and bookings.
//
// The conditional update in the store is the only idempotency guarantee. The Redis dedup
// marker just saves work on redeliveries and is written after an event was fully handled.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ariefcatur/salon-storefront/internal/bookings"
	"github.com/ariefcatur/salon-storefront/internal/gateway"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/users"
)

var (
	ErrSignatureInvalid = gateway.ErrSignatureInvalid
	ErrMalformedEvent   = gateway.ErrMalformedEvent
)

// Outcome says what Handle did with an accepted event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"      // row already past this transition
	OutcomeDuplicate Outcome = "duplicate" // event id seen before
	OutcomeIgnored   Outcome = "ignored"   // kind not handled
	OutcomeUnmatched Outcome = "unmatched" // no order or booking for the reference
	OutcomeMismatch  Outcome = "mismatch"  // metadata disagrees with the matched order
)

type Notifier interface {
	OrderPaid(ctx context.Context, o orders.Order, c users.Contact) error
	BookingPaid(ctx context.Context, b bookings.Booking) error
	PaymentFailed(ctx context.Context, p orders.PaymentFailedPayload) error
}

type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type StatusInvalidator interface {
	Invalidate(ctx context.Context, orderID string, version time.Time) error
}

type Processor struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time

	Orders   orders.Store
	Bookings bookings.Store
	Users    users.Store
	Notify   Notifier

	Dedup  Dedup             // optional
	Status StatusInvalidator // optional
}

type action int

const (
	actionIgnore action = iota
	actionPaid
	actionFailed
)

func classify(eventType string, obj gateway.Object) action {
	switch eventType {
	case gateway.EventSessionCompleted:
		// delayed methods complete with payment_status=unpaid and settle asynchronously
		if obj.PaymentStatus == "paid" {
			return actionPaid
		}
		return actionIgnore
	case gateway.EventSessionAsyncPaymentOK, gateway.EventPaymentSucceeded:
		return actionPaid
	case gateway.EventSessionAsyncPaymentFailed, gateway.EventPaymentFailed:
		return actionFailed
	}
	return actionIgnore
}

// Handle verifies and applies one webhook delivery. A returned error other than
// ErrSignatureInvalid or ErrMalformedEvent means the store failed and the gateway should
// redeliver.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	if err := gateway.Verify(payload, signature, p.Secret, p.Tolerance, now); err != nil {
		log.Printf("security: webhook rejected bytes=%d err=%v", len(payload), err)
		return "", ErrSignatureInvalid
	}
	ev, obj, err := gateway.ParseEvent(payload)
	if err != nil {
		return "", err
	}

	if p.Dedup != nil {
		if seen, err := p.Dedup.Seen(ctx, ev.ID); err != nil {
			log.Printf("webhook dedup lookup event=%s err=%v", ev.ID, err)
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	out, err := p.dispatch(ctx, ev, obj)
	if err != nil {
		log.Printf("webhook event=%s type=%s err=%v", ev.ID, ev.Type, err)
		return "", err
	}
	log.Printf("webhook event=%s type=%s ref=%s outcome=%s", ev.ID, ev.Type, obj.SessionRef(), out)

	if p.Dedup != nil {
		if err := p.Dedup.Mark(ctx, ev.ID); err != nil {
			log.Printf("webhook dedup mark event=%s err=%v", ev.ID, err)
		}
	}
	return out, nil
}

func (p *Processor) dispatch(ctx context.Context, ev gateway.Event, obj gateway.Object) (Outcome, error) {
	act := classify(ev.Type, obj)
	if act == actionIgnore {
		return OutcomeIgnored, nil
	}
	ref := obj.SessionRef()
	if ref == "" {
		return OutcomeIgnored, nil
	}

	meta, err := gateway.ParseMetadata(obj.Metadata)
	if err != nil {
		log.Printf("webhook event=%s ignoring metadata: %v", ev.ID, err)
		meta = gateway.Metadata{}
	}

	cur, err := p.Orders.BySession(ctx, ref)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return p.dispatchBooking(ctx, act, ref, obj)
	case err != nil:
		return "", fmt.Errorf("find order by session: %w", err)
	}
	if meta.OrderExternalID != "" && meta.OrderExternalID != cur.ExternalID {
		log.Printf("webhook event=%s ref=%s metadata order=%s does not match order=%s, dropped",
			ev.ID, ref, meta.OrderExternalID, cur.ExternalID)
		return OutcomeMismatch, nil
	}

	if act == actionPaid {
		return p.orderPaid(ctx, ref, obj)
	}
	return p.orderFailed(ctx, ref, obj)
}

func (p *Processor) orderPaid(ctx context.Context, ref string, obj gateway.Object) (Outcome, error) {
	o, applied, err := p.Orders.MarkPaid(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("mark order paid: %w", err)
	}
	if !applied {
		return OutcomeNoop, nil
	}
	p.invalidate(ctx, o)

	gc := obj.Contact()
	contact := users.Contact{Name: gc.Name, Phone: gc.Phone, Email: gc.Email}
	if o.UserID != nil {
		if err := p.Users.BackfillProfile(ctx, *o.UserID, contact); err != nil && !errors.Is(err, users.ErrNotFound) {
			log.Printf("order %s: backfill profile user=%s: %v", o.ExternalID, *o.UserID, err)
		}
		if err := p.Users.ClearCartReminder(ctx, *o.UserID); err != nil {
			log.Printf("order %s: clear cart reminder user=%s: %v", o.ExternalID, *o.UserID, err)
		}
	}
	if err := p.Notify.OrderPaid(ctx, o, contact); err != nil {
		log.Printf("order %s: paid notification: %v", o.ExternalID, err)
	}
	return OutcomeApplied, nil
}

func (p *Processor) orderFailed(ctx context.Context, ref string, obj gateway.Object) (Outcome, error) {
	o, applied, err := p.Orders.MarkFailed(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("mark order failed: %w", err)
	}
	if !applied {
		return OutcomeNoop, nil
	}
	p.invalidate(ctx, o)
	log.Printf("alert: payment failed order=%s ref=%s reason=%q", o.ExternalID, ref, obj.FailureReason())
	if err := p.Notify.PaymentFailed(ctx, orders.PaymentFailedPayload{
		Kind: "order", ID: o.ExternalID, SessionRef: ref, Reason: obj.FailureReason(),
	}); err != nil {
		log.Printf("order %s: failure notification: %v", o.ExternalID, err)
	}
	return OutcomeApplied, nil
}

func (p *Processor) dispatchBooking(ctx context.Context, act action, ref string, obj gateway.Object) (Outcome, error) {
	mark := p.Bookings.MarkPaid
	if act == actionFailed {
		mark = p.Bookings.MarkFailed
	}
	b, applied, err := mark(ctx, ref)
	switch {
	case errors.Is(err, bookings.ErrNotFound):
		return OutcomeUnmatched, nil
	case err != nil:
		return "", fmt.Errorf("mark booking: %w", err)
	case !applied:
		return OutcomeNoop, nil
	}

	if act == actionPaid {
		if err := p.Notify.BookingPaid(ctx, b); err != nil {
			log.Printf("booking %s: paid notification: %v", b.ID, err)
		}
		return OutcomeApplied, nil
	}
	log.Printf("alert: payment failed booking=%s ref=%s reason=%q", b.ID, ref, obj.FailureReason())
	if err := p.Notify.PaymentFailed(ctx, orders.PaymentFailedPayload{
		Kind: "booking", ID: b.ID, SessionRef: ref, Reason: obj.FailureReason(),
	}); err != nil {
		log.Printf("booking %s: failure notification: %v", b.ID, err)
	}
	return OutcomeApplied, nil
}

func (p *Processor) invalidate(ctx context.Context, o orders.Order) {
	if p.Status == nil {
		return
	}
	if err := p.Status.Invalidate(ctx, o.ExternalID, o.UpdatedAt); err != nil {
		log.Printf("order %s: status cache invalidate: %v", o.ExternalID, err)
	}
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/salon-storefront/internal/kafka"
	"github.com/ariefcatur/salon-storefront/internal/money"
	"github.com/ariefcatur/salon-storefront/internal/orders"
)

type Claimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
}

type mail struct {
	to      []string
	subject string
	body    string
}

// Dispatcher is the notifier's consumer handler. Undecodable messages are committed and
// dropped; mail delivery failures are logged and not retried.
type Dispatcher struct {
	Mail       Mailer
	Dedup      Claimer
	AdminEmail string
}

func (d *Dispatcher) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("notifier: drop undecodable message topic=%s offset=%d: %v", m.Topic, m.Offset, err)
		return nil
	}
	if env.EventID == "" {
		log.Printf("notifier: drop envelope without event id topic=%s offset=%d", m.Topic, m.Offset)
		return nil
	}

	mails, err := d.render(env)
	if err != nil {
		log.Printf("notifier: drop event=%s type=%s: %v", env.EventID, env.EventType, err)
		return nil
	}
	if len(mails) == 0 {
		return nil
	}

	if d.Dedup != nil {
		first, err := d.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("claim event %s: %w", env.EventID, err)
		}
		if !first {
			return nil
		}
	}

	for _, ml := range mails {
		if err := d.Mail.Send(ctx, ml.to, ml.subject, ml.body); err != nil {
			log.Printf("notifier: mail event=%s to=%s: %v", env.EventID, strings.Join(ml.to, ","), err)
			continue
		}
		log.Printf("notifier: mail event=%s type=%s to=%s", env.EventID, env.EventType, strings.Join(ml.to, ","))
	}
	return nil
}

func (d *Dispatcher) render(env orders.Envelope) ([]mail, error) {
	admin := []string{d.AdminEmail}
	switch env.EventType {
	case orders.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		summary := orderSummary(p)
		out := []mail{{
			to:      admin,
			subject: "New paid order " + p.OrderID,
			body:    fmt.Sprintf("Customer: %s <%s>\n\n%s", p.CustomerName, p.CustomerEmail, summary),
		}}
		if p.CustomerEmail != "" {
			out = append(out, mail{
				to:      []string{p.CustomerEmail},
				subject: "Your order " + p.OrderID + " is confirmed",
				body:    "Thank you for your order.\n\n" + summary,
			})
		}
		return out, nil

	case orders.EventBookingPaid:
		p, err := kafkax.UnwrapPayload[orders.BookingPaidPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		return []mail{{
			to:      admin,
			subject: "Booking " + p.BookingID + " paid, awaiting approval",
			body: fmt.Sprintf("Service: %s\nStarts: %s\nPaid: %s\n",
				p.ServiceID, p.StartsAt.Format("Mon 2 Jan 2006 15:04 MST"), money.Format(p.Price)),
		}}, nil

	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		reason := p.Reason
		if reason == "" {
			reason = "not given"
		}
		return []mail{{
			to:      admin,
			subject: fmt.Sprintf("Payment failed for %s %s", p.Kind, p.ID),
			body:    fmt.Sprintf("Session: %s\nReason: %s\n", p.SessionRef, reason),
		}}, nil
	}
	return nil, nil
}

func orderSummary(p orders.OrderPaidPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n\n", p.OrderID)
	for _, l := range p.Lines {
		fmt.Fprintf(&b, "%d x %s @ %s", l.Quantity, l.ProductName, money.Format(l.Price))
		if l.DiscountPercent > 0 {
			fmt.Fprintf(&b, " (was %s, -%d%%)", money.Format(l.OriginalPrice), l.DiscountPercent)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nShipping: %s\nTotal: %s\n",
		money.Format(p.Subtotal), money.Format(p.ShippingCost), money.Format(p.Total))
	return b.String()
}

package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID             string        `json:"-"`
	ExternalID     string        `json:"id"`
	UserID         *string       `json:"user_id,omitempty"`
	IdempotencyKey *string       `json:"-"`
	Subtotal       int64         `json:"subtotal"`
	ShippingCost   int64         `json:"shipping_cost"`
	Total          int64         `json:"total"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	SessionRef     *string       `json:"-"`
	SessionURL     *string       `json:"-"`
	Lines          []Line        `json:"lines"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Line is the price snapshot taken at checkout. It is never recomputed from the catalog.
type Line struct {
	ID              string `json:"-"`
	OrderID         string `json:"-"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	Price           int64  `json:"price"`
	OriginalPrice   int64  `json:"original_price"`
	DiscountPercent int    `json:"discount_percent"`
}

var ErrTotalMismatch = errors.New("order total does not match its lines")

// NewPending builds a pending order with fresh ids and totals derived from lines.
func NewPending(userID *string, lines []Line, shipping int64) Order {
	o := Order{
		ID:            uuid.NewString(),
		ExternalID:    uuid.NewString(),
		UserID:        userID,
		ShippingCost:  shipping,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Lines:         make([]Line, len(lines)),
	}
	for i, l := range lines {
		l.ID = uuid.NewString()
		l.OrderID = o.ID
		o.Lines[i] = l
		o.Subtotal += l.Price * int64(l.Quantity)
	}
	o.Total = o.Subtotal + o.ShippingCost
	return o
}

// Validate checks total = Σ price × quantity + shipping.
func (o Order) Validate() error {
	var sum int64
	for _, l := range o.Lines {
		if l.Quantity < 1 {
			return fmt.Errorf("line %s: quantity %d", l.ProductID, l.Quantity)
		}
		sum += l.Price * int64(l.Quantity)
	}
	if sum != o.Subtotal || o.Subtotal+o.ShippingCost != o.Total {
		return fmt.Errorf("%w: subtotal=%d lines=%d shipping=%d total=%d", ErrTotalMismatch, o.Subtotal, sum, o.ShippingCost, o.Total)
	}
	return nil
}

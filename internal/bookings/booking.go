// Package bookings covers the part of the appointment booking that shares the payment webhook.
// Approval (pending -> approved/rejected) stays with the salon staff.
package bookings

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var ErrNotFound = errors.New("booking not found")

type Booking struct {
	ID              string
	ServiceID       string
	UserID          *string
	StartsAt        time.Time
	DurationMinutes int
	Price           int64
	Status          Status
	PaymentStatus   PaymentStatus
	SessionRef      *string
	// PaidAt is set by the first paid transition and never cleared.
	PaidAt          *time.Time
}

// Payable reports whether a paid event may still move the booking to paid. A failed payment
// recovers only if the booking was never paid before.
func (b Booking) Payable() bool {
	return b.PaymentStatus == PaymentPending ||
		(b.PaymentStatus == PaymentFailed && b.PaidAt == nil)
}

// Failable reports whether a failed event may still move the booking to failed.
func (b Booking) Failable() bool {
	return b.PaymentStatus == PaymentPending || b.PaymentStatus == PaymentPaid
}

type Store interface {
	MarkPaid(ctx context.Context, ref string) (b Booking, applied bool, err error)
	MarkFailed(ctx context.Context, ref string) (b Booking, applied bool, err error)
}

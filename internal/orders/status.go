package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Admin-driven fulfilment moves. pending -> confirmed belongs to the payment webhook.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Payable reports whether a paid event may still move the order to paid. A failed payment
// recovers only while the order was never confirmed; a late failure after confirmation must not
// let the other success event fire the paid side effects again.
func (o Order) Payable() bool {
	return o.PaymentStatus == PaymentPending ||
		(o.PaymentStatus == PaymentFailed && o.Status == StatusPending)
}

// Failable reports whether a failed event may still move the order to failed.
func (o Order) Failable() bool {
	return o.PaymentStatus == PaymentPending || o.PaymentStatus == PaymentPaid
}

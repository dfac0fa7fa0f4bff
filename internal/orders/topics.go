package orders

const (
	TopicOrderPaid     = "storefront.order.paid"
	TopicBookingPaid   = "storefront.booking.paid"
	TopicPaymentFailed = "storefront.payment.failed"
)

// Partition key = order or booking id, so events of one entity stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }

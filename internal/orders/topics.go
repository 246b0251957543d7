package orders

const (
	TopicOrderConfirmed     = "order.confirmed"
	TopicPaymentDeclined    = "order.payment.declined"
	TopicOrderStatusUpdated = "order.status.updated"
	TopicPendingExpired     = "order.pending.expired"
)

// Partition key = transaction id, so every event of one payment attempt stays ordered.
func PartitionKey(transactionID string) []byte { return []byte(transactionID) }

package orders

const (
	TopicOrderCreated = "order.created"
	TopicOrderPaid    = "order.paid"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID int64) []byte { return []byte(CorrelationID(orderID)) }

package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicStockChanged       = "order.stock.changed"
)

// Partition key = correlation id (order id, or product id for catalog saves) so the events
// of one order stay ordered.
func PartitionKey(correlationID string) []byte { return []byte(correlationID) }

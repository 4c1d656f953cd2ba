package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicTradeProposed      = "trade.proposed"
	TopicTradeResolved      = "trade.resolved"
)

// Partition key = aggregate id, so every event of one order or trade keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }

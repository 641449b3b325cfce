package notify

const (
	TopicOrderConfirmed     = "settlement.order.confirmed"
	TopicOrderStatusChanged = "settlement.order.status_changed"
	TopicLowStock           = "settlement.inventory.low_stock"
)

// Topics lists every topic the notifier consumes.
var Topics = []string{TopicOrderConfirmed, TopicOrderStatusChanged, TopicLowStock}

// PartitionKey keeps all events of one order (or product) in order on one partition.
func PartitionKey(id string) []byte { return []byte(id) }

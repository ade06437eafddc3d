package orders

import "strconv"

// TopicOrders is the default topic for every order event.
const TopicOrders = "marketplace.orders"

// Partition key = order id, so events of one order stay in order.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }

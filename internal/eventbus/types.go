package eventbus

// Topic enumerates the event bus subjects used across a Trader process.
type Topic string

const (
	TopicAccountUpdate  Topic = "account.update"
	TopicAccountStatus  Topic = "account.status"
	TopicPositionUpdate Topic = "position.update"
	TopicOrderUpdate    Topic = "order.update"
	TopicTradeCreated   Topic = "trade.created"
	TopicTickUpdate     Topic = "tick.update"
	TopicKlineUpdate    Topic = "kline.update"
	TopicOrderCmdUpdate Topic = "order_cmd.update"
	TopicSystemError    Topic = "system.error"
)

// PushTopics is whitelisted for forwarding to the Manager over IPC as push
// frames. tick.update is deliberately excluded: per-tick pushes would flood
// the socket.
var PushTopics = map[Topic]string{
	TopicAccountUpdate:  "account",
	TopicAccountStatus:  "account.status",
	TopicPositionUpdate: "position",
	TopicOrderUpdate:    "order",
	TopicTradeCreated:   "trade",
	TopicOrderCmdUpdate: "order_cmd",
}

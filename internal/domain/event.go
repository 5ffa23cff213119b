package domain

const (
	EventMessageCreated  = "message.created"
	EventChatRead        = "chat.read"
	EventAdStatusChanged = "ad.status_changed"
	EventPaymentUpdated  = "payment.updated"
)

// Event is pushed to connected clients of every recipient.
type Event struct {
	Type       string      `json:"type"`
	Recipients []int64     `json:"recipients"`
	Payload    interface{} `json:"payload"`
}

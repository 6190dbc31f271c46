package messages

import "time"

// NotificationTask is one delivery on one channel. EventID is the idempotency key:
// a task seen twice is delivered once.
type NotificationTask struct {
	EventID        string    `json:"event_id"`
	NotificationID uint64    `json:"notification_id,omitempty"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject,omitempty"`
	Body           string    `json:"body"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

package messaging

import "time"

// Message types published on the events topic.
const (
	TypeLabelCreated      = "label.created"
	TypeLabelUpdated      = "label.updated"
	TypeLabelDeleted      = "label.deleted"
	TypeUserStatusChanged = "user.status_changed"
)

type Envelope struct {
	MsgType   string    `json:"msg_type"`
	MsgID     string    `json:"msg_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type LabelEvent struct {
	LabelID string `json:"label_id"`
	Title   string `json:"title"`
	Color   string `json:"color"`
	Actor   string `json:"actor"`
}

type UserStatusEvent struct {
	UserID    string `json:"user_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Actor     string `json:"actor"`
}

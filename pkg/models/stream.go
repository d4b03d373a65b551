package models

import "time"

// Message types sent to live websocket observers.
const (
	MessageSnapshot     = "snapshot"
	MessageUpdate       = "update"
	MessageSessionEnded = "session_ended"
)

// SnapshotMessage is sent once to a client on registration.
type SnapshotMessage struct {
	Type       string `json:"type"`
	CapturesID string `json:"captures_id"`
	Stats      Stats  `json:"stats"`
}

// UpdateEvent is one throttled live-stream entry: the category plus the
// monitor's lightweight summary of the event.
type UpdateEvent struct {
	Category  Category  `json:"category"`
	Summary   Summary   `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdateMessage carries current aggregate stats and at most the 50 most
// recent summaries matching the client's subscription.
type UpdateMessage struct {
	Type   string        `json:"type"`
	Stats  Stats         `json:"stats"`
	Events []UpdateEvent `json:"events"`
}

// SessionEndedMessage is the best-effort notification sent before a client
// connection is closed at shutdown.
type SessionEndedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// SubscribeRequest is the only client control message the live channel
// honors: replace the subscription filter. An empty list means all
// categories.
type SubscribeRequest struct {
	Action     string   `json:"action"`
	Categories []string `json:"categories"`
}

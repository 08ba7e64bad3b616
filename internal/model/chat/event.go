package chat

import "time"

// EventKind classifies inbound gateway events.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventReset     EventKind = "reset"
	EventText      EventKind = "text"
	EventSelection EventKind = "selection"
)

// Event is one user action forwarded by a chat gateway. MessageID references
// the gateway message that carried the buttons, so a selection can be
// answered by editing it.
type Event struct {
	ConversationID string    `json:"conversationId"`
	Kind           EventKind `json:"kind"`
	Payload        string    `json:"payload,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

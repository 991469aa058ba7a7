package chat

import "github.com/suPer8Hu/clarity-chat/internal/citation"

const (
	EventContent   = "content"
	EventCitations = "citations"
	EventLeadGate  = "lead_gate"
	EventError     = "error"
	EventDone      = "done"
)

// Event is one frame of a streamed turn.
type Event struct {
	Type       string              `json:"type"`
	Content    string              `json:"content,omitempty"`
	Citations  []citation.Citation `json:"citations,omitempty"`
	Error      string              `json:"error,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	MessageID  uint64              `json:"message_id,omitempty"`
	BookingURL string              `json:"booking_url,omitempty"`
}

// ErrorEvent is the frame sent when a turn cannot complete.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Error: msg}
}

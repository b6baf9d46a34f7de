package websocket

// Event types pushed on a session stream.
const (
	EventMessageCreated   = "message.created"
	EventSessionEscalated = "session.escalated"
	EventSessionClosed    = "session.closed"
	EventTicketResolved   = "ticket.resolved"
)

// SessionEvent is the wire envelope delivered to stream subscribers and
// published on the session's Redis channel, so every server instance
// relays the same payload.
type SessionEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type Stream struct {
	SessionID string               `json:"sessionId"`
	Clients   map[string]*WSClient `json:"clients"`
}

// StreamMessage is what the hub fans out: the already-serialized event
// bound for every client watching one session.
type StreamMessage struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

type StreamRes struct {
	SessionID string `json:"sessionId"`
}

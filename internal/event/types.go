package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "chat.message.received").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeMessageReceived = "chat.message.received"
	TypeMessageSent     = "chat.message.sent"
	TypePeerLeft        = "chat.peer.left"
	TypeBackpressure    = "chat.backpressure"
	TypeLeaveDropped    = "chat.leave.dropped"
	TypeSessionStarted  = "session.started"
	TypeSessionClosed   = "session.closed"
)

// -----------------------------------------------------------------------------
// Message Events
// -----------------------------------------------------------------------------

// MessageReceivedEvent is emitted for each message delivered from the peer.
type MessageReceivedEvent struct {
	baseEvent
	ID     uint32 // Global message id
	Peer   string // Sending peer slot
	Sender string // Sender display label
	Text   string
}

// NewMessageReceivedEvent creates a MessageReceivedEvent.
func NewMessageReceivedEvent(id uint32, peer, sender, text string) MessageReceivedEvent {
	return MessageReceivedEvent{
		baseEvent: newBaseEvent(TypeMessageReceived),
		ID:        id,
		Peer:      peer,
		Sender:    sender,
		Text:      text,
	}
}

// MessageSentEvent is emitted once a local message has been appended.
type MessageSentEvent struct {
	baseEvent
	ID       uint32
	Sender   string
	Text     string
	Attempts int // Turns needed before room was available
}

// NewMessageSentEvent creates a MessageSentEvent.
func NewMessageSentEvent(id uint32, sender, text string, attempts int) MessageSentEvent {
	return MessageSentEvent{
		baseEvent: newBaseEvent(TypeMessageSent),
		ID:        id,
		Sender:    sender,
		Text:      text,
		Attempts:  attempts,
	}
}

// -----------------------------------------------------------------------------
// Peer and Flow Events
// -----------------------------------------------------------------------------

// PeerLeftEvent is emitted when the peer's leave notice is drained or the
// peer disappears without one.
type PeerLeftEvent struct {
	baseEvent
	Peer   string
	Sender string // Empty when the peer left without a notice
	Reason string // "exit" or "gone"
}

// NewPeerLeftEvent creates a PeerLeftEvent.
func NewPeerLeftEvent(peer, sender, reason string) PeerLeftEvent {
	return PeerLeftEvent{
		baseEvent: newBaseEvent(TypePeerLeft),
		Peer:      peer,
		Sender:    sender,
		Reason:    reason,
	}
}

// BackpressureEvent is emitted when a send finds the queue full and backs off.
type BackpressureEvent struct {
	baseEvent
	QueueLen int
	Attempt  int
	Backoff  time.Duration
}

// NewBackpressureEvent creates a BackpressureEvent.
func NewBackpressureEvent(queueLen, attempt int, backoff time.Duration) BackpressureEvent {
	return BackpressureEvent{
		baseEvent: newBaseEvent(TypeBackpressure),
		QueueLen:  queueLen,
		Attempt:   attempt,
		Backoff:   backoff,
	}
}

// LeaveDroppedEvent is emitted when the local leave notice could not be
// appended.
type LeaveDroppedEvent struct {
	baseEvent
	Reason string
}

// NewLeaveDroppedEvent creates a LeaveDroppedEvent.
func NewLeaveDroppedEvent(reason string) LeaveDroppedEvent {
	return LeaveDroppedEvent{
		baseEvent: newBaseEvent(TypeLeaveDropped),
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionStartedEvent is emitted once bootstrap has resolved this process's role.
type SessionStartedEvent struct {
	baseEvent
	Role string // "initiator" or "joiner"
	Peer string
	Name string
	PID  int
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(role, peer, name string, pid int) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent: newBaseEvent(TypeSessionStarted),
		Role:      role,
		Peer:      peer,
		Name:      name,
		PID:       pid,
	}
}

// SessionClosedEvent is emitted when the session ends.
type SessionClosedEvent struct {
	baseEvent
	Reason  string // "leave", "peer-left", "peer-gone", "eof", "signal", "error"
	LastOut bool   // Whether this process removed the shared resources
}

// NewSessionClosedEvent creates a SessionClosedEvent.
func NewSessionClosedEvent(reason string, lastOut bool) SessionClosedEvent {
	return SessionClosedEvent{
		baseEvent: newBaseEvent(TypeSessionClosed),
		Reason:    reason,
		LastOut:   lastOut,
	}
}

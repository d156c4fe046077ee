package event

import (
	"testing"
	"time"
)

func TestEventTypes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"message received", NewMessageReceivedEvent(3, "B", "bob", "hi"), TypeMessageReceived},
		{"message sent", NewMessageSentEvent(4, "alice", "yo", 1), TypeMessageSent},
		{"peer left", NewPeerLeftEvent("B", "bob", "exit"), TypePeerLeft},
		{"backpressure", NewBackpressureEvent(10, 2, 4*time.Second), TypeBackpressure},
		{"leave dropped", NewLeaveDroppedEvent("queue full"), TypeLeaveDropped},
		{"session started", NewSessionStartedEvent("initiator", "A", "alice", 42), TypeSessionStarted},
		{"session closed", NewSessionClosedEvent("leave", true), TypeSessionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
			if tt.event.Timestamp().IsZero() {
				t.Error("Timestamp() should be set")
			}
		})
	}
}

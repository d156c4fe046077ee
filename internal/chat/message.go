package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/segment"
)

var (
	// ErrPeerLeft is returned once the peer's leave notice has been drained.
	ErrPeerLeft = errors.New("chat: peer left")

	// ErrPeerGone is returned when the peer vanished without a leave notice or
	// the shared resources were removed underneath this endpoint.
	ErrPeerGone = errors.New("chat: peer gone")

	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("chat: endpoint closed")

	// ErrInvalidTransition is returned when an operation is not valid in the
	// endpoint's current state.
	ErrInvalidTransition = errors.New("chat: invalid state transition")

	// ErrLeaveNoticeDropped is returned by Leave when the leave notice could
	// not be appended before the leave timeout.
	ErrLeaveNoticeDropped = errors.New("chat: leave notice dropped")

	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrMessageTooLong is returned by Send for text over segment.MaxTextLen bytes.
	ErrMessageTooLong = errors.New("chat: message too long")
)

// Message is a message delivered to this endpoint.
type Message struct {
	ID     uint32
	From   segment.PeerID
	Sender string
	Kind   segment.Kind
	Text   string
	Time   time.Time // When this endpoint drained it
}

// IsExit reports whether m is the peer's leave notice.
func (m Message) IsExit() bool {
	return m.Kind == segment.KindExit
}

var leaveTokens = []string{"exit", "bye", "quit", "q"}

// IsLeaveCommand reports whether line is one of the reserved leave tokens,
// ignoring case and surrounding whitespace.
func IsLeaveCommand(line string) bool {
	line = strings.TrimSpace(line)
	for _, tok := range leaveTokens {
		if strings.EqualFold(line, tok) {
			return true
		}
	}
	return false
}

// Sanitize strips the line terminator, replaces invalid UTF-8 and turns
// control characters other than tab into spaces.
func Sanitize(text string) string {
	text = strings.TrimRight(text, "\r\n")
	text = strings.ToValidUTF8(text, "\uFFFD")
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\t') || r == 0x7f {
			return ' '
		}
		return r
	}, text)
}

// Validate checks text the way Send does, after sanitizing.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > segment.MaxTextLen {
		return ErrMessageTooLong
	}
	return nil
}

// Package history keeps the human-readable chat transcript.
//
// Each line is "[YYYY-MM-DD HH:MM:SS] <sender>: <text>". Session events are
// written with the sender SYSTEM. Once the file passes its size limit it is
// moved to <file>.old and a fresh file is started with a rotation notice.
// Both participants may append to the same file; the size check and the
// rotation follow the file on disk, not this process's own writes.
package history

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/event"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
)

// TimeLayout formats transcript timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// SystemSender labels session events in the transcript.
const SystemSender = "SYSTEM"

// RotationNotice is the first line of a freshly rotated transcript.
const RotationNotice = "Log file rotated due to size limit"

// DefaultMaxBytes is the rotation threshold used when none is given.
const DefaultMaxBytes = 1024 * 1024

// Log appends to the transcript. It is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	w      io.WriteCloser
	path   string
	now    func() time.Time
	logger *logging.Logger
	subs   []string
	bus    *event.Bus
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger reports write failures to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Open opens path for appending, rotating to path.old past maxBytes.
func Open(path string, maxBytes int64, opts ...Option) (*Log, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	l := &Log{
		path:   path,
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	rw, err := logging.NewRotatingWriter(path, logging.RotationConfig{
		MaxSizeBytes: maxBytes,
		MaxBackups:   1,
		BackupSuffix: ".old",
		OnRotate: func() []byte {
			return []byte(l.format(SystemSender, RotationNotice, l.now()))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	l.w = rw
	return l, nil
}

// Path returns the transcript location.
func (l *Log) Path() string { return l.path }

func (l *Log) format(sender, text string, at time.Time) string {
	text = strings.ReplaceAll(text, "\n", " ")
	return fmt.Sprintf("[%s] %s: %s\n", at.Format(TimeLayout), sender, text)
}

// Message records a chat line.
func (l *Log) Message(sender, text string, at time.Time) error {
	return l.write(l.format(sender, text, at))
}

// System records a session event.
func (l *Log) System(text string) error {
	return l.write(l.format(SystemSender, text, l.now()))
}

func (l *Log) write(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return fmt.Errorf("history %s is closed", l.path)
	}
	if _, err := io.WriteString(l.w, line); err != nil {
		l.logger.Warn("failed to write history", "path", l.path, "error", err.Error())
		return err
	}
	return nil
}

// Subscribe records chat events published on bus until Close.
func (l *Log) Subscribe(bus *event.Bus) {
	if bus == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bus = bus
	l.subs = append(l.subs,
		bus.Subscribe(event.TypeMessageReceived, func(e event.Event) {
			m := e.(event.MessageReceivedEvent)
			_ = l.Message(m.Sender, m.Text, m.Timestamp())
		}),
		bus.Subscribe(event.TypeMessageSent, func(e event.Event) {
			m := e.(event.MessageSentEvent)
			_ = l.Message(m.Sender, m.Text, m.Timestamp())
		}),
		bus.Subscribe(event.TypePeerLeft, func(e event.Event) {
			m := e.(event.PeerLeftEvent)
			_ = l.System(peerLeftText(m))
		}),
		bus.Subscribe(event.TypeLeaveDropped, func(e event.Event) {
			m := e.(event.LeaveDroppedEvent)
			_ = l.System("Leave notice not delivered: " + m.Reason)
		}),
		bus.Subscribe(event.TypeSessionStarted, func(e event.Event) {
			m := e.(event.SessionStartedEvent)
			_ = l.System(fmt.Sprintf("%s joined as peer %s (%s)", m.Name, m.Peer, m.Role))
		}),
		bus.Subscribe(event.TypeSessionClosed, func(e event.Event) {
			m := e.(event.SessionClosedEvent)
			_ = l.System("Chat session ended: " + m.Reason)
		}),
	)
}

func peerLeftText(e event.PeerLeftEvent) string {
	name := e.Sender
	if name == "" {
		name = "Peer " + e.Peer
	}
	if e.Reason == "gone" {
		return name + " disconnected"
	}
	return name + " left the chat"
}

// Close unsubscribes from the bus and closes the file. It is safe to call
// more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	bus, subs := l.bus, l.subs
	l.bus, l.subs = nil, nil
	w := l.w
	l.w = nil
	l.mu.Unlock()

	for _, id := range subs {
		bus.Unsubscribe(id)
	}
	if w == nil {
		return nil
	}
	return w.Close()
}

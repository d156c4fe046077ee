// Package console renders the chat for a line-oriented terminal.
//
// The Console subscribes to the event bus and prints incoming and outgoing
// messages, peer departures and session notices. It never touches the shared
// segment.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/event"
)

// RecentSize is how many sent messages the console remembers for the
// closing summary.
const RecentSize = 5

// clockLayout formats message timestamps.
const clockLayout = "15:04"

// Console writes chat output. It is safe for concurrent use.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	styles     Styles
	self       string
	timestamps bool
	prompt     string
	now        func() time.Time

	recent []string
	bus    *event.Bus
	subs   []string
}

// Option configures a Console.
type Option func(*Console)

// WithStyles replaces the default styles.
func WithStyles(s Styles) Option {
	return func(c *Console) {
		c.styles = s
	}
}

// WithTimestamps toggles the [HH:MM] prefix on message lines.
func WithTimestamps(on bool) Option {
	return func(c *Console) {
		c.timestamps = on
	}
}

// WithPrompt shows prompt before each input line. Use it only when input
// comes from a terminal.
func WithPrompt(prompt string) Option {
	return func(c *Console) {
		c.prompt = prompt
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Console) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Console writing to out. self is the local peer slot ("A"
// or "B"), which selects the color of the local user's lines.
func New(out io.Writer, self string, opts ...Option) *Console {
	c := &Console{
		out:        out,
		self:       self,
		timestamps: true,
		now:        time.Now,
	}
	c.styles = NewStyles(NewRenderer(out, ColorAuto), DefaultPalette())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Banner prints the welcome box.
func (c *Console) Banner(name, version string) {
	body := strings.Join([]string{
		"CHAT SYSTEM v" + version,
		"",
		"Welcome " + name + "!",
		"",
		"Commands: exit, bye, quit, q",
		"Type your messages below...",
	}, "\n")
	color := c.styles.Peer(c.self).GetForeground()
	box := c.styles.Banner.BorderForeground(color).Render(body)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\n%s\n\n", box)
}

// Prompt prints the input prompt, if one is configured.
func (c *Console) Prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writePrompt()
}

func (c *Console) writePrompt() {
	if c.prompt != "" {
		fmt.Fprint(c.out, c.styles.Peer(c.self).Render(c.prompt))
	}
}

// println writes line, clearing a pending prompt first and redrawing it after.
func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt != "" {
		fmt.Fprint(c.out, "\r\033[K")
	}
	fmt.Fprintln(c.out, line)
	c.writePrompt()
}

// System prints a session notice.
func (c *Console) System(msg string) { c.println(c.styles.System.Render(msg)) }

// Info prints an informational line.
func (c *Console) Info(msg string) { c.println(c.styles.Info.Render(msg)) }

// Success prints a confirmation line.
func (c *Console) Success(msg string) { c.println(c.styles.Success.Render(msg)) }

// Error prints an error line.
func (c *Console) Error(msg string) { c.println(c.styles.Error.Render(msg)) }

// Muted prints a de-emphasized line.
func (c *Console) Muted(msg string) { c.println(c.styles.Muted.Render(msg)) }

// Message prints "[HH:MM] sender: text" with sender colored by slot.
func (c *Console) Message(slot, sender, text string, at time.Time) {
	var sb strings.Builder
	if c.timestamps {
		sb.WriteString(c.styles.Muted.Render("[" + at.Format(clockLayout) + "]"))
		sb.WriteByte(' ')
	}
	sb.WriteString(c.styles.Peer(slot).Render(sender + ":"))
	sb.WriteByte(' ')
	sb.WriteString(text)
	c.println(sb.String())
}

// Recent returns the last RecentSize messages sent, oldest first.
func (c *Console) Recent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.recent...)
}

// ShowRecent prints the messages sent during the session.
func (c *Console) ShowRecent() {
	recent := c.Recent()
	if len(recent) == 0 {
		return
	}
	c.Info("Recent messages you sent:")
	for i, text := range recent {
		c.Muted(fmt.Sprintf("  %d. %s", i+1, text))
	}
}

func (c *Console) remember(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, text)
	if len(c.recent) > RecentSize {
		c.recent = c.recent[len(c.recent)-RecentSize:]
	}
}

// Subscribe renders events published on bus until Close.
func (c *Console) Subscribe(bus *event.Bus) {
	if bus == nil {
		return
	}
	subs := []string{
		bus.Subscribe(event.TypeMessageReceived, func(e event.Event) {
			m := e.(event.MessageReceivedEvent)
			c.Message(m.Peer, senderLabel(m.Peer, m.Sender), m.Text, c.now())
		}),
		bus.Subscribe(event.TypeMessageSent, func(e event.Event) {
			m := e.(event.MessageSentEvent)
			c.remember(m.Text)
			c.Message(c.self, "You", m.Text, c.now())
		}),
		bus.Subscribe(event.TypePeerLeft, func(e event.Event) {
			m := e.(event.PeerLeftEvent)
			name := senderLabel(m.Peer, m.Sender)
			if m.Reason == "gone" {
				c.System(name + " disconnected.")
				return
			}
			c.System(name + " has left the chat.")
		}),
		bus.Subscribe(event.TypeBackpressure, func(e event.Event) {
			m := e.(event.BackpressureEvent)
			c.Error(fmt.Sprintf("Message buffer full! Waiting for space... (retry in %s)", m.Backoff))
		}),
		bus.Subscribe(event.TypeLeaveDropped, func(e event.Event) {
			m := e.(event.LeaveDroppedEvent)
			c.Error("Leave notice not delivered: " + m.Reason)
		}),
		bus.Subscribe(event.TypeSessionStarted, func(e event.Event) {
			m := e.(event.SessionStartedEvent)
			c.Success(fmt.Sprintf("Connected to chat system as peer %s (%s).", m.Peer, m.Role))
		}),
		bus.Subscribe(event.TypeSessionClosed, func(e event.Event) {
			m := e.(event.SessionClosedEvent)
			c.System("Chat session ended: " + m.Reason)
		}),
	}

	c.mu.Lock()
	c.bus = bus
	c.subs = append(c.subs, subs...)
	c.mu.Unlock()
}

func senderLabel(peer, sender string) string {
	if sender == "" {
		return "Peer " + peer
	}
	return sender
}

// Close stops rendering bus events. It is safe to call more than once.
func (c *Console) Close() {
	c.mu.Lock()
	bus, subs := c.bus, c.subs
	c.bus, c.subs = nil, nil
	c.mu.Unlock()

	for _, id := range subs {
		bus.Unsubscribe(id)
	}
}


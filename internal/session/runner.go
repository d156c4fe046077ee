// Package session drives one interactive chat: it multiplexes terminal input
// and peer notifications onto a single goroutine that owns the chat endpoint,
// and decides how the session ends.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/chat"
	"github.com/Jaineel22/os-chatsystem/internal/console"
	"github.com/Jaineel22/os-chatsystem/internal/event"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
)

// Reasons a session ends, as reported in Result and the session.closed event.
const (
	ReasonLeave    = "leave"
	ReasonPeerLeft = "peer-left"
	ReasonPeerGone = "peer-gone"
	ReasonEOF      = "eof"
	ReasonSignal   = "signal"
	ReasonError    = "error"
)

// DefaultPollInterval bounds how long a missed notify can delay delivery.
const DefaultPollInterval = 250 * time.Millisecond

// Peer is the chat endpoint the runner drives. *chat.Endpoint implements it.
type Peer interface {
	Connect() error
	PollIncoming(ctx context.Context) ([]chat.Message, error)
	Send(ctx context.Context, text string) ([]chat.Message, error)
	Leave(ctx context.Context, notice string) ([]chat.Message, error)
	WaitNotify(timeout time.Duration) (bool, error)
	LastOut() bool
	ResourcesRemoved() bool
}

// Display receives the runner's own notices. Chat traffic reaches the
// terminal through the event bus instead.
type Display interface {
	Prompt()
	System(msg string)
	Error(msg string)
	Muted(msg string)
}

// Result describes how a session ended.
type Result struct {
	Reason string
	// LastOut is set when no live peer remained, so the caller must remove
	// the shared resources.
	LastOut bool
	// Removed is set when the peer already removed them.
	Removed bool
}

// Runner runs the input/notify loop for one endpoint.
type Runner struct {
	peer         Peer
	in           io.Reader
	display      Display
	bus          *event.Bus
	logger       *logging.Logger
	pollInterval time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBus publishes session.closed to bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Runner) {
		r.bus = bus
	}
}

// WithPollInterval sets the notify wait timeout.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// NewRunner creates a Runner reading lines from in.
func NewRunner(peer Peer, in io.Reader, display Display, opts ...Option) *Runner {
	r := &Runner{
		peer:         peer,
		in:           in,
		display:      display,
		logger:       logging.NopLogger(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run connects the endpoint and loops until the local user leaves, input
// ends, the peer leaves or ctx is cancelled. A cancelled ctx means the
// resources are being torn down elsewhere, so Run returns without touching
// the segment again.
//
// The returned error is nil for every orderly ending, including the peer
// leaving; it is set only for failures of the endpoint itself.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.peer.Connect(); err != nil {
		return r.close(Result{Reason: ReasonError}), err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	lines := console.ReadLines(ctx, r.in)
	wake := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.watch(ctx, wake)
	}()

	// Pick up anything queued before this process joined.
	if res, done, err := r.handle(r.peer.PollIncoming(ctx)); done {
		return r.close(res), err
	}
	r.display.Prompt()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session interrupted")
			return r.close(Result{Reason: ReasonSignal, Removed: true}), nil

		case err := <-wake:
			if err != nil {
				r.logger.Debug("notify wait ended", "error", err.Error())
			}
			if res, done, err := r.handle(r.peer.PollIncoming(ctx)); done {
				return r.close(res), err
			}

		case line, ok := <-lines:
			if !ok || line.Err != nil {
				if ok {
					r.logger.Warn("input read failed", "error", line.Err.Error())
					r.display.Error("Error reading input")
				}
				return r.leave(ctx, "exit", ReasonEOF)
			}
			if chat.IsLeaveCommand(line.Text) {
				r.display.System("You are leaving the chat...")
				return r.leave(ctx, strings.TrimSpace(line.Text), ReasonLeave)
			}
			res, done, err := r.handle(r.peer.Send(ctx, line.Text))
			if done {
				return r.close(res), err
			}
			r.display.Prompt()
		}
	}
}

// watch turns notify wake-ups and poll timeouts into polls. It stops after
// the semaphores are removed, since every later wait would fail at once.
func (r *Runner) watch(ctx context.Context, wake chan<- error) {
	for ctx.Err() == nil {
		_, err := r.peer.WaitNotify(r.pollInterval)
		if err != nil && !errors.Is(err, chat.ErrPeerGone) {
			// Fall back to plain polling.
			r.logger.Debug("notify wait failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollInterval):
			}
		}
		select {
		case wake <- err:
		default:
		}
		if errors.Is(err, chat.ErrPeerGone) {
			return
		}
	}
}

// handle interprets the outcome of a poll or send. done reports that the
// session is over.
func (r *Runner) handle(_ []chat.Message, err error) (Result, bool, error) {
	switch {
	case err == nil:
		return Result{}, false, nil
	case errors.Is(err, chat.ErrEmptyMessage):
		r.display.Muted("Empty message ignored")
		return Result{}, false, nil
	case errors.Is(err, chat.ErrMessageTooLong):
		r.display.Error("Message too long! Please shorten your message.")
		return Result{}, false, nil
	case errors.Is(err, chat.ErrPeerLeft):
		return r.result(ReasonPeerLeft), true, nil
	case errors.Is(err, chat.ErrPeerGone):
		return r.result(ReasonPeerGone), true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{Reason: ReasonSignal, Removed: true}, true, nil
	default:
		r.display.Error("Chat failed: " + err.Error())
		return r.result(ReasonError), true, err
	}
}

func (r *Runner) result(reason string) Result {
	return Result{
		Reason:  reason,
		LastOut: r.peer.LastOut(),
		Removed: r.peer.ResourcesRemoved(),
	}
}

// leave sends the leave notice. A dropped notice has already been reported
// on the bus and does not fail the session.
func (r *Runner) leave(ctx context.Context, notice, reason string) (Result, error) {
	_, err := r.peer.Leave(ctx, notice)
	switch {
	case err == nil, errors.Is(err, chat.ErrLeaveNoticeDropped):
		return r.close(r.result(reason)), nil
	case ctx.Err() != nil:
		return r.close(Result{Reason: ReasonSignal, Removed: true}), nil
	default:
		r.display.Error("Leave failed: " + err.Error())
		return r.close(r.result(ReasonError)), err
	}
}

func (r *Runner) close(res Result) Result {
	r.logger.Info("session ended", "reason", res.Reason, "last_out", res.LastOut, "removed", res.Removed)
	r.bus.Publish(event.NewSessionClosedEvent(res.Reason, res.LastOut))
	return res
}

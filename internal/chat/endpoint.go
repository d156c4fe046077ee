// Package chat implements one side of the two-peer chat protocol on top of
// a shared segment and a cross-process lock.
//
// Every interaction with the segment is a turn: acquire the mutex, drain
// everything newer than the local cursor, publish the new watermark, compact,
// optionally append, release, signal. The mutex is never held while waiting
// for input or sleeping.
//
// An Endpoint is not safe for concurrent use, except for WaitNotify, which
// touches only the notify semaphore and may run on its own goroutine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/event"
	"github.com/Jaineel22/os-chatsystem/internal/ipc"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
	"github.com/Jaineel22/os-chatsystem/internal/segment"
	"github.com/Jaineel22/os-chatsystem/internal/util"
)

// Locker is the cross-process mutex guarding the segment.
type Locker interface {
	Acquire() error
	Release() error
	Held() bool
}

// Notifier wakes the peer after an append.
type Notifier interface {
	Signal() error
	Wait(timeout time.Duration) (bool, error)
}

// Endpoint is this process's side of the conversation.
type Endpoint struct {
	layout *segment.Layout
	lock   Locker
	notify Notifier
	self   segment.PeerID
	name   string

	state    State
	lastSeen uint32
	peerSeen bool // peer slot has been observed occupied
	departed bool // own slot cleared
	lastOut  bool // no live peer remained when this endpoint departed
	removed  bool // lock set no longer exists

	logger       *logging.Logger
	bus          *event.Bus
	backoff      time.Duration
	maxBackoff   time.Duration
	leaveTimeout time.Duration
	alive        func(pid int32) bool
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates an endpoint for slot self. The slot must already have been
// claimed by bootstrap.
func New(layout *segment.Layout, lock Locker, notify Notifier, self segment.PeerID, name string, opts ...Option) (*Endpoint, error) {
	if !self.Valid() {
		return nil, fmt.Errorf("%w: %d", segment.ErrInvalidPeer, self)
	}
	e := &Endpoint{
		layout:       layout,
		lock:         lock,
		notify:       notify,
		self:         self,
		name:         name,
		state:        StateConnecting,
		logger:       logging.NopLogger(),
		backoff:      DefaultBackoff,
		maxBackoff:   DefaultMaxBackoff,
		leaveTimeout: DefaultLeaveTimeout,
		alive:        ipc.ProcessAlive,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithPeer(self.String())
	return e, nil
}

// State returns the current lifecycle state.
func (e *Endpoint) State() State { return e.state }

// Self returns the slot this endpoint occupies.
func (e *Endpoint) Self() segment.PeerID { return e.self }

// LastSeen returns the id of the last entry consumed.
func (e *Endpoint) LastSeen() uint32 { return e.lastSeen }

// LastOut reports whether this endpoint departed after its peer and is
// therefore responsible for removing the shared resources.
func (e *Endpoint) LastOut() bool { return e.lastOut }

// ResourcesRemoved reports whether the lock set disappeared underneath the
// endpoint, meaning the peer already tore the session down.
func (e *Endpoint) ResourcesRemoved() bool { return e.removed }

func (e *Endpoint) transition(t trigger) error {
	to, ok := next(e.state, t)
	if !ok {
		if e.state == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, t, e.state)
	}
	e.logger.Debug("state transition", "from", e.state.String(), "to", to.String(), "trigger", t.String())
	e.state = to
	return nil
}

// Connect moves a freshly created endpoint into the chatting state. It notes
// whether the peer slot is already occupied, so that a peer clearing its slot
// later is recognised as a departure.
func (e *Endpoint) Connect() error {
	if e.state != StateConnecting {
		return e.transition(trigConnected)
	}
	if err := e.lock.Acquire(); err != nil {
		_ = e.transition(trigFailed)
		return fmt.Errorf("acquire mutex: %w", err)
	}
	v := e.layout.View(e.lock)
	e.peerSeen = v.PID(e.self.Other()) != 0
	e.lastSeen = v.Watermark(e.self)
	e.release()
	return e.transition(trigConnected)
}

// outgoing is a record this turn should try to append.
type outgoing struct {
	kind segment.Kind
	text string
}

type turnResult struct {
	delivered []Message
	appended  bool
	id        uint32
	full      bool
	queueLen  int
	peerExit  bool
	peerGone  bool
}

// turn runs one acquire, drain, compact, append, release cycle.
func (e *Endpoint) turn(ctx context.Context, out *outgoing) (turnResult, error) {
	var res turnResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := e.lock.Acquire(); err != nil {
		if errors.Is(err, ipc.ErrRemoved) {
			res.delivered, res.peerExit = e.orphanDrain()
			res.peerGone = !res.peerExit
			return res, nil
		}
		return res, fmt.Errorf("acquire mutex: %w", err)
	}

	v := e.layout.View(e.lock)
	res.delivered, res.peerExit = e.drain(v)
	v.SetWatermark(e.self, e.lastSeen)

	peer := e.self.Other()
	peerPID := v.PID(peer)
	if peerPID != 0 {
		e.peerSeen = true
		if !res.peerExit && !e.alive(peerPID) {
			e.logger.Warn("peer process is gone", "pid", peerPID)
			res.peerGone = true
		}
	} else if e.peerSeen && !res.peerExit {
		e.logger.Warn("peer departed without a leave notice")
		res.peerGone = true
	}

	if dropped := v.Compact(); dropped > 0 {
		e.logger.Debug("compacted queue", "dropped", dropped, "len", v.Len())
	}

	closing := res.peerExit || res.peerGone
	if out != nil && !closing {
		id, err := v.Append(e.self, e.name, out.kind, out.text)
		switch {
		case err == nil:
			res.appended = true
			res.id = id
			e.lastSeen = id
			v.SetWatermark(e.self, id)
		case errors.Is(err, segment.ErrFull):
			res.full = true
		default:
			e.release()
			return res, fmt.Errorf("append: %w", err)
		}
	}
	res.queueLen = v.Len()

	if closing || (res.appended && out.kind == segment.KindExit) {
		e.depart(v, peerPID)
	}

	e.release()

	if res.appended {
		if err := e.notify.Signal(); err != nil {
			// The peer will still see the record on its next poll.
			e.logger.Debug("notify signal failed", "error", err.Error())
		}
	}
	return res, nil
}

// drain consumes every entry after the cursor. Own entries advance the
// cursor without being delivered. Draining stops at the peer's leave notice.
func (e *Endpoint) drain(v segment.View) ([]Message, bool) {
	var out []Message
	now := e.now()
	for _, entry := range v.After(e.lastSeen) {
		e.lastSeen = entry.ID
		if entry.Peer == e.self {
			continue
		}
		msg := Message{
			ID:     entry.ID,
			From:   entry.Peer,
			Sender: entry.Sender,
			Kind:   entry.Kind,
			Text:   entry.Text,
			Time:   now,
		}
		out = append(out, msg)
		if msg.IsExit() {
			return out, true
		}
	}
	return out, false
}

// orphanDrain reads what is left once the lock set has been removed. No
// writer can remain at that point, and the mapping stays valid until detach.
func (e *Endpoint) orphanDrain() ([]Message, bool) {
	e.removed = true
	e.departed = true
	e.logger.Info("shared resources removed by peer, draining remaining messages")
	return e.drain(e.layout.View(segment.Orphaned))
}

// depart clears the own slot and decides who removes the shared resources.
// The caller holds the mutex.
func (e *Endpoint) depart(v segment.View, peerPID int32) {
	if e.departed {
		return
	}
	v.SetPID(e.self, 0)
	e.departed = true
	// With the peer still alive the leaver only detaches; the peer removes
	// the resources once it drains our Exit. The last one out removes.
	e.lastOut = peerPID == 0 || !e.alive(peerPID)
	e.logger.Info("departed", "last_out", e.lastOut)
}

func (e *Endpoint) release() {
	if err := e.lock.Release(); err != nil {
		e.logger.Debug("release mutex failed", "error", err.Error())
	}
}

// publishDelivered emits events for drained messages.
func (e *Endpoint) publishDelivered(msgs []Message) {
	for _, m := range msgs {
		if m.IsExit() {
			e.bus.Publish(event.NewPeerLeftEvent(m.From.String(), m.Sender, "exit"))
			continue
		}
		e.logger.Debug("message received", "id", m.ID, "from", m.From.String())
		e.bus.Publish(event.NewMessageReceivedEvent(m.ID, m.From.String(), m.Sender, m.Text))
	}
}

// finish applies the outcome of a turn that observed the peer leaving.
func (e *Endpoint) finish(res turnResult) error {
	switch {
	case res.peerExit:
		_ = e.transition(trigPeerExit)
		return ErrPeerLeft
	case res.peerGone:
		e.bus.Publish(event.NewPeerLeftEvent(e.self.Other().String(), "", "gone"))
		_ = e.transition(trigPeerGone)
		return ErrPeerGone
	}
	return nil
}

func (e *Endpoint) fail(err error) error {
	e.logger.Error("turn failed", "error", err.Error())
	_ = e.transition(trigFailed)
	return err
}

// PollIncoming runs one turn without an outgoing message and returns what
// the peer sent since the last call. After the peer's leave notice it returns
// the messages drained so far, including the notice, with ErrPeerLeft.
func (e *Endpoint) PollIncoming(ctx context.Context) ([]Message, error) {
	if e.state != StateChatting {
		if e.state == StateClosed {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: poll while %s", ErrInvalidTransition, e.state)
	}
	res, err := e.turn(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, e.fail(err)
	}
	e.publishDelivered(res.delivered)
	return res.delivered, e.finish(res)
}

// Send appends text as a normal message, retrying with exponential backoff
// while the queue is full. It never drops the message; only ctx cancellation
// or the peer leaving ends the retries early. Messages drained along the way
// are returned in id order.
func (e *Endpoint) Send(ctx context.Context, text string) ([]Message, error) {
	if e.state != StateChatting {
		if e.state == StateClosed {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: send while %s", ErrInvalidTransition, e.state)
	}
	text = Sanitize(text)
	if err := Validate(text); err != nil {
		return nil, err
	}

	var delivered []Message
	backoff := e.backoff
	for attempt := 1; ; attempt++ {
		res, err := e.turn(ctx, &outgoing{kind: segment.KindNormal, text: text})
		if err != nil {
			if ctx.Err() != nil {
				return delivered, err
			}
			return delivered, e.fail(err)
		}
		delivered = append(delivered, res.delivered...)
		e.publishDelivered(res.delivered)
		if err := e.finish(res); err != nil {
			return delivered, err
		}

		if res.appended {
			e.logger.Debug("message sent", "id", res.id, "attempts", attempt)
			e.bus.Publish(event.NewMessageSentEvent(res.id, e.name, text, attempt))
			return delivered, nil
		}

		e.logger.Info("queue full, backing off", "len", res.queueLen, "attempt", attempt, "backoff", backoff.String())
		e.bus.Publish(event.NewBackpressureEvent(res.queueLen, attempt, backoff))
		if err := e.sleep(ctx, backoff); err != nil {
			return delivered, err
		}
		backoff = min(backoff*2, e.maxBackoff)
	}
}

// Leave announces departure with an Exit record carrying notice, then closes
// the endpoint. A full queue is retried like Send until the leave timeout; if
// it expires the notice is dropped, the slot is still released, and
// ErrLeaveNoticeDropped is returned. When the peer has already gone no notice
// is needed and Leave returns nil.
func (e *Endpoint) Leave(ctx context.Context, notice string) ([]Message, error) {
	if err := e.transition(trigLeave); err != nil {
		return nil, err
	}
	notice = strings.TrimSpace(Sanitize(notice))
	if notice == "" {
		notice = "exit"
	}
	notice = util.ClipBytes(notice, segment.MaxTextLen)

	var delivered []Message
	deadline := e.now().Add(e.leaveTimeout)
	backoff := e.backoff
	for attempt := 1; ; attempt++ {
		res, err := e.turn(ctx, &outgoing{kind: segment.KindExit, text: notice})
		if err != nil && ctx.Err() == nil {
			return delivered, e.fail(err)
		}
		if err == nil {
			delivered = append(delivered, res.delivered...)
			e.publishDelivered(res.delivered)
			if res.peerExit || res.peerGone {
				e.logger.Info("peer already gone, leave notice not needed")
				_ = e.finish(res)
				return delivered, nil
			}
			if res.appended {
				e.logger.Info("leave notice sent", "id", res.id)
				_ = e.transition(trigDeparted)
				return delivered, nil
			}
		}

		reason := "queue full"
		if err != nil {
			reason = err.Error()
		} else if !e.now().Add(backoff).Before(deadline) {
			reason = "queue full until leave timeout"
		} else if serr := e.sleep(ctx, backoff); serr != nil {
			reason = serr.Error()
		} else {
			backoff = min(backoff*2, e.maxBackoff)
			continue
		}
		return delivered, e.dropLeave(reason)
	}
}

// dropLeave releases the own slot without a notice.
func (e *Endpoint) dropLeave(reason string) error {
	e.logger.Warn("leave notice dropped", "reason", reason)
	e.bus.Publish(event.NewLeaveDroppedEvent(reason))

	if err := e.lock.Acquire(); err == nil {
		v := e.layout.View(e.lock)
		e.depart(v, v.PID(e.self.Other()))
		e.release()
	} else if errors.Is(err, ipc.ErrRemoved) {
		e.removed = true
	} else {
		e.logger.Error("acquire mutex to depart", "error", err.Error())
	}

	_ = e.transition(trigDeparted)
	return fmt.Errorf("%w: %s", ErrLeaveNoticeDropped, reason)
}

// WaitNotify blocks until the peer signals or timeout elapses. It returns
// ErrPeerGone once the semaphores have been removed.
func (e *Endpoint) WaitNotify(timeout time.Duration) (bool, error) {
	ok, err := e.notify.Wait(timeout)
	if errors.Is(err, ipc.ErrRemoved) {
		return false, fmt.Errorf("%w: %w", ErrPeerGone, err)
	}
	return ok, err
}

// Attach records pid in the endpoint's slot. Bootstrap normally does this;
// it is exposed for callers that build an endpoint over an existing layout.
func (e *Endpoint) Attach(pid int) error {
	if err := e.lock.Acquire(); err != nil {
		return fmt.Errorf("acquire mutex: %w", err)
	}
	defer e.release()
	e.layout.View(e.lock).SetPID(e.self, int32(pid))
	return nil
}

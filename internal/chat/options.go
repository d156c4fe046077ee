package chat

import (
	"context"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/event"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
)

// Default timings.
const (
	DefaultBackoff      = 2 * time.Second
	DefaultMaxBackoff   = 8 * time.Second
	DefaultLeaveTimeout = 5 * time.Second
)

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBus publishes message and peer events to bus.
func WithBus(bus *event.Bus) Option {
	return func(e *Endpoint) {
		e.bus = bus
	}
}

// WithBackoff sets the initial and maximum sleep between send attempts on a
// full queue. The interval doubles after each failed attempt.
func WithBackoff(initial, maxBackoff time.Duration) Option {
	return func(e *Endpoint) {
		if initial > 0 {
			e.backoff = initial
		}
		if maxBackoff >= e.backoff {
			e.maxBackoff = maxBackoff
		} else {
			e.maxBackoff = e.backoff
		}
	}
}

// WithLeaveTimeout bounds how long Leave retries on a full queue.
func WithLeaveTimeout(d time.Duration) Option {
	return func(e *Endpoint) {
		if d > 0 {
			e.leaveTimeout = d
		}
	}
}

// WithProcessCheck replaces the liveness probe used to detect a crashed peer.
func WithProcessCheck(alive func(pid int32) bool) Option {
	return func(e *Endpoint) {
		if alive != nil {
			e.alive = alive
		}
	}
}

// WithClock replaces time.Now and the backoff sleep. Tests use it to run the
// backoff loop without waiting.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Endpoint) {
		if now != nil {
			e.now = now
		}
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package bootstrap decides which process creates the shared resources and
// which one joins them, and tears them down again when the conversation ends.
//
// Both processes run the same binary. Whoever wins the exclusive creation of
// the shared memory segment becomes the initiator (slot A); everyone else
// waits for the initiator to publish the ready flag and claims slot B.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/ipc"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
	"github.com/Jaineel22/os-chatsystem/internal/segment"
)

// Default keys, ASCII "OSCH" and "OSCI".
const (
	DefaultShmKey ipc.Key = 0x4f534348
	DefaultSemKey ipc.Key = 0x4f534349
)

// DefaultPerm lets any local user join.
const DefaultPerm os.FileMode = 0o666

// Default timings.
const (
	DefaultReadyPollInterval = 50 * time.Millisecond
	DefaultReadyTimeout      = 10 * time.Second
)

// maxAttempts bounds how often bootstrap restarts after losing a race with a
// process that removed the resources between two steps.
const maxAttempts = 3

var (
	// ErrReadyTimeout is returned when the initiator never published the
	// ready flag.
	ErrReadyTimeout = errors.New("bootstrap: timed out waiting for the initiator")

	// ErrSessionFull is returned to a third process while both slots are held
	// by live processes.
	ErrSessionFull = errors.New("bootstrap: session already has two peers")

	// ErrStaleSegment is returned when the segment was left behind by
	// processes that no longer exist.
	ErrStaleSegment = errors.New("bootstrap: stale segment left by a previous session")

	// errRetry restarts the create-or-attach sequence.
	errRetry = errors.New("bootstrap: resources changed underneath, retry")
)

// Role is the part a process plays in bootstrap.
type Role int

const (
	RoleInitiator Role = iota
	RoleJoiner
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleJoiner:
		return "joiner"
	}
	return "unknown"
}

// Options configures CreateOrAttach. Zero values select the defaults.
type Options struct {
	ShmKey            ipc.Key
	SemKey            ipc.Key
	Perm              os.FileMode
	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration

	// ReclaimStale removes resources found to be stale and starts over as
	// initiator instead of returning ErrStaleSegment.
	ReclaimStale bool

	PID    int
	Logger *logging.Logger
	Alive  func(pid int32) bool
}

func (o Options) withDefaults() Options {
	if o.ShmKey == 0 {
		o.ShmKey = DefaultShmKey
	}
	if o.SemKey == 0 {
		o.SemKey = DefaultSemKey
	}
	if o.Perm == 0 {
		o.Perm = DefaultPerm
	}
	if o.ReadyPollInterval <= 0 {
		o.ReadyPollInterval = DefaultReadyPollInterval
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.PID == 0 {
		o.PID = os.Getpid()
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger()
	}
	if o.Alive == nil {
		o.Alive = ipc.ProcessAlive
	}
	return o
}

// Session holds the attached resources of one process.
type Session struct {
	Role   Role
	Self   segment.PeerID
	Layout *segment.Layout
	Sems   *ipc.SemSet

	shm    *ipc.SharedMemory
	logger *logging.Logger

	mu        sync.Mutex
	detached  bool
	destroyed bool
}

// CreateOrAttach resolves the role of this process and returns the attached
// session. The initiator's segment is fully initialized and its semaphores
// exist before the ready flag is set; a joiner has claimed slot B.
func CreateOrAttach(ctx context.Context, opts Options) (*Session, error) {
	o := opts.withDefaults()
	for attempt := 1; ; attempt++ {
		s, err := createOrAttach(ctx, o)
		if !errors.Is(err, errRetry) || attempt == maxAttempts {
			return s, err
		}
		o.Logger.Debug("restarting bootstrap", "attempt", attempt, "reason", err.Error())
	}
}

func createOrAttach(ctx context.Context, o Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shm, err := ipc.CreateSharedMemory(o.ShmKey, segment.Size, o.Perm)
	switch {
	case err == nil:
		return initiate(shm, o)
	case errors.Is(err, ipc.ErrExists):
		return join(ctx, o)
	default:
		return nil, fmt.Errorf("create shared memory: %w", err)
	}
}

func initiate(shm *ipc.SharedMemory, o Options) (*Session, error) {
	logger := o.Logger.WithRole(RoleInitiator.String())
	abort := func(err error) (*Session, error) {
		logger.Error("failed to initialize session", "error", err.Error())
		_ = shm.Remove()
		_ = shm.Detach()
		return nil, err
	}

	layout, err := segment.FromBytes(shm.Bytes())
	if err != nil {
		return abort(err)
	}
	if err := layout.Initialize(); err != nil {
		return abort(fmt.Errorf("initialize segment: %w", err))
	}
	// Nobody can touch the segment before the ready flag is published.
	layout.View(segment.Orphaned).SetPID(segment.PeerA, int32(o.PID))

	sems, err := ipc.CreateSemSet(o.SemKey, o.Perm)
	if errors.Is(err, ipc.ErrExists) {
		logger.Warn("reusing semaphore set left by a previous session", "sem_key", fmt.Sprintf("%#x", o.SemKey))
		sems, err = ipc.OpenSemSet(o.SemKey)
	}
	if err != nil {
		return abort(fmt.Errorf("create semaphores: %w", err))
	}
	if err := sems.Init(); err != nil {
		_ = sems.Remove()
		return abort(fmt.Errorf("initialize semaphores: %w", err))
	}

	layout.MarkReady()
	logger.Info("session created",
		"shm_id", shm.ID(),
		"sem_id", sems.ID(),
		"pid", o.PID,
	)
	return &Session{
		Role:   RoleInitiator,
		Self:   segment.PeerA,
		Layout: layout,
		Sems:   sems,
		shm:    shm,
		logger: logger,
	}, nil
}

func join(ctx context.Context, o Options) (*Session, error) {
	logger := o.Logger.WithRole(RoleJoiner.String())
	shm, err := ipc.OpenSharedMemory(o.ShmKey, segment.Size)
	if errors.Is(err, ipc.ErrNotExist) || errors.Is(err, ipc.ErrRemoved) {
		return nil, fmt.Errorf("%w: segment vanished before attach", errRetry)
	}
	if err != nil {
		return nil, fmt.Errorf("attach shared memory: %w", err)
	}
	detach := func(err error) (*Session, error) {
		_ = shm.Detach()
		return nil, err
	}

	layout, err := segment.FromBytes(shm.Bytes())
	if err != nil {
		return detach(err)
	}
	if err := waitReady(ctx, layout, o); err != nil {
		if errors.Is(err, ErrReadyTimeout) && onlyAttacher(shm) {
			return detach(reclaimOrFail(shm, o, logger, "initiator never finished"))
		}
		return detach(err)
	}
	if err := layout.Validate(); err != nil {
		return detach(fmt.Errorf("validate segment: %w", err))
	}

	sems, err := ipc.OpenSemSet(o.SemKey)
	if errors.Is(err, ipc.ErrNotExist) {
		return detach(reclaimOrFail(shm, o, logger, "semaphore set missing"))
	}
	if err != nil {
		return detach(fmt.Errorf("open semaphores: %w", err))
	}

	if err := claim(layout, sems, o, logger); err != nil {
		if errors.Is(err, ErrStaleSegment) {
			return detach(reclaimOrFail(shm, o, logger, err.Error()))
		}
		if errors.Is(err, ipc.ErrRemoved) {
			return detach(fmt.Errorf("%w: %v", errRetry, err))
		}
		return detach(err)
	}

	logger.Info("joined session",
		"shm_id", shm.ID(),
		"sem_id", sems.ID(),
		"pid", o.PID,
	)
	return &Session{
		Role:   RoleJoiner,
		Self:   segment.PeerB,
		Layout: layout,
		Sems:   sems,
		shm:    shm,
		logger: logger,
	}, nil
}

// waitReady polls the ready flag without holding the mutex, which may not
// exist yet.
func waitReady(ctx context.Context, layout *segment.Layout, o Options) error {
	if layout.Ready() {
		return nil
	}
	deadline := time.NewTimer(o.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.ReadyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrReadyTimeout, o.ReadyTimeout)
		case <-ticker.C:
			if layout.Ready() {
				return nil
			}
		}
	}
}

// claim takes slot B under the mutex.
func claim(layout *segment.Layout, sems *ipc.SemSet, o Options, logger *logging.Logger) error {
	mu := sems.Mutex()
	if err := mu.Acquire(); err != nil {
		return fmt.Errorf("acquire mutex: %w", err)
	}
	defer func() { _ = mu.Release() }()

	v := layout.View(mu)
	a, b := v.PID(segment.PeerA), v.PID(segment.PeerB)
	if b != 0 && o.Alive(b) {
		logger.Error("failed to join session", "reason", "slot B held", "peer_pid", b)
		return fmt.Errorf("%w: slot B held by pid %d", ErrSessionFull, b)
	}
	if a == 0 || !o.Alive(a) {
		return fmt.Errorf("%w: initiator pid %d is gone", ErrStaleSegment, a)
	}
	if b != 0 {
		logger.Warn("stale peer slot reclaimed", "old_pid", b)
	}
	v.SetPID(segment.PeerB, int32(o.PID))
	return nil
}

// onlyAttacher reports whether this process is the segment's sole user.
func onlyAttacher(shm *ipc.SharedMemory) bool {
	n, err := shm.Attachments()
	return err == nil && n <= 1
}

// reclaimOrFail removes stale resources when allowed and asks for a retry.
func reclaimOrFail(shm *ipc.SharedMemory, o Options, logger *logging.Logger, reason string) error {
	if !o.ReclaimStale {
		logger.Error("found stale session", "reason", reason)
		return fmt.Errorf("%w (%s); run 'oschat cleanup'", ErrStaleSegment, reason)
	}
	logger.Warn("removing stale session", "reason", reason)
	if err := shm.Remove(); err != nil && !isGone(err) {
		return fmt.Errorf("remove stale segment: %w", err)
	}
	if _, err := ipc.RemoveSemSet(o.SemKey); err != nil && !isGone(err) {
		return fmt.Errorf("remove stale semaphores: %w", err)
	}
	return fmt.Errorf("%w: stale session removed", errRetry)
}

func isGone(err error) bool {
	return errors.Is(err, ipc.ErrRemoved) || errors.Is(err, ipc.ErrNotExist)
}

// Mutex returns the lock guarding the segment.
func (s *Session) Mutex() *ipc.Mutex { return s.Sems.Mutex() }

// Notify returns the peer wake-up semaphore.
func (s *Session) Notify() *ipc.Notify { return s.Sems.Notify() }

// SharedMemoryID returns the kernel id of the attached segment.
func (s *Session) SharedMemoryID() int { return s.shm.ID() }

// Close detaches from the segment. When lastOut is set the semaphore set and
// the segment are removed as well. Resources that are already gone are not an
// error. Close may be called more than once.
func (s *Session) Close(lastOut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if lastOut && !s.destroyed {
		s.destroyed = true
		errs = append(errs, s.remove()...)
	}
	if !s.detached {
		s.detached = true
		if err := s.shm.Detach(); err != nil {
			errs = append(errs, fmt.Errorf("detach: %w", err))
		}
	}
	s.logger.Info("session closed", "removed", lastOut)
	return errors.Join(errs...)
}

// Destroy removes both resources without touching the mutex. It is meant for
// signal handlers: a goroutine blocked on the mutex or the notify semaphore
// wakes with ipc.ErrRemoved. The mapping stays valid until Close, so the
// owner can still drain it. Destroy is safe to call repeatedly.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil
	}
	s.destroyed = true
	s.logger.Info("destroying session resources")
	return errors.Join(s.remove()...)
}

// Destroyed reports whether Destroy or a last-out Close removed the resources.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Session) remove() []error {
	var errs []error
	if err := s.Sems.Remove(); err != nil {
		if isGone(err) {
			s.logger.Debug("semaphore set already removed", "error", err.Error())
		} else {
			errs = append(errs, fmt.Errorf("remove semaphores: %w", err))
		}
	}
	if err := s.shm.Remove(); err != nil {
		if isGone(err) {
			s.logger.Debug("shared memory already removed", "error", err.Error())
		} else {
			errs = append(errs, fmt.Errorf("remove shared memory: %w", err))
		}
	}
	return errs
}

//go:build linux && (amd64 || arm64)

package ipc

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Semaphore set members.
const (
	semMutex  = 0
	semNotify = 1
	semCount  = 2
)

// semctl commands and semop flags not exported by x/sys/unix.
const (
	semGetVal  = 12
	semGetAll  = 13
	semGetNcnt = 14
	semSetAll  = 17
	semUndo    = 0x1000
)

// sembuf mirrors struct sembuf from <sys/sem.h>.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// classify maps kernel errnos onto the package sentinels.
func classify(op string, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch errno {
	case unix.EEXIST:
		return fmt.Errorf("%s: %w", op, ErrExists)
	case unix.ENOENT:
		return fmt.Errorf("%s: %w", op, ErrNotExist)
	case unix.EIDRM, unix.EINVAL:
		return fmt.Errorf("%s: %w", op, ErrRemoved)
	case unix.EACCES, unix.EPERM:
		return fmt.Errorf("%s: %w", op, ErrPermission)
	}
	return fmt.Errorf("%s: %w", op, errno)
}

// -----------------------------------------------------------------------------
// Shared memory
// -----------------------------------------------------------------------------

// SharedMemory is an attached System V shared memory segment.
type SharedMemory struct {
	key  Key
	id   int
	data []byte
}

// CreateSharedMemory exclusively creates and attaches a segment of size bytes.
// It returns an error wrapping ErrExists if the key is already in use.
func CreateSharedMemory(key Key, size int, perm os.FileMode) (*SharedMemory, error) {
	id, err := unix.SysvShmGet(int(key), size, unix.IPC_CREAT|unix.IPC_EXCL|int(perm.Perm()))
	if err != nil {
		return nil, classify("shmget", err)
	}
	return attach(key, id, 0)
}

// OpenSharedMemory attaches to an existing segment. The segment must be at
// least size bytes.
func OpenSharedMemory(key Key, size int) (*SharedMemory, error) {
	id, err := unix.SysvShmGet(int(key), size, 0)
	if err != nil {
		return nil, classify("shmget", err)
	}
	return attach(key, id, 0)
}

// OpenSharedMemoryReadOnly attaches to an existing segment without write access.
func OpenSharedMemoryReadOnly(key Key) (*SharedMemory, error) {
	id, err := unix.SysvShmGet(int(key), 0, 0)
	if err != nil {
		return nil, classify("shmget", err)
	}
	return attach(key, id, unix.SHM_RDONLY)
}

func attach(key Key, id, flag int) (*SharedMemory, error) {
	data, err := unix.SysvShmAttach(id, 0, flag)
	if err != nil {
		return nil, classify("shmat", err)
	}
	return &SharedMemory{key: key, id: id, data: data}, nil
}

// Bytes returns the mapped region. It is invalid after Detach.
func (s *SharedMemory) Bytes() []byte { return s.data }

// ID returns the kernel identifier of the segment.
func (s *SharedMemory) ID() int { return s.id }

// Key returns the key the segment was created or opened with.
func (s *SharedMemory) Key() Key { return s.key }

// Attachments returns the number of processes currently attached.
func (s *SharedMemory) Attachments() (int, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_STAT, &desc); err != nil {
		return 0, classify("shmctl(IPC_STAT)", err)
	}
	return int(desc.Nattch), nil
}

// Detach unmaps the segment from this process. Calling it twice is a no-op.
func (s *SharedMemory) Detach() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	if err := unix.SysvShmDetach(data); err != nil {
		return classify("shmdt", err)
	}
	return nil
}

// Remove marks the segment for destruction. The kernel frees it once the
// last process detaches; existing mappings stay valid until then.
func (s *SharedMemory) Remove() error {
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return classify("shmctl(IPC_RMID)", err)
	}
	return nil
}

// RemoveSharedMemory removes the segment registered under key, if any.
func RemoveSharedMemory(key Key) (int, error) {
	id, err := unix.SysvShmGet(int(key), 0, 0)
	if err != nil {
		return -1, classify("shmget", err)
	}
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
		return id, classify("shmctl(IPC_RMID)", err)
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// Semaphores
// -----------------------------------------------------------------------------

// SemSet is a two-member System V semaphore set: a binary mutex and a
// counting notify semaphore.
type SemSet struct {
	key    Key
	id     int
	mutex  Mutex
	notify Notify
}

// CreateSemSet exclusively creates the semaphore set for key. The members are
// left at zero; call Init before anyone else may use them.
func CreateSemSet(key Key, perm os.FileMode) (*SemSet, error) {
	id, err := semget(key, semCount, unix.IPC_CREAT|unix.IPC_EXCL|int(perm.Perm()))
	if err != nil {
		return nil, err
	}
	return newSemSet(key, id), nil
}

// OpenSemSet opens the existing semaphore set for key.
func OpenSemSet(key Key) (*SemSet, error) {
	id, err := semget(key, semCount, 0)
	if err != nil {
		return nil, err
	}
	return newSemSet(key, id), nil
}

func newSemSet(key Key, id int) *SemSet {
	s := &SemSet{key: key, id: id}
	s.mutex.set = s
	s.notify.set = s
	return s
}

func semget(key Key, nsems, flags int) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flags))
	if errno != 0 {
		return -1, classify("semget", errno)
	}
	return int(r1), nil
}

// Init sets mutex=1 and notify=0.
func (s *SemSet) Init() error {
	vals := [semCount]uint16{semMutex: 1, semNotify: 0}
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, semSetAll,
		uintptr(unsafe.Pointer(&vals[0])), 0, 0)
	if errno != 0 {
		return classify("semctl(SETALL)", errno)
	}
	return nil
}

// Values returns the current mutex and notify values.
func (s *SemSet) Values() (mutex, notify int, err error) {
	var vals [semCount]uint16
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, semGetAll,
		uintptr(unsafe.Pointer(&vals[0])), 0, 0)
	if errno != 0 {
		return 0, 0, classify("semctl(GETALL)", errno)
	}
	return int(vals[semMutex]), int(vals[semNotify]), nil
}

// Waiters returns how many processes are blocked acquiring the mutex.
func (s *SemSet) Waiters() (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), semMutex, semGetNcnt, 0, 0, 0)
	if errno != 0 {
		return 0, classify("semctl(GETNCNT)", errno)
	}
	return int(r1), nil
}

// ID returns the kernel identifier of the set.
func (s *SemSet) ID() int { return s.id }

// Mutex returns the binary semaphore guarding the shared segment.
func (s *SemSet) Mutex() *Mutex { return &s.mutex }

// Notify returns the counting semaphore used to wake the peer.
func (s *SemSet) Notify() *Notify { return &s.notify }

// Remove destroys the set. Processes blocked on it wake with ErrRemoved.
func (s *SemSet) Remove() error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, unix.IPC_RMID, 0, 0, 0)
	if errno != 0 {
		return classify("semctl(IPC_RMID)", errno)
	}
	return nil
}

// RemoveSemSet removes the set registered under key, if any.
func RemoveSemSet(key Key) (int, error) {
	id, err := semget(key, 0, 0)
	if err != nil {
		return -1, err
	}
	s := newSemSet(key, id)
	return id, s.Remove()
}

// semop performs a single operation. A nil timeout blocks indefinitely.
// EINTR is retried; a timeout returns (false, nil).
func (s *SemSet) semop(num uint16, op int16, flg int16, timeout *time.Duration) (bool, error) {
	buf := sembuf{num: num, op: op, flg: flg}
	for {
		var tsp *unix.Timespec
		if timeout != nil {
			ts := unix.NsecToTimespec(timeout.Nanoseconds())
			tsp = &ts
		}
		_, _, errno := unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(s.id),
			uintptr(unsafe.Pointer(&buf)), 1, uintptr(unsafe.Pointer(tsp)), 0, 0)
		switch errno {
		case 0:
			return true, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return false, nil
		default:
			return false, classify("semtimedop", errno)
		}
	}
}

// Mutex is the binary semaphore serializing all access to the shared segment.
type Mutex struct {
	set  *SemSet
	held atomic.Bool
}

// Acquire blocks until the mutex is held by this process.
func (m *Mutex) Acquire() error {
	if _, err := m.set.semop(semMutex, -1, semUndo, nil); err != nil {
		return err
	}
	m.held.Store(true)
	return nil
}

// Release gives the mutex back.
func (m *Mutex) Release() error {
	m.held.Store(false)
	if _, err := m.set.semop(semMutex, 1, semUndo, nil); err != nil {
		return err
	}
	return nil
}

// Held reports whether this process currently holds the mutex.
func (m *Mutex) Held() bool { return m.held.Load() }

// Notify is the counting semaphore a sender increments after appending.
type Notify struct {
	set *SemSet
}

// Signal increments the semaphore, waking one waiter.
func (n *Notify) Signal() error {
	_, err := n.set.semop(semNotify, 1, 0, nil)
	return err
}

// Wait decrements the semaphore, blocking for at most timeout. It returns
// false if the timeout elapsed first. A non-positive timeout blocks forever.
func (n *Notify) Wait(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return n.set.semop(semNotify, -1, 0, nil)
	}
	return n.set.semop(semNotify, -1, 0, &timeout)
}

// Pending returns the current notify count without consuming it.
func (n *Notify) Pending() (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(n.set.id), semNotify, semGetVal, 0, 0, 0)
	if errno != 0 {
		return 0, classify("semctl(GETVAL)", errno)
	}
	return int(r1), nil
}

// -----------------------------------------------------------------------------
// Processes
// -----------------------------------------------------------------------------

// ProcessAlive reports whether pid refers to a running process. A process
// owned by another user counts as alive.
func ProcessAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

//go:build !(linux && (amd64 || arm64))

package ipc

import (
	"os"
	"time"
)

// SharedMemory is unavailable on this platform.
type SharedMemory struct{}

func CreateSharedMemory(Key, int, os.FileMode) (*SharedMemory, error) {
	return nil, ErrUnsupported
}

func OpenSharedMemory(Key, int) (*SharedMemory, error) {
	return nil, ErrUnsupported
}

func OpenSharedMemoryReadOnly(Key) (*SharedMemory, error) {
	return nil, ErrUnsupported
}

func RemoveSharedMemory(Key) (int, error) {
	return -1, ErrUnsupported
}

func (s *SharedMemory) Bytes() []byte {
	return nil
}

func (s *SharedMemory) ID() int {
	return -1
}

func (s *SharedMemory) Key() Key {
	return 0
}

func (s *SharedMemory) Attachments() (int, error) {
	return 0, ErrUnsupported
}

func (s *SharedMemory) Detach() error {
	return ErrUnsupported
}

func (s *SharedMemory) Remove() error {
	return ErrUnsupported
}

// SemSet is unavailable on this platform.
type SemSet struct {
	mutex  Mutex
	notify Notify
}

func CreateSemSet(Key, os.FileMode) (*SemSet, error) {
	return nil, ErrUnsupported
}

func OpenSemSet(Key) (*SemSet, error) {
	return nil, ErrUnsupported
}

func RemoveSemSet(Key) (int, error) {
	return -1, ErrUnsupported
}

func (s *SemSet) Init() error {
	return ErrUnsupported
}

func (s *SemSet) Values() (int, int, error) {
	return 0, 0, ErrUnsupported
}

func (s *SemSet) Waiters() (int, error) {
	return 0, ErrUnsupported
}

func (s *SemSet) ID() int {
	return -1
}

func (s *SemSet) Mutex() *Mutex {
	return &s.mutex
}

func (s *SemSet) Notify() *Notify {
	return &s.notify
}

func (s *SemSet) Remove() error {
	return ErrUnsupported
}

// Mutex is unavailable on this platform.
type Mutex struct{}

func (m *Mutex) Acquire() error {
	return ErrUnsupported
}

func (m *Mutex) Release() error {
	return ErrUnsupported
}

func (m *Mutex) Held() bool {
	return false
}

// Notify is unavailable on this platform.
type Notify struct{}

func (n *Notify) Signal() error {
	return ErrUnsupported
}

func (n *Notify) Wait(time.Duration) (bool, error) {
	return false, ErrUnsupported
}

func (n *Notify) Pending() (int, error) {
	return 0, ErrUnsupported
}

// ProcessAlive always reports true for a positive pid where it cannot be checked.
func ProcessAlive(pid int32) bool {
	return pid > 0
}

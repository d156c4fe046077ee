// Package segment defines the fixed-layout structure both chat peers map into
// their address space.
//
// A [Layout] is never read or written through raw offsets by callers. Every
// access that the protocol requires to be serialized goes through a [View],
// obtained with the [Guard] that proves the cross-process mutex is held. In
// builds tagged oschat_debug each View method panics if the guard reports the
// mutex is not held.
//
// The only fields readable without the mutex are the readiness flag and the
// header, which are written once before the segment is published.
package segment

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Sizes of the fixed record fields, terminator included.
const (
	TextSize   = 200
	SenderSize = 20

	// MaxTextLen is the longest message payload in bytes.
	MaxTextLen = TextSize - 1

	// MaxSenderLen is the longest sender label in bytes.
	MaxSenderLen = SenderSize - 1

	// Capacity is the number of records the queue holds.
	Capacity = 10

	// Version is bumped whenever Layout changes shape.
	Version = 1
)

// Magic identifies an oschat segment.
var Magic = [8]byte{'O', 'S', 'C', 'H', 'A', 'T', 0, 0}

var (
	// ErrTooSmall is returned when a mapping cannot hold a Layout.
	ErrTooSmall = errors.New("segment: mapping smaller than layout")

	// ErrMisaligned is returned when a mapping is not suitably aligned.
	ErrMisaligned = errors.New("segment: mapping misaligned")

	// ErrBadMagic is returned when an attached segment was not written by oschat.
	ErrBadMagic = errors.New("segment: bad magic")

	// ErrVersion is returned when the peer uses an incompatible layout.
	ErrVersion = errors.New("segment: layout version mismatch")

	// ErrAlreadyReady is returned by Initialize once the segment is published.
	ErrAlreadyReady = errors.New("segment: already initialized")

	// ErrFull is returned by Append when every record is in use.
	ErrFull = errors.New("segment: queue full")

	// ErrTextTooLong is returned by Append for payloads over MaxTextLen bytes.
	ErrTextTooLong = errors.New("segment: text too long")

	// ErrInvalidPeer is returned for a PeerID outside {PeerA, PeerB}.
	ErrInvalidPeer = errors.New("segment: invalid peer")
)

// record is one queue slot.
type record struct {
	content [TextSize]byte
	sender  [SenderSize]byte
	kind    int32
	id      uint32
	peer    int32
}

// Layout is the shared structure. Its zero value is an empty, unpublished
// segment, which lets tests use a heap-allocated Layout in place of a mapping.
type Layout struct {
	magic         [8]byte
	version       uint32
	ready         uint32
	messageCount  int32
	lastMessageID uint32
	watermarks    [2]uint32
	pids          [2]int32
	messages      [Capacity]record
}

// Size is the number of bytes a mapping must provide.
const Size = int(unsafe.Sizeof(Layout{}))

// FromBytes overlays a Layout on mem. mem must stay mapped for as long as the
// returned Layout is used.
func FromBytes(mem []byte) (*Layout, error) {
	if len(mem) < Size {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrTooSmall, len(mem), Size)
	}
	p := unsafe.Pointer(&mem[0])
	if uintptr(p)%unsafe.Alignof(Layout{}) != 0 {
		return nil, ErrMisaligned
	}
	return (*Layout)(p), nil
}

// Initialize zeroes the segment and writes the header. It must run before
// MarkReady and never after.
func (l *Layout) Initialize() error {
	if l.Ready() {
		return ErrAlreadyReady
	}
	*l = Layout{}
	l.magic = Magic
	l.version = Version
	return nil
}

// Ready reports whether the initiator has published the segment.
func (l *Layout) Ready() bool {
	return atomic.LoadUint32(&l.ready) == 1
}

// MarkReady publishes the segment. Everything written before it is visible to
// a peer that observes Ready.
func (l *Layout) MarkReady() {
	atomic.StoreUint32(&l.ready, 1)
}

// Validate checks the header written by Initialize. It is meaningful only
// once Ready reports true.
func (l *Layout) Validate() error {
	if l.magic != Magic {
		return ErrBadMagic
	}
	if l.version != Version {
		return fmt.Errorf("%w: segment has %d, want %d", ErrVersion, l.version, Version)
	}
	return nil
}

// HeaderVersion returns the layout version recorded in the header.
func (l *Layout) HeaderVersion() uint32 {
	return l.version
}

// Guard proves that the caller holds the mutex serializing segment access.
type Guard interface {
	Held() bool
}

type orphaned struct{}

func (orphaned) Held() bool { return true }

// Orphaned is a Guard for a segment whose lock no longer exists. Once the
// semaphore set is removed no peer can write, so the final drain may read
// without it.
var Orphaned Guard = orphaned{}

// View returns an accessor bound to g.
func (l *Layout) View(g Guard) View {
	return View{l: l, g: g}
}

func putString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
}

func getString(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

package segment

import (
	"fmt"

	"github.com/Jaineel22/os-chatsystem/internal/util"
)

// View is the only way to read or mutate the queue. Obtain one with
// Layout.View while holding the mutex and drop it on release.
type View struct {
	l *Layout
	g Guard
}

func (v View) check() {
	if assertHeld && !v.g.Held() {
		panic("segment: access without holding the mutex")
	}
}

// Len returns the number of queued records.
func (v View) Len() int {
	v.check()
	return int(v.l.messageCount)
}

// Cap returns the queue capacity.
func (v View) Cap() int {
	return Capacity
}

// Full reports whether Append would fail with ErrFull.
func (v View) Full() bool {
	return v.Len() >= Capacity
}

// LastID returns the most recently assigned message id, or zero.
func (v View) LastID() uint32 {
	v.check()
	return v.l.lastMessageID
}

// Entries returns every queued record in id order.
func (v View) Entries() []Entry {
	return v.After(0)
}

// After returns the queued records whose id is greater than id, in id order.
func (v View) After(id uint32) []Entry {
	v.check()
	var out []Entry
	for i := 0; i < int(v.l.messageCount); i++ {
		r := &v.l.messages[i]
		if r.id <= id {
			continue
		}
		out = append(out, Entry{
			ID:     r.id,
			Peer:   PeerID(r.peer),
			Sender: getString(r.sender[:]),
			Kind:   Kind(r.kind),
			Text:   getString(r.content[:]),
		})
	}
	return out
}

// Append assigns the next id to a new record and stores it at the tail.
// sender is clipped to MaxSenderLen bytes; text longer than MaxTextLen is
// rejected rather than clipped.
func (v View) Append(peer PeerID, sender string, kind Kind, text string) (uint32, error) {
	v.check()
	if !peer.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeer, peer)
	}
	if len(text) > MaxTextLen {
		return 0, fmt.Errorf("%w: %d bytes, max %d", ErrTextTooLong, len(text), MaxTextLen)
	}
	if v.l.messageCount >= Capacity {
		return 0, ErrFull
	}

	v.l.lastMessageID++
	id := v.l.lastMessageID
	r := &v.l.messages[v.l.messageCount]
	putString(r.content[:], text)
	putString(r.sender[:], util.ClipBytes(sender, MaxSenderLen))
	r.kind = int32(kind)
	r.id = id
	r.peer = int32(peer)
	v.l.messageCount++
	return id, nil
}

// Watermark returns the highest id peer has consumed.
func (v View) Watermark(peer PeerID) uint32 {
	v.check()
	return v.l.watermarks[peer]
}

// SetWatermark advances peer's watermark to id. Watermarks never move
// backwards; a lower id is ignored.
func (v View) SetWatermark(peer PeerID, id uint32) {
	v.check()
	if id > v.l.watermarks[peer] {
		v.l.watermarks[peer] = id
	}
}

// Compact drops every record both peers have consumed and returns how many
// were removed.
func (v View) Compact() int {
	v.check()
	floor := min(v.l.watermarks[PeerA], v.l.watermarks[PeerB])

	n := int(v.l.messageCount)
	kept := 0
	for i := 0; i < n; i++ {
		if v.l.messages[i].id <= floor {
			continue
		}
		if kept != i {
			v.l.messages[kept] = v.l.messages[i]
		}
		kept++
	}
	for i := kept; i < n; i++ {
		v.l.messages[i] = record{}
	}
	v.l.messageCount = int32(kept)
	return n - kept
}

// PID returns the process recorded in peer's slot, or zero if it is free.
func (v View) PID(peer PeerID) int32 {
	v.check()
	return v.l.pids[peer]
}

// SetPID records pid in peer's slot. Zero marks the slot departed.
func (v View) SetPID(peer PeerID, pid int32) {
	v.check()
	v.l.pids[peer] = pid
}

// Stats returns a snapshot of the header and queue.
func (v View) Stats() Stats {
	v.check()
	return Stats{
		Version:    v.l.version,
		Ready:      v.l.Ready(),
		Len:        int(v.l.messageCount),
		LastID:     v.l.lastMessageID,
		Watermarks: v.l.watermarks,
		PIDs:       v.l.pids,
	}
}

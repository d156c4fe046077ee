package segment

import "strconv"

// PeerID names one of the two participants. It indexes the per-peer
// watermark and pid slots.
type PeerID int32

const (
	PeerA PeerID = 0
	PeerB PeerID = 1
)

// Valid reports whether p is PeerA or PeerB.
func (p PeerID) Valid() bool {
	return p == PeerA || p == PeerB
}

// Other returns the opposite peer.
func (p PeerID) Other() PeerID {
	return 1 - p
}

func (p PeerID) String() string {
	switch p {
	case PeerA:
		return "A"
	case PeerB:
		return "B"
	}
	return "peer(" + strconv.Itoa(int(p)) + ")"
}

// Kind distinguishes chat text from the leave notice.
type Kind int32

const (
	KindNormal Kind = 0
	KindExit   Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindExit:
		return "exit"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Entry is a decoded queue record.
type Entry struct {
	ID     uint32
	Peer   PeerID
	Sender string
	Kind   Kind
	Text   string
}

// Stats is a snapshot of the segment header and queue occupancy.
type Stats struct {
	Version    uint32
	Ready      bool
	Len        int
	LastID     uint32
	Watermarks [2]uint32
	PIDs       [2]int32
}

package chat

// State is the lifecycle of an Endpoint.
type State int

const (
	StateConnecting State = iota
	StateChatting
	StateLeaving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateChatting:
		return "chatting"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// trigger is an input to the state machine.
type trigger int

const (
	trigConnected trigger = iota // bootstrap finished
	trigLeave                    // local user asked to leave
	trigPeerExit                 // drained the peer's leave notice
	trigPeerGone                 // peer vanished without a notice, or resources removed
	trigDeparted                 // own leave notice appended or given up on
	trigFailed                   // unrecoverable error
)

func (t trigger) String() string {
	switch t {
	case trigConnected:
		return "connected"
	case trigLeave:
		return "leave"
	case trigPeerExit:
		return "peer-exit"
	case trigPeerGone:
		return "peer-gone"
	case trigDeparted:
		return "departed"
	case trigFailed:
		return "failed"
	}
	return "unknown"
}

// next is the transition function. It is total: a trigger that is not valid
// in s leaves the state unchanged and reports ok=false.
func next(s State, t trigger) (State, bool) {
	switch s {
	case StateConnecting:
		switch t {
		case trigConnected:
			return StateChatting, true
		case trigFailed:
			return StateClosed, true
		}
	case StateChatting:
		switch t {
		case trigLeave:
			return StateLeaving, true
		case trigPeerExit, trigPeerGone, trigFailed:
			return StateClosed, true
		}
	case StateLeaving:
		switch t {
		case trigDeparted, trigPeerExit, trigPeerGone, trigFailed:
			return StateClosed, true
		}
	}
	return s, false
}

package node

import (
	"sync/atomic"
)

// State captures the state of a tablenet node: Idle, Hosting, Joining, Joined
// or Disconnected
type State uint32

const (
	//Idle is the initial state of a node.
	Idle State = iota
	//Hosting is the authority of a table
	Hosting
	//Joining is connecting to a host and waiting for its snapshot
	Joining
	//Joined is a replica of a host's table
	Joined
	//Disconnected is terminal
	Disconnected
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Hosting:
		return "Hosting"
	case Joining:
		return "Joining"
	case Joined:
		return "Joined"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

func (b *state) compareAndSwapState(from, to State) bool {
	stateAddr := (*uint32)(&b.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(from), uint32(to))
}

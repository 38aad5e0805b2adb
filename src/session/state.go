package session

import (
	"fmt"
	"sync/atomic"
)

// State is the protocol state of a Handler. It has the following transitions:
//
// host:   AwaitingHello → AwaitingAuthResponse → Authenticated
// client: AwaitingHello → AwaitingAuthChallenge → AwaitingAuthResult → Authenticated
//
// and any state → Closed, which is terminal.
type State uint32

const (
	// AwaitingHello is the initial state of both sides.
	AwaitingHello State = iota
	// AwaitingAuthResponse is a host that sent its challenge.
	AwaitingAuthResponse
	// AwaitingAuthChallenge is a client whose hello was answered.
	AwaitingAuthChallenge
	// AwaitingAuthResult is a client that answered the challenge.
	AwaitingAuthResult
	// Authenticated handlers exchange table and roster messages.
	Authenticated
	// Closed handlers have released their connection.
	Closed
)

// String ...
func (s State) String() string {
	switch s {
	case AwaitingHello:
		return "AwaitingHello"
	case AwaitingAuthResponse:
		return "AwaitingAuthResponse"
	case AwaitingAuthChallenge:
		return "AwaitingAuthChallenge"
	case AwaitingAuthResult:
		return "AwaitingAuthResult"
	case Authenticated:
		return "Authenticated"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var validTransitions = map[Role]map[State][]State{
	Host: {
		AwaitingHello:        {AwaitingAuthResponse, Closed},
		AwaitingAuthResponse: {Authenticated, Closed},
		Authenticated:        {Closed},
		Closed:               {Closed},
	},
	Client: {
		AwaitingHello:         {AwaitingAuthChallenge, Closed},
		AwaitingAuthChallenge: {AwaitingAuthResult, Closed},
		AwaitingAuthResult:    {Authenticated, Closed},
		Authenticated:         {Closed},
		Closed:                {Closed},
	},
}

func canTransition(role Role, from, to State) error {
	for _, target := range validTransitions[role][from] {
		if target == to {
			return nil
		}
	}
	return fmt.Errorf("%s unable to transition from %s to %s", role, from, to)
}

type state struct {
	state State
}

func (s *state) getState() State {
	stateAddr := (*uint32)(&s.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (s *state) setState(st State) {
	stateAddr := (*uint32)(&s.state)
	atomic.StoreUint32(stateAddr, uint32(st))
}

func (s *state) compareAndSwapState(from, to State) bool {
	stateAddr := (*uint32)(&s.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(from), uint32(to))
}

package net

import "fmt"

// EventType ...
type EventType uint8

const (
	// EventOpen is the first event delivered to a registered handler.
	EventOpen EventType = iota
	// EventMessage carries one decoded message.
	EventMessage
	// EventTick is posted periodically so handlers can enforce deadlines.
	EventTick
	// EventClosed means the transport failed or reached EOF. Err says why.
	EventClosed
)

// String ...
func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "Open"
	case EventMessage:
		return "Message"
	case EventTick:
		return "Tick"
	case EventClosed:
		return "Closed"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
}

// Event is what the Dispatcher delivers to an EventHandler.
type Event struct {
	Type    EventType
	Message Message
	Err     error
}

// EventHandler is a connection driven by a Dispatcher. HandleEvent is never
// called concurrently for the same handler. Returning an error from
// HandleEvent closes the handler with that error.
type EventHandler interface {
	// Handle returns the transport handle owned by the handler.
	Handle() *Handle
	HandleEvent(ev Event) error
	// Close must be idempotent. It releases the handle and unregisters the
	// handler from its Dispatcher.
	Close(err error)
}

// HandlerFactory builds the handler of a newly established connection.
type HandlerFactory func(h *Handle) EventHandler

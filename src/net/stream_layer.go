package net

import (
	"context"
	"net"
	"time"
)

// StreamLayer provides the low level stream abstraction used by the Acceptor
// and the Connector.
type StreamLayer interface {
	// Listen binds address. Port 0 picks a free port.
	Listen(ctx context.Context, address string) (net.Listener, error)

	// Dial is used to create a new outgoing connection
	Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error)
}

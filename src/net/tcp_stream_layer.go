package net

import (
	"context"
	"net"
	"time"
)

// TCPStreamLayer implements StreamLayer interface for plain TCP.
type TCPStreamLayer struct {
	// KeepAlive is the keep-alive period of dialed and accepted connections.
	// Zero uses the defaults of the net package.
	KeepAlive time.Duration
}

// NewTCPStreamLayer ...
func NewTCPStreamLayer() *TCPStreamLayer {
	return &TCPStreamLayer{}
}

// Listen implements the StreamLayer interface.
func (t *TCPStreamLayer) Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: t.KeepAlive}
	return lc.Listen(ctx, "tcp", address)
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{
		Timeout:   timeout,
		KeepAlive: t.KeepAlive,
	}
	return d.DialContext(ctx, "tcp", address)
}

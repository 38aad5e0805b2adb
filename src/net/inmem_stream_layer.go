package net

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// InmemStreamLayer is a StreamLayer whose connections are in-memory pipes.
// Listeners and dialers must share the same InmemStreamLayer. It is used for
// testing.
type InmemStreamLayer struct {
	sync.Mutex
	listeners map[string]*inmemListener
	nextPort  int
}

// NewInmemStreamLayer ...
func NewInmemStreamLayer() *InmemStreamLayer {
	return &InmemStreamLayer{
		listeners: make(map[string]*inmemListener),
		nextPort:  40000,
	}
}

// Listen implements the StreamLayer interface.
func (s *InmemStreamLayer) Listen(ctx context.Context, address string) (net.Listener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	if port == "0" {
		port = strconv.Itoa(s.nextPort)
		s.nextPort++
	}
	address = net.JoinHostPort(host, port)

	if _, ok := s.listeners[address]; ok {
		return nil, fmt.Errorf("listen %s: address already in use", address)
	}

	l := &inmemListener{
		layer:   s,
		addr:    inmemAddr(address),
		connCh:  make(chan net.Conn),
		closeCh: make(chan struct{}),
	}
	s.listeners[address] = l

	return l, nil
}

// Dial implements the StreamLayer interface.
func (s *InmemStreamLayer) Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	s.Lock()
	l, ok := s.listeners[address]
	s.Unlock()

	if !ok {
		return nil, fmt.Errorf("dial %s: connection refused", address)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	local, remote := net.Pipe()

	select {
	case l.connCh <- remote:
		return local, nil
	case <-l.closeCh:
		err := fmt.Errorf("dial %s: connection refused", address)
		local.Close()
		remote.Close()
		return nil, err
	case <-timeoutCh:
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("dial %s: i/o timeout", address)
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, ctx.Err()
	}
}

func (s *InmemStreamLayer) remove(address string) {
	s.Lock()
	defer s.Unlock()
	delete(s.listeners, address)
}

type inmemAddr string

func (a inmemAddr) Network() string { return "inmem" }
func (a inmemAddr) String() string  { return string(a) }

type inmemListener struct {
	layer     *InmemStreamLayer
	addr      inmemAddr
	connCh    chan net.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Accept implements the net.Listener interface.
func (l *inmemListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

// Close implements the net.Listener interface.
func (l *inmemListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.layer.remove(string(l.addr))
	})
	return nil
}

// Addr implements the net.Listener interface.
func (l *inmemListener) Addr() net.Addr {
	return l.addr
}

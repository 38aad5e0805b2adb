package net

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/config"
	"github.com/mosaicnetworks/tablenet/src/table"
)

const (
	INMEM = iota
	TCP
	numTestStreamLayers // NOTE: must be last
)

func newTestStreamLayer(stype int) StreamLayer {
	switch stype {
	case INMEM:
		return NewInmemStreamLayer()
	case TCP:
		return NewTCPStreamLayer()
	default:
		panic("Unknown stream layer type")
	}
}

func testConf(t *testing.T, address string) *config.NetworkTableConfiguration {
	t.Helper()

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	conf, err := config.NewNetworkTableConfiguration(host, port, []byte("secret"), "alice", table.New(table.NewStandardRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

// echoHandler answers every HelloRequest with a HelloResponse of the same
// version.
type echoHandler struct {
	*recordingHandler
}

func (e *echoHandler) HandleEvent(ev Event) error {
	if ev.Type == EventMessage {
		if req, ok := ev.Message.(*HelloRequest); ok {
			resp, err := NewHelloResponse(req.SupportedProtocolVersion)
			if err != nil {
				return err
			}
			return e.handle.Send(resp)
		}
	}
	return e.recordingHandler.HandleEvent(ev)
}

func TestAcceptorBindIsOneShot(t *testing.T) {
	for stype := 0; stype < numTestStreamLayers; stype++ {
		stream := newTestStreamLayer(stype)
		d := NewDispatcher(0, 0, cm.NewTestEntry(t))
		if err := d.Open(); err != nil {
			t.Fatal(err)
		}
		defer d.Close()

		factory := func(h *Handle) EventHandler { return newRecordingHandler(h, d) }
		a := NewAcceptor(stream, d, factory, HandleOptions{}, cm.NewTestEntry(t))

		if err := a.Bind(context.Background(), testConf(t, "127.0.0.1:0")); err != nil {
			t.Fatalf("stream %d: %v", stype, err)
		}
		addr := a.Addr()
		if addr == "" || addr == "127.0.0.1:0" {
			t.Fatalf("stream %d: unexpected bound address %q", stype, addr)
		}

		if err := a.Close(); err != nil {
			t.Fatalf("stream %d: %v", stype, err)
		}
		if err := a.Bind(context.Background(), testConf(t, "127.0.0.1:0")); !cm.IsIllegalState(err) {
			t.Fatalf("stream %d: second Bind should be an illegal state, got %v", stype, err)
		}

		// a failed bind is still an attempt
		squatter := NewAcceptor(stream, d, factory, HandleOptions{}, cm.NewTestEntry(t))
		if err := squatter.Bind(context.Background(), testConf(t, "127.0.0.1:0")); err != nil {
			t.Fatal(err)
		}
		defer squatter.Close()

		b := NewAcceptor(stream, d, factory, HandleOptions{}, cm.NewTestEntry(t))
		if err := b.Bind(context.Background(), testConf(t, squatter.Addr())); !cm.IsNetworkTable(err, cm.TransportError) {
			t.Fatalf("stream %d: binding a used address should be a transport error, got %v", stype, err)
		}
		if err := b.Bind(context.Background(), testConf(t, "127.0.0.1:0")); !cm.IsIllegalState(err) {
			t.Fatalf("stream %d: Bind after a failed Bind should be an illegal state, got %v", stype, err)
		}
	}
}

func TestAcceptorConnector(t *testing.T) {
	for stype := 0; stype < numTestStreamLayers; stype++ {
		stream := newTestStreamLayer(stype)

		hostDispatcher := NewDispatcher(0, 0, cm.NewTestEntry(t))
		if err := hostDispatcher.Open(); err != nil {
			t.Fatal(err)
		}
		defer hostDispatcher.Close()

		accepted := make(chan *echoHandler, 1)
		a := NewAcceptor(stream, hostDispatcher, func(h *Handle) EventHandler {
			e := &echoHandler{newRecordingHandler(h, hostDispatcher)}
			accepted <- e
			return e
		}, HandleOptions{}, cm.NewTestEntry(t))

		if err := a.Bind(context.Background(), testConf(t, "127.0.0.1:0")); err != nil {
			t.Fatal(err)
		}
		defer a.Close()

		clientDispatcher := NewDispatcher(0, 0, cm.NewTestEntry(t))
		if err := clientDispatcher.Open(); err != nil {
			t.Fatal(err)
		}
		defer clientDispatcher.Close()

		var client *recordingHandler
		c := NewConnector(stream, clientDispatcher, func(h *Handle) EventHandler {
			client = newRecordingHandler(h, clientDispatcher)
			return client
		}, HandleOptions{}, time.Second, cm.NewTestEntry(t))

		handler, err := c.Connect(context.Background(), testConf(t, a.Addr()))
		if err != nil {
			t.Fatalf("stream %d: %v", stype, err)
		}
		if handler != client {
			t.Fatalf("Connect should return the handler built by the factory")
		}

		if _, err := c.Connect(context.Background(), testConf(t, a.Addr())); !cm.IsIllegalState(err) {
			t.Fatalf("stream %d: second Connect should be an illegal state, got %v", stype, err)
		}

		select {
		case <-accepted:
		case <-time.After(2 * time.Second):
			t.Fatalf("stream %d: connection not accepted", stype)
		}

		hello, _ := NewHelloRequest(3)
		if err := client.Handle().Send(hello); err != nil {
			t.Fatal(err)
		}

		if ev := client.next(t, true); ev.Type != EventOpen {
			t.Fatalf("first event should be Open, not %s", ev.Type)
		}
		ev := client.next(t, true)
		resp, ok := ev.Message.(*HelloResponse)
		if !ok || resp.ChosenProtocolVersion != 3 {
			t.Fatalf("stream %d: unexpected event %#v", stype, ev)
		}
	}
}

func TestConnectorFailures(t *testing.T) {
	for stype := 0; stype < numTestStreamLayers; stype++ {
		stream := newTestStreamLayer(stype)

		// find a port nobody listens on
		l, err := stream.Listen(context.Background(), "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := l.Addr().String()
		l.Close()

		d := NewDispatcher(0, 0, cm.NewTestEntry(t))
		defer d.Close()

		c := NewConnector(stream, d, func(h *Handle) EventHandler {
			return newRecordingHandler(h, d)
		}, HandleOptions{}, time.Second, cm.NewTestEntry(t))

		if _, err := c.Connect(context.Background(), testConf(t, addr)); !cm.IsNetworkTable(err, cm.TransportError) {
			t.Fatalf("stream %d: expected a transport error, got %v", stype, err)
		}
	}
}

func TestConnectorCancel(t *testing.T) {
	stream := NewInmemStreamLayer()

	// a listener that never accepts
	l, err := stream.Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	d := NewDispatcher(0, 0, cm.NewTestEntry(t))
	defer d.Close()

	c := NewConnector(stream, d, func(h *Handle) EventHandler {
		return newRecordingHandler(h, d)
	}, HandleOptions{}, time.Minute, cm.NewTestEntry(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if _, err := c.Connect(ctx, testConf(t, l.Addr().String())); !cm.IsNetworkTable(err, cm.TransportError) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Connect did not return promptly")
	}
}

func TestConnectorClosedDispatcher(t *testing.T) {
	for stype := 0; stype < numTestStreamLayers; stype++ {
		stream := newTestStreamLayer(stype)

		l, err := stream.Listen(context.Background(), "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()
		go func() {
			for {
				conn, err := l.Accept()
				if err != nil {
					return
				}
				defer conn.Close()
			}
		}()

		d := NewDispatcher(0, 0, cm.NewTestEntry(t))
		if err := d.Open(); err != nil {
			t.Fatal(err)
		}
		d.Close()

		c := NewConnector(stream, d, func(h *Handle) EventHandler {
			return newRecordingHandler(h, d)
		}, HandleOptions{}, time.Second, cm.NewTestEntry(t))

		_, err = c.Connect(context.Background(), testConf(t, l.Addr().String()))
		if !cm.IsNetworkTable(err, cm.TransportError) {
			t.Fatalf("stream %d: expected a transport error, got %v", stype, err)
		}
		if cm.IsIllegalState(err) {
			t.Fatalf("stream %d: a closed dispatcher should not surface as an illegal state, got %v", stype, err)
		}
	}
}

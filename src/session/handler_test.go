package session

import (
	gonet "net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/crypto"
	"github.com/mosaicnetworks/tablenet/src/net"
)

type testDelegate struct {
	sync.Mutex
	admitErr      error
	admitted      []string
	authenticated chan *Handler
	messages      chan net.Message
	closed        chan error
}

func newTestDelegate() *testDelegate {
	return &testDelegate{
		authenticated: make(chan *Handler, 1),
		messages:      make(chan net.Message, 16),
		closed:        make(chan error, 1),
	}
}

func (d *testDelegate) Admit(h *Handler) error {
	d.Lock()
	defer d.Unlock()
	if d.admitErr != nil {
		return d.admitErr
	}
	d.admitted = append(d.admitted, h.PlayerName())
	return nil
}

func (d *testDelegate) OnAuthenticated(h *Handler) error {
	d.authenticated <- h
	return nil
}

func (d *testDelegate) OnMessage(h *Handler, msg net.Message) error {
	d.messages <- msg
	return nil
}

func (d *testDelegate) OnClosed(h *Handler, err error) {
	d.closed <- err
}

func (d *testDelegate) admittedNames() []string {
	d.Lock()
	defer d.Unlock()
	return append([]string{}, d.admitted...)
}

type side struct {
	dispatcher *net.Dispatcher
	delegate   *testDelegate
	handler    *Handler
}

func newSide(t *testing.T, role Role, conn gonet.Conn, password, player string) *side {
	t.Helper()

	d := net.NewDispatcher(0, 10*time.Millisecond, cm.NewTestEntry(t))
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })

	delegate := newTestDelegate()
	conf := Config{
		Dispatcher:       d,
		Credentials:      crypto.NewSecret([]byte(password)),
		Delegate:         delegate,
		HandshakeTimeout: time.Second,
		Logger:           cm.NewTestEntry(t),
		PlayerName:       player,
	}

	return &side{
		dispatcher: d,
		delegate:   delegate,
		handler:    NewHandler(role, net.NewHandle(conn, net.HandleOptions{}, cm.NewTestEntry(t)), conf),
	}
}

func handshake(t *testing.T, hostPassword, clientPassword string, admitErr error) (*side, *side) {
	hostConn, clientConn := gonet.Pipe()

	host := newSide(t, Host, hostConn, hostPassword, "")
	host.delegate.admitErr = admitErr
	client := newSide(t, Client, clientConn, clientPassword, "alice")

	if err := host.dispatcher.RegisterEventHandler(host.handler); err != nil {
		t.Fatal(err)
	}
	if err := client.dispatcher.RegisterEventHandler(client.handler); err != nil {
		t.Fatal(err)
	}

	return host, client
}

func waitClosed(t *testing.T, s *side) error {
	t.Helper()
	select {
	case err := <-s.delegate.closed:
		if s.handler.State() != Closed {
			t.Fatalf("closed handler in state %s", s.handler.State())
		}
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("%s handler not closed", s.handler.Role())
	}
	return nil
}

func waitAuthenticated(t *testing.T, s *side) {
	t.Helper()
	select {
	case <-s.delegate.authenticated:
		if s.handler.State() != Authenticated {
			t.Fatalf("%s handler in state %s", s.handler.Role(), s.handler.State())
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("%s handler not authenticated, state %s", s.handler.Role(), s.handler.State())
	}
}

func TestHandshake(t *testing.T) {
	host, client := handshake(t, "secret", "secret", nil)

	waitAuthenticated(t, host)
	waitAuthenticated(t, client)

	if host.handler.PlayerName() != "alice" {
		t.Fatalf("host should know the player as alice, not %q", host.handler.PlayerName())
	}
	if names := host.delegate.admittedNames(); len(names) != 1 || names[0] != "alice" {
		t.Fatalf("unexpected admitted players %v", names)
	}

	// authenticated sessions hand messages to the delegate
	if err := client.handler.Send(net.NewSnapshotRequest()); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-host.delegate.messages:
		if msg.Kind() != net.KindSnapshotRequest {
			t.Fatalf("unexpected message %s", msg.Kind())
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("message not delivered")
	}

	// handshake messages are protocol errors once authenticated
	hello, _ := net.NewHelloRequest(1)
	if err := client.handler.Send(hello); err != nil {
		t.Fatal(err)
	}
	if err := waitClosed(t, host); !cm.IsNetworkTable(err, cm.ProtocolError) {
		t.Fatalf("expected a protocol error, got %v", err)
	}
	if err := waitClosed(t, client); !cm.IsNetworkTable(err, cm.TransportError) {
		t.Fatalf("client should see the connection drop, got %v", err)
	}
}

func TestWrongPassword(t *testing.T) {
	host, client := handshake(t, "secret", "wrong", nil)

	if err := waitClosed(t, client); !cm.IsNetworkTable(err, cm.AuthenticationFailed) {
		t.Fatalf("expected AUTHENTICATION_FAILED, got %v", err)
	}
	if err := waitClosed(t, host); !cm.IsNetworkTable(err, cm.AuthenticationFailed) {
		t.Fatalf("expected AUTHENTICATION_FAILED, got %v", err)
	}
	if names := host.delegate.admittedNames(); len(names) != 0 {
		t.Fatalf("no player should be admitted, got %v", names)
	}
}

func TestDuplicatePlayerName(t *testing.T) {
	refusal := cm.NetworkTableErrorf(cm.DuplicatePlayerName, "admit", "alice is already playing")
	_, client := handshake(t, "secret", "secret", refusal)

	if err := waitClosed(t, client); !cm.IsNetworkTable(err, cm.DuplicatePlayerName) {
		t.Fatalf("expected DUPLICATE_PLAYER_NAME, got %v", err)
	}
}

// rawHost sets up a host handler whose client is driven by the test.
func rawHost(t *testing.T) (*side, gonet.Conn) {
	hostConn, remote := gonet.Pipe()
	t.Cleanup(func() { remote.Close() })

	host := newSide(t, Host, hostConn, "secret", "")
	if err := host.dispatcher.RegisterEventHandler(host.handler); err != nil {
		t.Fatal(err)
	}
	return host, remote
}

func TestUnsupportedProtocolVersion(t *testing.T) {
	host, remote := rawHost(t)

	hello, _ := net.NewHelloRequest(0)
	go net.WriteMessage(remote, hello)

	msg, err := net.ReadMessage(remote, 0)
	if err != nil {
		t.Fatal(err)
	}
	hf, ok := msg.(*net.HandshakeFailed)
	if !ok || hf.ErrorKind != cm.UnsupportedProtocolVersion {
		t.Fatalf("expected an unsupported version failure, got %#v", msg)
	}

	if err := waitClosed(t, host); !cm.IsNetworkTable(err, cm.UnsupportedProtocolVersion) {
		t.Fatalf("expected UNSUPPORTED_PROTOCOL_VERSION, got %v", err)
	}
}

func TestNewerClientGetsHostVersion(t *testing.T) {
	_, remote := rawHost(t)

	hello, _ := net.NewHelloRequest(MaxProtocolVersion + 5)
	go net.WriteMessage(remote, hello)

	msg, err := net.ReadMessage(remote, 0)
	if err != nil {
		t.Fatal(err)
	}
	resp, ok := msg.(*net.HelloResponse)
	if !ok || resp.ChosenProtocolVersion != MaxProtocolVersion {
		t.Fatalf("expected version %d, got %#v", MaxProtocolVersion, msg)
	}

	msg, err = net.ReadMessage(remote, 0)
	if err != nil {
		t.Fatal(err)
	}
	req, ok := msg.(*net.BeginAuthenticationRequest)
	if !ok {
		t.Fatalf("expected a challenge, got %#v", msg)
	}
	if len(req.Salt) != crypto.SaltSize || len(req.Challenge) != crypto.ChallengeSize {
		t.Fatalf("unexpected salt/challenge sizes %d/%d", len(req.Salt), len(req.Challenge))
	}
}

func TestOnlyCorrectPasswordAuthenticates(t *testing.T) {
	for _, c := range []struct {
		password string
		ok       bool
	}{
		{"secret", true},
		{"wrong", false},
		{"secret ", false},
		{"Secret", false},
	} {
		host, remote := rawHost(t)

		hello, _ := net.NewHelloRequest(MaxProtocolVersion)
		go net.WriteMessage(remote, hello)

		if _, err := net.ReadMessage(remote, 0); err != nil {
			t.Fatal(err)
		}
		msg, err := net.ReadMessage(remote, 0)
		if err != nil {
			t.Fatal(err)
		}
		req := msg.(*net.BeginAuthenticationRequest)

		response := crypto.ComputeResponse([]byte(c.password), req.Salt, req.Challenge)
		resp, _ := net.NewBeginAuthenticationResponse(response, "bob")
		go net.WriteMessage(remote, resp)

		msg, err = net.ReadMessage(remote, 0)
		if err != nil {
			t.Fatal(err)
		}
		_, authenticated := msg.(*net.AuthenticationSucceeded)
		if authenticated != c.ok {
			t.Fatalf("password %q: authenticated=%v, got %#v", c.password, authenticated, msg)
		}
		if c.ok {
			waitAuthenticated(t, host)
		} else if err := waitClosed(t, host); !cm.IsNetworkTable(err, cm.AuthenticationFailed) {
			t.Fatalf("password %q: expected AUTHENTICATION_FAILED, got %v", c.password, err)
		}
	}
}

func TestOutOfSequenceMessage(t *testing.T) {
	host, remote := rawHost(t)

	go net.WriteMessage(remote, net.NewSnapshotRequest())

	msg, err := net.ReadMessage(remote, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hf, ok := msg.(*net.HandshakeFailed); !ok || hf.ErrorKind != cm.ProtocolError {
		t.Fatalf("expected a protocol failure, got %#v", msg)
	}
	if err := waitClosed(t, host); !cm.IsNetworkTable(err, cm.ProtocolError) {
		t.Fatalf("expected PROTOCOL_ERROR, got %v", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	host, _ := rawHost(t)

	start := time.Now()
	if err := waitClosed(t, host); !cm.IsNetworkTable(err, cm.TransportError) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	if time.Since(start) < 500*time.Millisecond {
		t.Fatalf("handler closed before its handshake timeout")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	host, _ := rawHost(t)

	boom := errors.New("boom")
	host.handler.Close(boom)
	host.handler.Close(nil)

	if err := waitClosed(t, host); err != boom {
		t.Fatalf("expected the first close error, got %v", err)
	}
	select {
	case err := <-host.delegate.closed:
		t.Fatalf("OnClosed called twice, second with %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if host.dispatcher.Len() != 0 {
		t.Fatalf("closed handler should be unregistered")
	}
	if host.handler.Err() != boom {
		t.Fatalf("Err should return the close error")
	}
}

func TestStateTransitions(t *testing.T) {
	valid := []struct {
		role     Role
		from, to State
	}{
		{Host, AwaitingHello, AwaitingAuthResponse},
		{Host, AwaitingAuthResponse, Authenticated},
		{Client, AwaitingHello, AwaitingAuthChallenge},
		{Client, AwaitingAuthChallenge, AwaitingAuthResult},
		{Client, AwaitingAuthResult, Authenticated},
		{Host, Authenticated, Closed},
		{Client, AwaitingHello, Closed},
	}
	for _, v := range valid {
		if err := canTransition(v.role, v.from, v.to); err != nil {
			t.Fatal(err)
		}
	}

	invalid := []struct {
		role     Role
		from, to State
	}{
		{Host, AwaitingHello, Authenticated},
		{Host, AwaitingHello, AwaitingAuthChallenge},
		{Client, AwaitingHello, AwaitingAuthResponse},
		{Client, Authenticated, AwaitingHello},
		{Host, Closed, AwaitingHello},
		{Client, Closed, Authenticated},
	}
	for _, v := range invalid {
		if err := canTransition(v.role, v.from, v.to); err == nil {
			t.Fatalf("%s should not transition from %s to %s", v.role, v.from, v.to)
		}
	}
}

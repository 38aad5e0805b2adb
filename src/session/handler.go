package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/crypto"
	"github.com/mosaicnetworks/tablenet/src/net"
)

// Supported protocol versions. A host answers a HelloRequest with the highest
// version both sides support.
const (
	MinProtocolVersion int32 = 1
	MaxProtocolVersion int32 = 1
)

// DefaultHandshakeTimeout ...
const DefaultHandshakeTimeout = 10 * time.Second

// Role tells which side of the connection a Handler is on.
type Role int

const (
	// Host handlers are created by an Acceptor.
	Host Role = iota
	// Client handlers are created by a Connector.
	Client
)

// String ...
func (r Role) String() string {
	if r == Host {
		return "host"
	}
	return "client"
}

// Delegate receives the events of authenticated sessions. Its methods are
// called from the dispatcher goroutines of the handler, so they must not
// block, and must not close the net.Dispatcher.
type Delegate interface {
	// Admit is called on the host side once the challenge response is correct,
	// before the client is told so. Returning an error refuses the player; the
	// kind of a NetworkTableError, DuplicatePlayerName for instance, is sent
	// to the client.
	Admit(h *Handler) error

	// OnAuthenticated is called on both sides once the handshake completed.
	OnAuthenticated(h *Handler) error

	// OnMessage is called for every message received once authenticated.
	OnMessage(h *Handler, msg net.Message) error

	// OnClosed is called exactly once, when the handler closes. err is nil
	// for a local close.
	OnClosed(h *Handler, err error)
}

// Config are the parameters shared by the handlers of a node.
type Config struct {
	Dispatcher       *net.Dispatcher
	Credentials      crypto.CredentialStore
	Delegate         Delegate
	HandshakeTimeout time.Duration
	Logger           *logrus.Entry

	// PlayerName is the name a client authenticates with. Unused by hosts.
	PlayerName string
}

// Handler is the service handler of one connection.
type Handler struct {
	state

	role   Role
	handle *net.Handle
	conf   Config
	logger *logrus.Entry

	deadline  time.Time
	salt      []byte
	challenge []byte

	nameLock   sync.RWMutex
	playerName string

	closeOnce sync.Once
	closeErr  error
	doneCh    chan struct{}
}

// NewHandler returns a handler in the AwaitingHello state.
func NewHandler(role Role, handle *net.Handle, conf Config) *Handler {
	if conf.Logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		conf.Logger = logrus.NewEntry(log)
	}
	if conf.HandshakeTimeout <= 0 {
		conf.HandshakeTimeout = DefaultHandshakeTimeout
	}

	return &Handler{
		role:   role,
		handle: handle,
		conf:   conf,
		logger: conf.Logger.WithFields(logrus.Fields{
			"role":   role,
			"handle": handle.ID(),
		}),
		deadline: time.Now().Add(conf.HandshakeTimeout),
		doneCh:   make(chan struct{}),
	}
}

// HostFactory returns the net.HandlerFactory of an Acceptor.
func HostFactory(conf Config) net.HandlerFactory {
	return func(h *net.Handle) net.EventHandler {
		return NewHandler(Host, h, conf)
	}
}

// ClientFactory returns the net.HandlerFactory of a Connector.
func ClientFactory(conf Config) net.HandlerFactory {
	return func(h *net.Handle) net.EventHandler {
		return NewHandler(Client, h, conf)
	}
}

// Handle implements net.EventHandler.
func (h *Handler) Handle() *net.Handle {
	return h.handle
}

// Role ...
func (h *Handler) Role() Role {
	return h.role
}

// State returns the current protocol state.
func (h *Handler) State() State {
	return h.getState()
}

// PlayerName returns the name of the remote player on a host, and of the local
// player on a client. It is empty on a host until the client answered the
// challenge.
func (h *Handler) PlayerName() string {
	h.nameLock.RLock()
	defer h.nameLock.RUnlock()
	return h.playerName
}

func (h *Handler) setPlayerName(name string) {
	h.nameLock.Lock()
	defer h.nameLock.Unlock()
	h.playerName = name
}

// Send queues msg on the connection.
func (h *Handler) Send(msg net.Message) error {
	return h.handle.Send(msg)
}

// Done is closed once the handler is closed.
func (h *Handler) Done() <-chan struct{} {
	return h.doneCh
}

// Err returns the error the handler was closed with. It is only meaningful
// once Done is closed.
func (h *Handler) Err() error {
	<-h.doneCh
	return h.closeErr
}

// Close implements net.EventHandler. It is idempotent.
func (h *Handler) Close(err error) {
	h.closeOnce.Do(func() {
		h.setState(Closed)
		h.closeErr = err
		h.handle.Close()

		if uerr := h.conf.Dispatcher.UnregisterEventHandler(h); uerr != nil && !cm.IsIllegalState(uerr) {
			h.logger.WithError(uerr).Warn("Failed to unregister handler")
		}

		if err != nil {
			h.logger.WithError(err).Debug("Handler closed")
		} else {
			h.logger.Debug("Handler closed")
		}

		close(h.doneCh)

		if h.conf.Delegate != nil {
			h.conf.Delegate.OnClosed(h, err)
		}
	})
}

// HandleEvent implements net.EventHandler.
func (h *Handler) HandleEvent(ev net.Event) error {
	if h.getState() == Closed {
		return nil
	}

	switch ev.Type {
	case net.EventOpen:
		if h.role == Client {
			return h.sendHello()
		}
		return nil
	case net.EventTick:
		if h.getState() != Authenticated && time.Now().After(h.deadline) {
			return cm.NetworkTableErrorf(cm.TransportError, "handshake",
				"not authenticated after %s", h.conf.HandshakeTimeout)
		}
		return nil
	case net.EventClosed:
		return ev.Err
	case net.EventMessage:
		if h.role == Host {
			return h.hostMessage(ev.Message)
		}
		return h.clientMessage(ev.Message)
	default:
		return nil
	}
}

func (h *Handler) transitionTo(to State) error {
	from := h.getState()
	if err := canTransition(h.role, from, to); err != nil {
		return cm.NewNetworkTableError(cm.ProtocolError, "transition", err)
	}
	if !h.compareAndSwapState(from, to) {
		return cm.NetworkTableErrorf(cm.ProtocolError, "transition", "state changed concurrently from %s", from)
	}
	h.logger.WithField("state", to).Debug("Transition")
	return nil
}

func unexpected(s State, msg net.Message) error {
	return cm.NetworkTableErrorf(cm.ProtocolError, "receive", "unexpected %s in state %s", msg.Kind(), s)
}

func isHandshakeMessage(msg net.Message) bool {
	switch msg.Kind() {
	case net.KindHelloRequest,
		net.KindHelloResponse,
		net.KindBeginAuthenticationRequest,
		net.KindBeginAuthenticationResponse,
		net.KindHandshakeFailed,
		net.KindAuthenticationSucceeded:
		return true
	default:
		return false
	}
}

// fail tells the client why the handshake failed and returns err, which
// closes the handler.
func (h *Handler) fail(err error) error {
	kind := cm.ProtocolError
	if ntErr, ok := cm.AsNetworkTable(err); ok {
		kind = ntErr.Kind()
	}

	if hf, herr := net.NewHandshakeFailed(kind, err.Error()); herr == nil {
		h.handle.Send(hf)
	}
	return err
}

/*******************************************************************************
Host
*******************************************************************************/

func chooseVersion(supported int32) (int32, bool) {
	chosen := supported
	if chosen > MaxProtocolVersion {
		chosen = MaxProtocolVersion
	}
	return chosen, chosen >= MinProtocolVersion
}

func (h *Handler) hostMessage(msg net.Message) error {
	s := h.getState()

	switch s {
	case AwaitingHello:
		req, ok := msg.(*net.HelloRequest)
		if !ok {
			return h.fail(unexpected(s, msg))
		}
		return h.hostHello(req)
	case AwaitingAuthResponse:
		resp, ok := msg.(*net.BeginAuthenticationResponse)
		if !ok {
			return h.fail(unexpected(s, msg))
		}
		return h.hostAuthenticate(resp)
	case Authenticated:
		if isHandshakeMessage(msg) {
			return unexpected(s, msg)
		}
		return h.conf.Delegate.OnMessage(h, msg)
	default:
		return unexpected(s, msg)
	}
}

func (h *Handler) hostHello(req *net.HelloRequest) error {
	chosen, ok := chooseVersion(req.SupportedProtocolVersion)
	if !ok {
		return h.fail(cm.NetworkTableErrorf(cm.UnsupportedProtocolVersion, "hello",
			"client supports version %d, host needs at least %d", req.SupportedProtocolVersion, MinProtocolVersion))
	}

	resp, err := net.NewHelloResponse(chosen)
	if err != nil {
		return err
	}
	if err := h.Send(resp); err != nil {
		return err
	}

	if h.salt, err = crypto.NewSalt(); err != nil {
		return err
	}
	if h.challenge, err = crypto.NewChallenge(); err != nil {
		return err
	}

	authReq, err := net.NewBeginAuthenticationRequest(h.challenge, h.salt)
	if err != nil {
		return err
	}
	if err := h.Send(authReq); err != nil {
		return err
	}

	return h.transitionTo(AwaitingAuthResponse)
}

func (h *Handler) hostAuthenticate(resp *net.BeginAuthenticationResponse) error {
	password := h.conf.Credentials.Password()
	ok := crypto.VerifyResponse(password, h.salt, h.challenge, resp.Response)
	crypto.Wipe(password)

	h.salt, h.challenge = nil, nil

	if !ok {
		return h.fail(cm.NetworkTableErrorf(cm.AuthenticationFailed, "authenticate",
			"wrong response from %s", resp.PlayerName))
	}

	h.setPlayerName(resp.PlayerName)

	if err := h.conf.Delegate.Admit(h); err != nil {
		return h.fail(err)
	}

	succeeded, err := net.NewAuthenticationSucceeded(resp.PlayerName)
	if err != nil {
		return err
	}
	if err := h.Send(succeeded); err != nil {
		return err
	}

	if err := h.transitionTo(Authenticated); err != nil {
		return err
	}

	h.logger.WithField("player", resp.PlayerName).Info("Player authenticated")

	return h.conf.Delegate.OnAuthenticated(h)
}

/*******************************************************************************
Client
*******************************************************************************/

func (h *Handler) sendHello() error {
	h.setPlayerName(h.conf.PlayerName)

	req, err := net.NewHelloRequest(MaxProtocolVersion)
	if err != nil {
		return err
	}
	return h.Send(req)
}

func (h *Handler) clientMessage(msg net.Message) error {
	s := h.getState()

	if hf, ok := msg.(*net.HandshakeFailed); ok && s != Authenticated {
		return hf.Err()
	}

	switch s {
	case AwaitingHello:
		resp, ok := msg.(*net.HelloResponse)
		if !ok {
			return unexpected(s, msg)
		}
		v := resp.ChosenProtocolVersion
		if v < MinProtocolVersion || v > MaxProtocolVersion {
			return cm.NetworkTableErrorf(cm.ProtocolError, "hello", "host chose unsupported version %d", v)
		}
		return h.transitionTo(AwaitingAuthChallenge)
	case AwaitingAuthChallenge:
		req, ok := msg.(*net.BeginAuthenticationRequest)
		if !ok {
			return unexpected(s, msg)
		}
		return h.clientAuthenticate(req)
	case AwaitingAuthResult:
		if _, ok := msg.(*net.AuthenticationSucceeded); !ok {
			return unexpected(s, msg)
		}
		if err := h.transitionTo(Authenticated); err != nil {
			return err
		}
		h.logger.Info("Authenticated")
		return h.conf.Delegate.OnAuthenticated(h)
	case Authenticated:
		if isHandshakeMessage(msg) {
			return unexpected(s, msg)
		}
		return h.conf.Delegate.OnMessage(h, msg)
	default:
		return unexpected(s, msg)
	}
}

func (h *Handler) clientAuthenticate(req *net.BeginAuthenticationRequest) error {
	password := h.conf.Credentials.Password()
	response := crypto.ComputeResponse(password, req.Salt, req.Challenge)
	crypto.Wipe(password)

	resp, err := net.NewBeginAuthenticationResponse(response, h.conf.PlayerName)
	if err != nil {
		return errors.Wrap(err, "building authentication response")
	}
	if err := h.Send(resp); err != nil {
		return err
	}

	return h.transitionTo(AwaitingAuthResult)
}

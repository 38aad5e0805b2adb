package net

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/config"
)

// Acceptor listens for inbound connections and registers a handler for each
// of them with its Dispatcher.
type Acceptor struct {
	stream     StreamLayer
	dispatcher *Dispatcher
	factory    HandlerFactory
	opts       HandleOptions
	logger     *logrus.Entry

	mtx       sync.Mutex
	attempted bool
	closed    bool
	listener  net.Listener

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewAcceptor ...
func NewAcceptor(
	stream StreamLayer,
	dispatcher *Dispatcher,
	factory HandlerFactory,
	opts HandleOptions,
	logger *logrus.Entry,
) *Acceptor {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Acceptor{
		stream:     stream,
		dispatcher: dispatcher,
		factory:    factory,
		opts:       opts,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Bind listens on the address of conf and starts accepting connections. Bind
// can only be attempted once, whether it succeeded or not.
func (a *Acceptor) Bind(ctx context.Context, conf *config.NetworkTableConfiguration) error {
	a.mtx.Lock()
	if a.attempted || a.closed {
		a.mtx.Unlock()
		return cm.NewIllegalStateError("Acceptor.Bind", "bind already attempted")
	}
	a.attempted = true
	a.mtx.Unlock()

	if conf == nil {
		return cm.NetworkTableErrorf(cm.ConfigurationError, "bind", "nil configuration")
	}

	listener, err := a.stream.Listen(ctx, conf.Address())
	if err != nil {
		return cm.NewNetworkTableError(cm.TransportError, "bind", err)
	}

	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.closed {
		listener.Close()
		return cm.NetworkTableErrorf(cm.TransportError, "bind", "acceptor closed while binding")
	}
	if err := ctx.Err(); err != nil {
		listener.Close()
		return cm.NewNetworkTableError(cm.TransportError, "bind", err)
	}
	a.listener = listener

	a.logger.WithField("addr", listener.Addr()).Debug("Listening")

	a.wg.Add(1)
	go a.accept(listener)

	return nil
}

// Addr returns the bound address, or "" before Bind succeeded.
func (a *Acceptor) Addr() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Close stops accepting connections. Handlers already registered are left to
// the Dispatcher. Close is idempotent.
func (a *Acceptor) Close() error {
	a.mtx.Lock()
	if a.closed {
		a.mtx.Unlock()
		return nil
	}
	a.closed = true
	close(a.shutdownCh)
	listener := a.listener
	a.mtx.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	a.wg.Wait()

	return err
}

func (a *Acceptor) isShutdown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

func (a *Acceptor) accept(listener net.Listener) {
	defer a.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if a.isShutdown() || errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		a.logger.WithFields(logrus.Fields{
			"local": conn.LocalAddr(),
			"from":  conn.RemoteAddr(),
		}).Debug("Accepted connection")

		handler := a.factory(NewHandle(conn, a.opts, a.logger))
		if err := a.dispatcher.RegisterEventHandler(handler); err != nil {
			a.logger.WithError(err).Debug("Dropping connection")
			handler.Close(err)
		}
	}
}

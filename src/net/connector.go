package net

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/config"
)

// DefaultDialTimeout ...
const DefaultDialTimeout = 5 * time.Second

// Connector establishes the single outbound connection of a client and
// registers its handler with the Dispatcher.
type Connector struct {
	stream      StreamLayer
	dispatcher  *Dispatcher
	factory     HandlerFactory
	opts        HandleOptions
	dialTimeout time.Duration
	logger      *logrus.Entry

	mtx       sync.Mutex
	attempted bool
}

// NewConnector ...
func NewConnector(
	stream StreamLayer,
	dispatcher *Dispatcher,
	factory HandlerFactory,
	opts HandleOptions,
	dialTimeout time.Duration,
	logger *logrus.Entry,
) *Connector {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	return &Connector{
		stream:      stream,
		dispatcher:  dispatcher,
		factory:     factory,
		opts:        opts,
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// Connect dials the address of conf and returns the registered handler of the
// connection. Connect can only be attempted once.
func (c *Connector) Connect(ctx context.Context, conf *config.NetworkTableConfiguration) (EventHandler, error) {
	c.mtx.Lock()
	if c.attempted {
		c.mtx.Unlock()
		return nil, cm.NewIllegalStateError("Connector.Connect", "connect already attempted")
	}
	c.attempted = true
	c.mtx.Unlock()

	if conf == nil {
		return nil, cm.NetworkTableErrorf(cm.ConfigurationError, "connect", "nil configuration")
	}

	conn, err := c.stream.Dial(ctx, conf.Address(), c.dialTimeout)
	if err != nil {
		return nil, cm.NewNetworkTableError(cm.TransportError, "connect", err)
	}

	c.logger.WithFields(logrus.Fields{
		"local": conn.LocalAddr(),
		"to":    conn.RemoteAddr(),
	}).Debug("Connected")

	handler := c.factory(NewHandle(conn, c.opts, c.logger))
	if err := c.dispatcher.RegisterEventHandler(handler); err != nil {
		err = cm.NewNetworkTableError(cm.TransportError, "connect", err)
		handler.Close(err)
		return nil, err
	}

	return handler, nil
}

package tablenet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/config"
	"github.com/mosaicnetworks/tablenet/src/net"
	"github.com/mosaicnetworks/tablenet/src/node"
	"github.com/mosaicnetworks/tablenet/src/service"
	"github.com/mosaicnetworks/tablenet/src/table"
)

// Mode selects whether an Engine hosts a table or joins one.
type Mode int

const (
	// HostMode opens the local table to other players.
	HostMode Mode = iota
	// JoinMode replicates the table of a host.
	JoinMode
)

// String ...
func (m Mode) String() string {
	if m == JoinMode {
		return "join"
	}
	return "host"
}

// Engine wires a Node to its journal, table, stream layer and HTTP service
// from a Config.
type Engine struct {
	Config  *config.Config
	Stream  net.StreamLayer
	Journal table.Journal
	Table   *table.Table
	Node    *node.Node
	Service *service.Service

	logger *logrus.Entry
}

// NewEngine ...
func NewEngine(conf *config.Config) *Engine {
	engine := &Engine{
		Config: conf,
		logger: conf.Logger(),
	}

	return engine
}

func (e *Engine) initStream() error {
	if e.Stream == nil {
		e.Stream = net.NewTCPStreamLayer()
	}
	return nil
}

func (e *Engine) initJournal() error {
	if !e.Config.Store {
		e.Journal = table.NewInmemJournal(e.Config.JournalSize)

		e.logger.Debug("created new in-mem journal")

		return nil
	}

	e.logger.WithField("path", e.Config.DatabaseDir).Debug("Attempting to create journal database")

	journal, err := table.NewBadgerJournal(e.Config.JournalSize, e.Config.DatabaseDir)
	if err != nil {
		return errors.Wrap(err, "creating badger journal")
	}
	e.Journal = journal

	return nil
}

func (e *Engine) initTable() error {
	if e.Table == nil {
		e.Table = table.New(table.NewStandardRegistry())
	}
	return nil
}

func (e *Engine) initNode() error {
	conf := node.NewConfig(
		e.Config.HandshakeTimeout,
		e.Config.DialTimeout,
		e.Config.TickInterval,
		e.Config.InboxSize,
		e.Config.OutboxSize,
		e.Config.MaxFrameSize,
		e.Config.JournalSize,
		e.logger,
	)

	e.Node = node.NewNode(conf, e.Stream, e.Journal)

	return nil
}

func (e *Engine) initService() error {
	if !e.Config.NoService {
		e.Service = service.NewService(e.Config.ServiceAddr, e.Node, e.logger)
	}
	return nil
}

// Init creates the components of the engine. Stream and Table may be set
// beforehand to replace the TCP stream layer and the empty standard table.
func (e *Engine) Init() error {
	if err := e.initStream(); err != nil {
		return err
	}

	if err := e.initJournal(); err != nil {
		return err
	}

	if err := e.initTable(); err != nil {
		return err
	}

	if err := e.initNode(); err != nil {
		return err
	}

	if err := e.initService(); err != nil {
		return err
	}

	return nil
}

// Start hosts or joins the table described by the configuration, and returns
// once the node is Hosting or Joined.
func (e *Engine) Start(ctx context.Context, mode Mode) error {
	ntc, err := e.Config.NetworkTableConfiguration(e.Table)
	if err != nil {
		return err
	}
	// ntc holds its own copy from here on
	e.Config.WipePassword()

	e.logger.WithFields(logrus.Fields{
		"mode":    mode,
		"address": ntc.Address(),
		"player":  ntc.LocalPlayerName(),
	}).Debug("Start")

	if mode == JoinMode {
		return e.Node.Join(ctx, ntc)
	}
	return e.Node.Host(ctx, ntc)
}

// Run starts the node, then supervises it along with the HTTP service until
// ctx is done or the node is disconnected. The node is always disconnected
// when Run returns.
func (e *Engine) Run(ctx context.Context, mode Mode) error {
	defer e.Node.Disconnect()

	if err := e.Start(ctx, mode); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			e.Node.Disconnect()
			return nil
		case <-e.Node.Done():
			if ctx.Err() != nil {
				return nil
			}
			return cm.NetworkTableErrorf(cm.TransportError, "Run", "node disconnected")
		}
	})

	if e.Service != nil {
		g.Go(func() error {
			return e.Service.Serve(gctx)
		})
	}

	return g.Wait()
}

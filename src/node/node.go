package node

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/config"
	"github.com/mosaicnetworks/tablenet/src/net"
	"github.com/mosaicnetworks/tablenet/src/session"
	"github.com/mosaicnetworks/tablenet/src/table"
)

const subscriberBuffer = 256

// Update describes a change of the local table caused by the network: a
// mutation from another player, or a snapshot that replaced the whole table.
type Update struct {
	Revision int64
	Origin   string
	// Mutation is nil when the table was restored from a snapshot.
	Mutation *table.Mutation
}

// Node is a participant of a table network, either hosting the shared table
// or joined to a host as a replica. A Node is used for a single session: once
// disconnected it cannot host or join again.
type Node struct {
	state

	conf    *Config
	logger  *logrus.Entry
	stream  net.StreamLayer
	journal table.Journal

	ctx    context.Context
	cancel context.CancelFunc

	// components, set when the session starts
	controlLock  sync.Mutex
	dispatcher   *net.Dispatcher
	acceptor     *net.Acceptor
	connector    *net.Connector
	ntc          *config.NetworkTableConfiguration
	shutdownOnce sync.Once

	roster *Roster

	// tableLock serializes every change of the table, whether local or from
	// the network, along with the messages that announce it.
	tableLock sync.Mutex
	model     table.Model
	peers     map[*session.Handler]struct{}

	// client side replication state, under tableLock
	server           *session.Handler
	synced           bool
	awaitingSnapshot bool
	resyncRequested  bool
	inflight         []int64

	joinOnce sync.Once
	joinCh   chan error

	subLock     sync.Mutex
	subscribers []chan Update

	start            time.Time
	mutationsApplied int64
	proposalsSent    int64
	snapshotsSent    int64
	snapshotsLoaded  int64
	resyncsServed    int64
}

// NewNode returns an Idle node. stream defaults to TCP, journal to an
// in-memory journal of conf.JournalSize entries. The journal is only used
// when hosting, and is closed by Disconnect.
func NewNode(conf *Config, stream net.StreamLayer, journal table.Journal) *Node {
	if conf == nil {
		conf = DefaultConfig()
	}
	if stream == nil {
		stream = net.NewTCPStreamLayer()
	}
	if journal == nil {
		journal = table.NewInmemJournal(conf.JournalSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		conf:    conf,
		logger:  conf.Logger,
		stream:  stream,
		journal: journal,
		ctx:     ctx,
		cancel:  cancel,
		roster:  NewRoster(),
		peers:   make(map[*session.Handler]struct{}),
		joinCh:  make(chan error, 1),
	}
}

func (n *Node) handleOptions() net.HandleOptions {
	return net.HandleOptions{
		MaxFrameSize: n.conf.MaxFrameSize,
		OutboxSize:   n.conf.OutboxSize,
	}
}

func (n *Node) sessionConfig(ntc *config.NetworkTableConfiguration, delegate session.Delegate) session.Config {
	return session.Config{
		Dispatcher:       n.dispatcher,
		Credentials:      ntc,
		Delegate:         delegate,
		HandshakeTimeout: n.conf.HandshakeTimeout,
		Logger:           n.logger,
		PlayerName:       ntc.LocalPlayerName(),
	}
}

// begin moves the node from Idle to s and sets up the dispatcher.
func (n *Node) begin(op string, s State, ntc *config.NetworkTableConfiguration) error {
	if ntc == nil {
		return cm.NetworkTableErrorf(cm.ConfigurationError, op, "nil configuration")
	}

	n.controlLock.Lock()
	defer n.controlLock.Unlock()

	if st := n.getState(); st != Idle {
		return cm.NewIllegalStateError(op, "node is "+st.String())
	}

	// the table must be in place before the state lets Apply through
	n.tableLock.Lock()
	n.ntc = ntc
	n.model = ntc.LocalTable()
	n.tableLock.Unlock()

	if !n.compareAndSwapState(Idle, s) {
		return cm.NewIllegalStateError(op, "node is "+n.getState().String())
	}

	n.start = time.Now()
	n.logger = n.conf.Logger.WithField("player", ntc.LocalPlayerName())

	n.dispatcher = net.NewDispatcher(n.conf.InboxSize, n.conf.TickInterval, n.logger)
	return n.dispatcher.Open()
}

// operationContext is cancelled with ctx, or when the node disconnects.
func (n *Node) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-n.ctx.Done():
			cancel()
		case <-opCtx.Done():
		}
	}()
	return opCtx, cancel
}

// Host opens the table described by ntc to remote players. It returns once
// the acceptor is bound.
func (n *Node) Host(ctx context.Context, ntc *config.NetworkTableConfiguration) error {
	if err := n.begin("Host", Hosting, ntc); err != nil {
		return err
	}

	n.roster.Reset([]string{ntc.LocalPlayerName()})

	opCtx, cancel := n.operationContext(ctx)
	defer cancel()

	n.controlLock.Lock()
	if n.getState() == Disconnected {
		n.controlLock.Unlock()
		return cm.NetworkTableErrorf(cm.TransportError, "Host", "disconnected")
	}
	n.acceptor = net.NewAcceptor(
		n.stream,
		n.dispatcher,
		session.HostFactory(n.sessionConfig(ntc, &hostDelegate{n})),
		n.handleOptions(),
		n.logger,
	)
	acceptor := n.acceptor
	n.controlLock.Unlock()

	if err := acceptor.Bind(opCtx, ntc); err != nil {
		n.Disconnect()
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"addr":     acceptor.Addr(),
		"revision": n.Revision(),
	}).Info("Hosting table")

	return nil
}

// Join connects to the host of ntc, authenticates, and replaces the local
// table with the host's. It returns once the table is synchronized, or with
// the error that ended the attempt.
func (n *Node) Join(ctx context.Context, ntc *config.NetworkTableConfiguration) error {
	if err := n.begin("Join", Joining, ntc); err != nil {
		return err
	}

	opCtx, cancel := n.operationContext(ctx)
	defer cancel()

	n.controlLock.Lock()
	if n.getState() == Disconnected {
		n.controlLock.Unlock()
		return cm.NetworkTableErrorf(cm.TransportError, "Join", "disconnected")
	}
	n.connector = net.NewConnector(
		n.stream,
		n.dispatcher,
		session.ClientFactory(n.sessionConfig(ntc, &clientDelegate{n})),
		n.handleOptions(),
		n.conf.DialTimeout,
		n.logger,
	)
	connector := n.connector
	n.controlLock.Unlock()

	handler, err := connector.Connect(opCtx, ntc)
	if err != nil {
		n.Disconnect()
		return err
	}

	n.tableLock.Lock()
	n.server = handler.(*session.Handler)
	n.tableLock.Unlock()

	select {
	case err = <-n.joinCh:
	case <-opCtx.Done():
		err = cm.NewNetworkTableError(cm.TransportError, "Join", opCtx.Err())
	}

	if err != nil {
		n.Disconnect()
		return err
	}

	if !n.compareAndSwapState(Joining, Joined) {
		return cm.NetworkTableErrorf(cm.TransportError, "Join", "disconnected")
	}

	n.logger.WithFields(logrus.Fields{
		"host":     ntc.Address(),
		"revision": n.Revision(),
		"players":  n.roster.Names(),
	}).Info("Joined table")

	return nil
}

func (n *Node) joined(err error) {
	n.joinOnce.Do(func() {
		n.joinCh <- err
	})
}

// Disconnect closes every connection and releases the resources of the node.
// It makes an in-flight Host or Join return with an error. Disconnecting a
// node twice is a no-op.
func (n *Node) Disconnect() error {
	n.shutdownOnce.Do(func() {
		n.controlLock.Lock()
		n.setState(Disconnected)
		acceptor, dispatcher := n.acceptor, n.dispatcher
		logger := n.logger
		n.controlLock.Unlock()

		logger.Debug("Disconnect")

		n.cancel()
		n.joined(cm.NetworkTableErrorf(cm.TransportError, "Join", "disconnected"))

		if acceptor != nil {
			acceptor.Close()
		}
		if dispatcher != nil {
			dispatcher.Close()
		}

		if err := n.journal.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close journal")
		}

		n.subLock.Lock()
		for _, ch := range n.subscribers {
			close(ch)
		}
		n.subscribers = nil
		n.subLock.Unlock()
	})
	return nil
}

// Apply performs m on the local table and shares it with the other players.
// On a host the mutation is ordered immediately and broadcast; on a client it
// is proposed to the host, which has the last word on the order.
func (n *Node) Apply(m table.Mutation) error {
	switch n.getState() {
	case Hosting:
		return n.hostApply(m)
	case Joined:
		return n.clientApply(m)
	default:
		return cm.NewIllegalStateError("Apply", "node is "+n.getState().String())
	}
}

// applyLocked is the single entry point of table changes. tableLock must be
// held.
func (n *Node) applyLocked(m table.Mutation) (int64, error) {
	if err := n.model.Apply(m); err != nil {
		return n.model.RevisionNumber(), err
	}
	atomic.AddInt64(&n.mutationsApplied, 1)
	return n.model.RevisionNumber(), nil
}

// restoreLocked replaces the table with s. tableLock must be held.
func (n *Node) restoreLocked(s *table.Snapshot) error {
	if err := n.model.Restore(s); err != nil {
		return err
	}
	atomic.AddInt64(&n.snapshotsLoaded, 1)
	return nil
}

// Subscribe returns a channel of the changes made to the local table by other
// players. Updates are dropped if the channel is not drained. The channel is
// closed by Disconnect.
func (n *Node) Subscribe() <-chan Update {
	ch := make(chan Update, subscriberBuffer)

	n.subLock.Lock()
	defer n.subLock.Unlock()

	if n.getState() == Disconnected {
		close(ch)
		return ch
	}
	n.subscribers = append(n.subscribers, ch)
	return ch
}

func (n *Node) publish(u Update) {
	n.subLock.Lock()
	defer n.subLock.Unlock()

	for _, ch := range n.subscribers {
		select {
		case ch <- u:
		default:
			n.logger.WithField("revision", u.Revision).Warn("Subscriber not keeping up, dropping update")
		}
	}
}

// Revision returns the revision of the local table.
func (n *Node) Revision() int64 {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	if n.model == nil {
		return 0
	}
	return n.model.RevisionNumber()
}

// Snapshot captures the local table.
func (n *Node) Snapshot() *table.Snapshot {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	if n.model == nil {
		return nil
	}
	return n.model.Snapshot()
}

// Table returns the local table. Changes must go through Apply.
func (n *Node) Table() table.Model {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()
	return n.model
}

// Roster returns the names of the players at the table.
func (n *Node) Roster() []string {
	return n.roster.Names()
}

// Addr returns the address a host is bound to, or "".
func (n *Node) Addr() string {
	n.controlLock.Lock()
	defer n.controlLock.Unlock()

	if n.acceptor == nil {
		return ""
	}
	return n.acceptor.Addr()
}

// State ...
func (n *Node) State() State {
	return n.getState()
}

// Done is closed once the node is disconnected.
func (n *Node) Done() <-chan struct{} {
	return n.ctx.Done()
}

// GetStats returns a summary of the node's activity.
func (n *Node) GetStats() map[string]string {
	n.tableLock.Lock()
	numPeers := len(n.peers)
	inflight := len(n.inflight)
	n.tableLock.Unlock()

	n.controlLock.Lock()
	handlers := 0
	dispatching := false
	if n.dispatcher != nil {
		handlers = n.dispatcher.Len()
		dispatching = n.dispatcher.IsOpen()
	}
	player := ""
	if n.ntc != nil {
		player = n.ntc.LocalPlayerName()
	}
	uptime := time.Duration(0)
	if !n.start.IsZero() {
		uptime = time.Since(n.start)
	}
	n.controlLock.Unlock()

	s := map[string]string{
		"state":             n.getState().String(),
		"player":            player,
		"addr":              n.Addr(),
		"revision":          strconv.FormatInt(n.Revision(), 10),
		"num_players":       strconv.Itoa(n.roster.Len()),
		"num_peers":         strconv.Itoa(numPeers),
		"handlers":          strconv.Itoa(handlers),
		"dispatching":       strconv.FormatBool(dispatching),
		"inflight":          strconv.Itoa(inflight),
		"mutations_applied": strconv.FormatInt(atomic.LoadInt64(&n.mutationsApplied), 10),
		"proposals_sent":    strconv.FormatInt(atomic.LoadInt64(&n.proposalsSent), 10),
		"snapshots_sent":    strconv.FormatInt(atomic.LoadInt64(&n.snapshotsSent), 10),
		"snapshots_loaded":  strconv.FormatInt(atomic.LoadInt64(&n.snapshotsLoaded), 10),
		"resyncs_served":    strconv.FormatInt(atomic.LoadInt64(&n.resyncsServed), 10),
		"uptime":            uptime.Round(time.Second).String(),
	}
	return s
}

package node

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/net"
	"github.com/mosaicnetworks/tablenet/src/session"
	"github.com/mosaicnetworks/tablenet/src/table"
)

// clientDelegate keeps a replica of the host's table. Local mutations are
// applied optimistically and proposed to the host; the host's broadcasts are
// applied in revision order. Whenever the replica can no longer tell that it
// matches the host, it asks for the missing revisions or for a snapshot.
type clientDelegate struct {
	node *Node
}

func (d *clientDelegate) Admit(h *session.Handler) error {
	return cm.NewIllegalStateError("Admit", "client handler")
}

func (d *clientDelegate) OnAuthenticated(h *session.Handler) error {
	n := d.node

	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	n.server = h
	n.logger.WithField("remote", h.Handle().RemoteAddr()).Debug("Authenticated, requesting snapshot")
	return n.requestSnapshotLocked(h)
}

func (d *clientDelegate) OnMessage(h *session.Handler, msg net.Message) error {
	n := d.node

	switch m := msg.(type) {
	case *net.SnapshotResponse:
		return n.clientSnapshot(m)
	case *net.MutationBroadcast:
		return n.clientBroadcast(h, m)
	case *net.MutationAck:
		return n.clientAck(h, m)
	case *net.PlayerJoined:
		// already listed by the snapshot that raced this notice
		if n.roster.Contains(m.Name) {
			return nil
		}
		if err := n.roster.Add(m.Name, nil); err != nil {
			n.logger.WithError(err).Debug("PlayerJoined")
		}
		return nil
	case *net.PlayerLeft:
		n.roster.Remove(m.Name, nil)
		return nil
	default:
		return cm.NetworkTableErrorf(cm.ProtocolError, "client", "unexpected %s", msg.Kind())
	}
}

func (d *clientDelegate) OnClosed(h *session.Handler, err error) {
	n := d.node

	if err == nil {
		err = cm.NetworkTableErrorf(cm.TransportError, "Join", "connection closed")
	}
	n.joined(err)

	if n.getState() == Joined {
		n.logger.WithError(err).Warn("Lost connection to host")
	}

	// Disconnect waits for the dispatcher, which waits for this call.
	go n.Disconnect()
}

func (n *Node) requestSnapshotLocked(h *session.Handler) error {
	if n.awaitingSnapshot {
		return nil
	}
	n.awaitingSnapshot = true
	return h.Send(net.NewSnapshotRequest())
}

func (n *Node) requestResyncLocked(h *session.Handler) error {
	req, err := net.NewResyncRequest(n.model.RevisionNumber())
	if err != nil {
		return err
	}
	n.resyncRequested = true
	return h.Send(req)
}

func (n *Node) clientApply(m table.Mutation) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	if n.server == nil {
		return cm.NewIllegalStateError("Apply", "not connected")
	}

	base := n.model.RevisionNumber()
	rev, err := n.applyLocked(m)
	if err != nil {
		return err
	}

	p, err := net.NewMutationProposal(base, m)
	if err != nil {
		return err
	}
	if err := n.server.Send(p); err != nil {
		return err
	}

	n.inflight = append(n.inflight, rev)
	atomic.AddInt64(&n.proposalsSent, 1)

	return nil
}

func (n *Node) clientSnapshot(resp *net.SnapshotResponse) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	if err := n.restoreLocked(&resp.Snapshot); err != nil {
		return cm.NewNetworkTableError(cm.ProtocolError, "SnapshotResponse", err)
	}

	n.synced = true
	n.awaitingSnapshot = false
	n.resyncRequested = false
	n.inflight = nil
	n.roster.Reset(resp.Roster)

	n.logger.WithFields(logrus.Fields{
		"revision": resp.Snapshot.Revision,
		"players":  len(resp.Roster),
	}).Debug("Restored snapshot")

	n.publish(Update{Revision: resp.Snapshot.Revision})
	n.joined(nil)

	return nil
}

func (n *Node) clientBroadcast(h *session.Handler, bc *net.MutationBroadcast) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	if !n.synced || n.awaitingSnapshot {
		return nil
	}

	// The local table holds unacknowledged proposals, so it cannot take the
	// host's revisions on top.
	if len(n.inflight) > 0 {
		return n.requestSnapshotLocked(h)
	}

	local := n.model.RevisionNumber()

	switch {
	case bc.Revision == local+1:
		if _, err := n.applyLocked(bc.Mutation); err != nil {
			n.logger.WithError(err).WithField("revision", bc.Revision).Warn("Failed to apply broadcast")
			return n.requestSnapshotLocked(h)
		}
		n.resyncRequested = false
		n.publish(Update{Revision: bc.Revision, Origin: bc.Origin, Mutation: &bc.Mutation})
		return nil
	case bc.Revision <= local:
		return nil
	default:
		if n.resyncRequested {
			return nil
		}
		n.logger.WithFields(logrus.Fields{
			"local":    local,
			"received": bc.Revision,
		}).Debug("Missed revisions, requesting resync")
		return n.requestResyncLocked(h)
	}
}

func (n *Node) clientAck(h *session.Handler, ack *net.MutationAck) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	if len(n.inflight) == 0 {
		if n.awaitingSnapshot {
			return nil
		}
		// The proposal was made before the last snapshot was restored, which
		// does not include it.
		return n.requestResyncLocked(h)
	}

	expected := n.inflight[0]
	n.inflight = n.inflight[1:]

	if ack.Accepted && ack.Revision == expected {
		return nil
	}

	n.logger.WithFields(logrus.Fields{
		"expected": expected,
		"revision": ack.Revision,
		"accepted": ack.Accepted,
	}).Debug("Proposal reordered by host, requesting snapshot")

	return n.requestSnapshotLocked(h)
}

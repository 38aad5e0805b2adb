package node

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/net"
	"github.com/mosaicnetworks/tablenet/src/session"
	"github.com/mosaicnetworks/tablenet/src/table"
)

// hostDelegate keeps the host's table authoritative. Every change is applied,
// journaled and sent to the peers under tableLock, so all peers observe the
// same order of revisions.
type hostDelegate struct {
	node *Node
}

func (d *hostDelegate) Admit(h *session.Handler) error {
	return d.node.roster.Add(h.PlayerName(), h)
}

func (d *hostDelegate) OnAuthenticated(h *session.Handler) error {
	n := d.node

	joined, err := net.NewPlayerJoined(h.PlayerName())
	if err != nil {
		return err
	}

	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	n.peers[h] = struct{}{}
	n.broadcastLocked(joined, h)

	n.logger.WithFields(logrus.Fields{
		"player": h.PlayerName(),
		"remote": h.Handle().RemoteAddr(),
	}).Info("Player joined")

	return nil
}

func (d *hostDelegate) OnMessage(h *session.Handler, msg net.Message) error {
	n := d.node

	switch m := msg.(type) {
	case *net.SnapshotRequest:
		return n.sendSnapshot(h)
	case *net.MutationProposal:
		return n.hostProposal(h, m)
	case *net.ResyncRequest:
		return n.hostResync(h, m.FromRevision)
	default:
		return cm.NetworkTableErrorf(cm.ProtocolError, "host", "unexpected %s", msg.Kind())
	}
}

func (d *hostDelegate) OnClosed(h *session.Handler, err error) {
	n := d.node
	name := h.PlayerName()

	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	_, wasPeer := n.peers[h]
	delete(n.peers, h)

	if name == "" || !n.roster.Remove(name, h) {
		return
	}

	n.logger.WithError(err).WithField("player", name).Info("Player left")

	if !wasPeer {
		return
	}
	left, lerr := net.NewPlayerLeft(name)
	if lerr != nil {
		n.logger.WithError(lerr).Error("PlayerLeft")
		return
	}
	n.broadcastLocked(left, nil)
}

// broadcastLocked sends msg to every authenticated peer but except.
// tableLock must be held.
func (n *Node) broadcastLocked(msg net.Message, except *session.Handler) {
	for p := range n.peers {
		if p == except {
			continue
		}
		if err := p.Send(msg); err != nil {
			n.logger.WithError(err).WithField("player", p.PlayerName()).Debug("Broadcast")
		}
	}
}

// commitLocked applies m to the host table, records it, and broadcasts it to
// every peer but origin. tableLock must be held.
func (n *Node) commitLocked(m table.Mutation, originName string, origin *session.Handler) (int64, error) {
	rev, err := n.applyLocked(m)
	if err != nil {
		return rev, err
	}

	entry := table.Entry{Revision: rev, Origin: originName, Mutation: m}
	if jerr := n.journal.Append(entry); jerr != nil {
		n.logger.WithError(jerr).WithField("revision", rev).Warn("Failed to journal mutation")
	}

	bc, err := net.NewMutationBroadcast(rev, originName, m)
	if err != nil {
		return rev, err
	}
	n.broadcastLocked(bc, origin)

	return rev, nil
}

func (n *Node) hostApply(m table.Mutation) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	_, err := n.commitLocked(m, n.ntc.LocalPlayerName(), nil)
	return err
}

func (n *Node) hostProposal(h *session.Handler, p *net.MutationProposal) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	before := n.model.RevisionNumber()

	rev, err := n.commitLocked(p.Mutation, h.PlayerName(), h)
	if err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"player":   h.PlayerName(),
			"mutation": p.Mutation.String(),
		}).Debug("Rejected proposal")

		nack, nerr := net.NewMutationAck(before, false)
		if nerr != nil {
			return nerr
		}
		return h.Send(nack)
	}

	n.publish(Update{Revision: rev, Origin: h.PlayerName(), Mutation: &p.Mutation})

	// The proposal only holds as-is if the client had seen every revision.
	ack, err := net.NewMutationAck(rev, p.BaseRevision == before)
	if err != nil {
		return err
	}
	return h.Send(ack)
}

// sendSnapshot sends the current table and roster to h.
func (n *Node) sendSnapshot(h *session.Handler) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()
	return n.sendSnapshotLocked(h)
}

func (n *Node) sendSnapshotLocked(h *session.Handler) error {
	resp, err := net.NewSnapshotResponse(n.model.Snapshot(), n.roster.Names())
	if err != nil {
		return err
	}
	atomic.AddInt64(&n.snapshotsSent, 1)
	return h.Send(resp)
}

// hostResync replays the journal after from to h when it holds every missing
// revision, and falls back to a snapshot otherwise.
func (n *Node) hostResync(h *session.Handler, from int64) error {
	n.tableLock.Lock()
	defer n.tableLock.Unlock()

	current := n.model.RevisionNumber()

	if from > current {
		return n.sendSnapshotLocked(h)
	}

	entries, err := n.journal.Since(from)
	if err != nil || int64(len(entries)) != current-from {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"player": h.PlayerName(),
			"from":   from,
		}).Debug("Journal does not cover resync, sending snapshot")
		return n.sendSnapshotLocked(h)
	}
	for i, e := range entries {
		if e.Revision != from+int64(i)+1 {
			return n.sendSnapshotLocked(h)
		}
	}

	for _, e := range entries {
		bc, err := net.NewMutationBroadcast(e.Revision, e.Origin, e.Mutation)
		if err != nil {
			return err
		}
		if err := h.Send(bc); err != nil {
			return err
		}
	}
	atomic.AddInt64(&n.resyncsServed, 1)

	return nil
}

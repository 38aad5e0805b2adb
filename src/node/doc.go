// Package node implements a participant of a table network.
//
// A Node either hosts a table or joins the table of a host. The host owns the
// authoritative copy: it applies its own mutations and the proposals of its
// peers in a single order, records them in a journal, and broadcasts them with
// their revision numbers.
//
// A joined node starts from a snapshot of the host's table and then applies
// the host's broadcasts in revision order. Its own mutations are applied
// locally right away and proposed to the host, which acknowledges them with the
// revision it gave them.
//
// Recovery
//
// A client that misses revisions asks the host to replay them from its
// journal (ResyncRequest). When the journal no longer holds them, or when the
// client's optimistic mutations were reordered by the host, the client falls
// back to a full snapshot (SnapshotRequest).
//
// Nodes are single-use: once disconnected, a new Node must be created to host
// or join again.
package node

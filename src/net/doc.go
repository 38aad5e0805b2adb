// Package net implements the Acceptor-Connector transport of a table network.
//
// A Dispatcher owns a set of EventHandlers, one per connection, and delivers
// their events: EventOpen once registered, EventMessage for every message read
// off the connection, EventTick periodically, and EventClosed when the
// connection fails. HandleEvent is never called concurrently for the same
// handler, but different handlers run in parallel.
//
// The host side uses an Acceptor, which listens on the address of a
// config.NetworkTableConfiguration and registers a handler for every accepted
// connection. The client side uses a Connector, which dials the host once and
// registers the handler of the resulting connection. Both are one-shot:
// a second Bind or Connect fails with an IllegalStateError.
//
// Connections are obtained through a StreamLayer. There are two
// implementations:
//
// - TCP: communicating over plain TCP
//
// - Inmem: in-memory pipes used only for testing
//
// Wire format
//
// Every message travels in a frame:
//
//  uint32 big-endian length | uint8 message kind | msgpack body
//
// where the length counts the kind byte and the body. Messages are validated
// by their constructors before being sent and again after being decoded, so a
// handler never sees a malformed message.
package net

// Package session implements the protocol state machine of a table network
// connection.
//
// A Handler drives one connection through the handshake: protocol version
// negotiation, then a challenge-response authentication against the shared
// table password. The host derives a key from the password and a random salt
// with PBKDF2-HMAC-SHA256 and expects the HMAC-SHA256 of a random challenge
// under that key. Once authenticated, every message is handed to a Delegate,
// which implements table replication on top of the session.
//
// Handlers are net.EventHandlers: all their state changes happen inside
// HandleEvent, which the net.Dispatcher never calls concurrently. Only the
// State is stored atomically, so that it can be observed from other
// goroutines.
package session

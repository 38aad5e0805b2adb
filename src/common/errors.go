package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind distinguishes the causes a table network operation can fail with.
// Kinds travel on the wire inside HandshakeFailed messages, so their values
// must never be reordered.
type ErrorKind uint32

const (
	// ConfigurationError is a bad host name, port or player name, detected
	// before any network I/O.
	ConfigurationError ErrorKind = iota
	// TransportError covers bind and connect failures, resets and timeouts.
	TransportError
	// ProtocolError is a malformed or out-of-sequence message.
	ProtocolError
	// UnsupportedProtocolVersion means the peers share no protocol version.
	UnsupportedProtocolVersion
	// AuthenticationFailed means the challenge response did not match.
	AuthenticationFailed
	// DuplicatePlayerName means another player already uses the name.
	DuplicatePlayerName
)

// String ...
func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "CONFIGURATION_ERROR"
	case TransportError:
		return "TRANSPORT_ERROR"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case UnsupportedProtocolVersion:
		return "UNSUPPORTED_PROTOCOL_VERSION"
	case AuthenticationFailed:
		return "AUTHENTICATION_FAILED"
	case DuplicatePlayerName:
		return "DUPLICATE_PLAYER_NAME"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(k))
	}
}

// NetworkTableError is the error returned by every table network operation
// that fails for a reason the caller may want to tell apart.
type NetworkTableError struct {
	kind ErrorKind
	op   string
	err  error
}

// NewNetworkTableError ...
func NewNetworkTableError(kind ErrorKind, op string, err error) NetworkTableError {
	return NetworkTableError{
		kind: kind,
		op:   op,
		err:  err,
	}
}

// NetworkTableErrorf builds a NetworkTableError from a formatted message.
func NetworkTableErrorf(kind ErrorKind, op string, format string, args ...interface{}) NetworkTableError {
	return NewNetworkTableError(kind, op, fmt.Errorf(format, args...))
}

// Kind ...
func (e NetworkTableError) Kind() ErrorKind {
	return e.kind
}

// Error ...
func (e NetworkTableError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.op, e.kind, e.err)
}

// Unwrap returns the underlying error, if any. NetworkTableError deliberately
// has no Cause method so that errors.Cause stops at it.
func (e NetworkTableError) Unwrap() error {
	return e.err
}

// AsNetworkTable finds the NetworkTableError at the root of a chain of
// errors.Wrap calls.
func AsNetworkTable(err error) (NetworkTableError, bool) {
	ntErr, ok := errors.Cause(err).(NetworkTableError)
	return ntErr, ok
}

// IsNetworkTable checks that err is a NetworkTableError of the given kind.
func IsNetworkTable(err error, kind ErrorKind) bool {
	ntErr, ok := AsNetworkTable(err)
	return ok && ntErr.kind == kind
}

// IllegalStateError is returned when an operation is invoked on an object that
// is in the wrong lifecycle state, e.g. binding an acceptor twice.
type IllegalStateError struct {
	op     string
	reason string
}

// NewIllegalStateError ...
func NewIllegalStateError(op, reason string) IllegalStateError {
	return IllegalStateError{
		op:     op,
		reason: reason,
	}
}

// Error ...
func (e IllegalStateError) Error() string {
	return fmt.Sprintf("%s: illegal state: %s", e.op, e.reason)
}

// IsIllegalState ...
func IsIllegalState(err error) bool {
	_, ok := errors.Cause(err).(IllegalStateError)
	return ok
}

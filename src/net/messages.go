package net

import (
	"fmt"
	"strings"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/table"
)

// MessageKind is the tag of a wire message. Values are part of the wire
// format.
type MessageKind uint8

const (
	KindHelloRequest MessageKind = iota + 1
	KindHelloResponse
	KindBeginAuthenticationRequest
	KindBeginAuthenticationResponse
	KindHandshakeFailed
	KindAuthenticationSucceeded
	KindSnapshotRequest
	KindSnapshotResponse
	KindMutationProposal
	KindMutationBroadcast
	KindMutationAck
	KindResyncRequest
	KindPlayerJoined
	KindPlayerLeft
)

// String ...
func (k MessageKind) String() string {
	switch k {
	case KindHelloRequest:
		return "HelloRequest"
	case KindHelloResponse:
		return "HelloResponse"
	case KindBeginAuthenticationRequest:
		return "BeginAuthenticationRequest"
	case KindBeginAuthenticationResponse:
		return "BeginAuthenticationResponse"
	case KindHandshakeFailed:
		return "HandshakeFailed"
	case KindAuthenticationSucceeded:
		return "AuthenticationSucceeded"
	case KindSnapshotRequest:
		return "SnapshotRequest"
	case KindSnapshotResponse:
		return "SnapshotResponse"
	case KindMutationProposal:
		return "MutationProposal"
	case KindMutationBroadcast:
		return "MutationBroadcast"
	case KindMutationAck:
		return "MutationAck"
	case KindResyncRequest:
		return "ResyncRequest"
	case KindPlayerJoined:
		return "PlayerJoined"
	case KindPlayerLeft:
		return "PlayerLeft"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// Message is a validated wire message.
type Message interface {
	Kind() MessageKind
	// Validate checks the fields of the message. Constructors and the codec
	// both call it, so a Message obtained from either is always valid.
	Validate() error
}

// newMessage returns an empty message of kind k, to decode into.
func newMessage(k MessageKind) (Message, error) {
	switch k {
	case KindHelloRequest:
		return &HelloRequest{}, nil
	case KindHelloResponse:
		return &HelloResponse{}, nil
	case KindBeginAuthenticationRequest:
		return &BeginAuthenticationRequest{}, nil
	case KindBeginAuthenticationResponse:
		return &BeginAuthenticationResponse{}, nil
	case KindHandshakeFailed:
		return &HandshakeFailed{}, nil
	case KindAuthenticationSucceeded:
		return &AuthenticationSucceeded{}, nil
	case KindSnapshotRequest:
		return &SnapshotRequest{}, nil
	case KindSnapshotResponse:
		return &SnapshotResponse{}, nil
	case KindMutationProposal:
		return &MutationProposal{}, nil
	case KindMutationBroadcast:
		return &MutationBroadcast{}, nil
	case KindMutationAck:
		return &MutationAck{}, nil
	case KindResyncRequest:
		return &ResyncRequest{}, nil
	case KindPlayerJoined:
		return &PlayerJoined{}, nil
	case KindPlayerLeft:
		return &PlayerLeft{}, nil
	default:
		return nil, invalidMessage("decode", "unknown message kind %d", uint8(k))
	}
}

func invalidMessage(op string, format string, args ...interface{}) error {
	return cm.NetworkTableErrorf(cm.ProtocolError, op, format, args...)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func validPlayerName(name string) bool {
	return strings.TrimSpace(name) != ""
}

/*******************************************************************************
Handshake
*******************************************************************************/

// HelloRequest opens the handshake with the highest protocol version the
// client supports.
type HelloRequest struct {
	SupportedProtocolVersion int32 `codec:"version"`
}

// NewHelloRequest ...
func NewHelloRequest(supportedProtocolVersion int32) (*HelloRequest, error) {
	m := &HelloRequest{SupportedProtocolVersion: supportedProtocolVersion}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *HelloRequest) Kind() MessageKind { return KindHelloRequest }

// Validate implements Message.
func (m *HelloRequest) Validate() error {
	if m.SupportedProtocolVersion < 0 {
		return invalidMessage("NewHelloRequest", "negative protocol version %d", m.SupportedProtocolVersion)
	}
	return nil
}

// HelloResponse carries the protocol version chosen by the host.
type HelloResponse struct {
	ChosenProtocolVersion int32 `codec:"version"`
}

// NewHelloResponse ...
func NewHelloResponse(chosenProtocolVersion int32) (*HelloResponse, error) {
	m := &HelloResponse{ChosenProtocolVersion: chosenProtocolVersion}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *HelloResponse) Kind() MessageKind { return KindHelloResponse }

// Validate implements Message.
func (m *HelloResponse) Validate() error {
	if m.ChosenProtocolVersion < 0 {
		return invalidMessage("NewHelloResponse", "negative protocol version %d", m.ChosenProtocolVersion)
	}
	return nil
}

// BeginAuthenticationRequest is the host's challenge.
type BeginAuthenticationRequest struct {
	Challenge []byte `codec:"challenge"`
	Salt      []byte `codec:"salt"`
}

// NewBeginAuthenticationRequest copies challenge and salt.
func NewBeginAuthenticationRequest(challenge, salt []byte) (*BeginAuthenticationRequest, error) {
	m := &BeginAuthenticationRequest{
		Challenge: copyBytes(challenge),
		Salt:      copyBytes(salt),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *BeginAuthenticationRequest) Kind() MessageKind { return KindBeginAuthenticationRequest }

// Validate implements Message.
func (m *BeginAuthenticationRequest) Validate() error {
	if len(m.Challenge) == 0 {
		return invalidMessage("NewBeginAuthenticationRequest", "empty challenge")
	}
	if len(m.Salt) == 0 {
		return invalidMessage("NewBeginAuthenticationRequest", "empty salt")
	}
	return nil
}

// BeginAuthenticationResponse is the client's answer to the challenge, and
// the name it wants to play under.
type BeginAuthenticationResponse struct {
	Response   []byte `codec:"response"`
	PlayerName string `codec:"player"`
}

// NewBeginAuthenticationResponse copies response.
func NewBeginAuthenticationResponse(response []byte, playerName string) (*BeginAuthenticationResponse, error) {
	m := &BeginAuthenticationResponse{
		Response:   copyBytes(response),
		PlayerName: playerName,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *BeginAuthenticationResponse) Kind() MessageKind { return KindBeginAuthenticationResponse }

// Validate implements Message.
func (m *BeginAuthenticationResponse) Validate() error {
	if len(m.Response) == 0 {
		return invalidMessage("NewBeginAuthenticationResponse", "empty response")
	}
	if !validPlayerName(m.PlayerName) {
		return invalidMessage("NewBeginAuthenticationResponse", "empty player name")
	}
	return nil
}

// HandshakeFailed tells the client why the host is closing the connection.
type HandshakeFailed struct {
	ErrorKind cm.ErrorKind `codec:"kind"`
	Reason    string       `codec:"reason"`
}

// NewHandshakeFailed ...
func NewHandshakeFailed(kind cm.ErrorKind, reason string) (*HandshakeFailed, error) {
	m := &HandshakeFailed{ErrorKind: kind, Reason: reason}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *HandshakeFailed) Kind() MessageKind { return KindHandshakeFailed }

// Validate implements Message.
func (m *HandshakeFailed) Validate() error {
	switch m.ErrorKind {
	case cm.TransportError,
		cm.ProtocolError,
		cm.UnsupportedProtocolVersion,
		cm.AuthenticationFailed,
		cm.DuplicatePlayerName:
		return nil
	default:
		return invalidMessage("NewHandshakeFailed", "unexpected error kind %s", m.ErrorKind)
	}
}

// Err converts the failure into the error returned to the client.
func (m *HandshakeFailed) Err() error {
	return cm.NetworkTableErrorf(m.ErrorKind, "handshake", "host refused connection: %s", m.Reason)
}

// AuthenticationSucceeded ends the handshake.
type AuthenticationSucceeded struct {
	PlayerName string `codec:"player"`
}

// NewAuthenticationSucceeded ...
func NewAuthenticationSucceeded(playerName string) (*AuthenticationSucceeded, error) {
	m := &AuthenticationSucceeded{PlayerName: playerName}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *AuthenticationSucceeded) Kind() MessageKind { return KindAuthenticationSucceeded }

// Validate implements Message.
func (m *AuthenticationSucceeded) Validate() error {
	if !validPlayerName(m.PlayerName) {
		return invalidMessage("NewAuthenticationSucceeded", "empty player name")
	}
	return nil
}

/*******************************************************************************
Table replication
*******************************************************************************/

// SnapshotRequest asks the host for its whole table.
type SnapshotRequest struct{}

// NewSnapshotRequest ...
func NewSnapshotRequest() *SnapshotRequest {
	return &SnapshotRequest{}
}

// Kind implements Message.
func (m *SnapshotRequest) Kind() MessageKind { return KindSnapshotRequest }

// Validate implements Message.
func (m *SnapshotRequest) Validate() error { return nil }

// SnapshotResponse carries the host's table and the current roster.
type SnapshotResponse struct {
	Snapshot table.Snapshot `codec:"snapshot"`
	Roster   []string       `codec:"roster"`
}

// NewSnapshotResponse copies roster.
func NewSnapshotResponse(snapshot *table.Snapshot, roster []string) (*SnapshotResponse, error) {
	if snapshot == nil {
		return nil, invalidMessage("NewSnapshotResponse", "nil snapshot")
	}
	r := make([]string, len(roster))
	copy(r, roster)

	m := &SnapshotResponse{Snapshot: *snapshot, Roster: r}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *SnapshotResponse) Kind() MessageKind { return KindSnapshotResponse }

// Validate implements Message.
func (m *SnapshotResponse) Validate() error {
	if m.Snapshot.Revision < 0 {
		return invalidMessage("NewSnapshotResponse", "negative revision %d", m.Snapshot.Revision)
	}
	if m.Snapshot.Root.ID != table.RootID {
		return invalidMessage("NewSnapshotResponse", "snapshot root is %q", m.Snapshot.Root.ID)
	}
	for _, name := range m.Roster {
		if !validPlayerName(name) {
			return invalidMessage("NewSnapshotResponse", "empty player name in roster")
		}
	}
	return nil
}

// MutationProposal is a mutation a client already applied locally, on top of
// BaseRevision.
type MutationProposal struct {
	BaseRevision int64          `codec:"base"`
	Mutation     table.Mutation `codec:"mutation"`
}

// NewMutationProposal ...
func NewMutationProposal(baseRevision int64, mutation table.Mutation) (*MutationProposal, error) {
	m := &MutationProposal{BaseRevision: baseRevision, Mutation: mutation}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *MutationProposal) Kind() MessageKind { return KindMutationProposal }

// Validate implements Message.
func (m *MutationProposal) Validate() error {
	if m.BaseRevision < 0 {
		return invalidMessage("NewMutationProposal", "negative base revision %d", m.BaseRevision)
	}
	if err := m.Mutation.Validate(); err != nil {
		return invalidMessage("NewMutationProposal", "%v", err)
	}
	return nil
}

// MutationBroadcast is a mutation in the host's order. Revision is the
// revision of the host's table once the mutation is applied.
type MutationBroadcast struct {
	Revision int64          `codec:"revision"`
	Origin   string         `codec:"origin"`
	Mutation table.Mutation `codec:"mutation"`
}

// NewMutationBroadcast ...
func NewMutationBroadcast(revision int64, origin string, mutation table.Mutation) (*MutationBroadcast, error) {
	m := &MutationBroadcast{Revision: revision, Origin: origin, Mutation: mutation}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *MutationBroadcast) Kind() MessageKind { return KindMutationBroadcast }

// Validate implements Message.
func (m *MutationBroadcast) Validate() error {
	if m.Revision < 1 {
		return invalidMessage("NewMutationBroadcast", "revision %d should be at least 1", m.Revision)
	}
	if !validPlayerName(m.Origin) {
		return invalidMessage("NewMutationBroadcast", "empty origin")
	}
	if err := m.Mutation.Validate(); err != nil {
		return invalidMessage("NewMutationBroadcast", "%v", err)
	}
	return nil
}

// MutationAck tells the origin of a proposal at which revision the host
// applied it. Accepted is false when the proposal was based on a stale
// revision, in which case the origin must resynchronize.
type MutationAck struct {
	Revision int64 `codec:"revision"`
	Accepted bool  `codec:"accepted"`
}

// NewMutationAck ...
func NewMutationAck(revision int64, accepted bool) (*MutationAck, error) {
	m := &MutationAck{Revision: revision, Accepted: accepted}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *MutationAck) Kind() MessageKind { return KindMutationAck }

// Validate implements Message.
func (m *MutationAck) Validate() error {
	if m.Revision < 0 {
		return invalidMessage("NewMutationAck", "negative revision %d", m.Revision)
	}
	return nil
}

// ResyncRequest asks the host to replay every mutation after FromRevision.
type ResyncRequest struct {
	FromRevision int64 `codec:"from"`
}

// NewResyncRequest ...
func NewResyncRequest(fromRevision int64) (*ResyncRequest, error) {
	m := &ResyncRequest{FromRevision: fromRevision}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *ResyncRequest) Kind() MessageKind { return KindResyncRequest }

// Validate implements Message.
func (m *ResyncRequest) Validate() error {
	if m.FromRevision < 0 {
		return invalidMessage("NewResyncRequest", "negative revision %d", m.FromRevision)
	}
	return nil
}

/*******************************************************************************
Roster
*******************************************************************************/

// PlayerJoined ...
type PlayerJoined struct {
	Name string `codec:"name"`
}

// NewPlayerJoined ...
func NewPlayerJoined(name string) (*PlayerJoined, error) {
	m := &PlayerJoined{Name: name}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *PlayerJoined) Kind() MessageKind { return KindPlayerJoined }

// Validate implements Message.
func (m *PlayerJoined) Validate() error {
	if !validPlayerName(m.Name) {
		return invalidMessage("NewPlayerJoined", "empty player name")
	}
	return nil
}

// PlayerLeft ...
type PlayerLeft struct {
	Name string `codec:"name"`
}

// NewPlayerLeft ...
func NewPlayerLeft(name string) (*PlayerLeft, error) {
	m := &PlayerLeft{Name: name}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Message.
func (m *PlayerLeft) Kind() MessageKind { return KindPlayerLeft }

// Validate implements Message.
func (m *PlayerLeft) Validate() error {
	if !validPlayerName(m.Name) {
		return invalidMessage("NewPlayerLeft", "empty player name")
	}
	return nil
}

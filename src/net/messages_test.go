package net

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/ugorji/go/codec"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/table"
)

func TestHelloVersions(t *testing.T) {
	for _, v := range []int32{-1, -2, math.MinInt32} {
		if _, err := NewHelloRequest(v); !cm.IsNetworkTable(err, cm.ProtocolError) {
			t.Fatalf("HelloRequest(%d) should fail with a protocol error, got %v", v, err)
		}
		if _, err := NewHelloResponse(v); !cm.IsNetworkTable(err, cm.ProtocolError) {
			t.Fatalf("HelloResponse(%d) should fail with a protocol error, got %v", v, err)
		}
	}

	for _, v := range []int32{0, 1, 42, math.MaxInt32} {
		req, err := NewHelloRequest(v)
		if err != nil {
			t.Fatalf("HelloRequest(%d): %v", v, err)
		}
		if req.SupportedProtocolVersion != v {
			t.Fatalf("version should be %d, not %d", v, req.SupportedProtocolVersion)
		}
		if _, err := NewHelloResponse(v); err != nil {
			t.Fatalf("HelloResponse(%d): %v", v, err)
		}
	}
}

func TestBeginAuthenticationValidation(t *testing.T) {
	some := []byte{1, 2, 3}

	cases := []struct {
		challenge, salt []byte
	}{
		{nil, some},
		{[]byte{}, some},
		{some, nil},
		{some, []byte{}},
		{nil, nil},
	}
	for i, c := range cases {
		if _, err := NewBeginAuthenticationRequest(c.challenge, c.salt); !cm.IsNetworkTable(err, cm.ProtocolError) {
			t.Fatalf("case %d: expected a protocol error, got %v", i, err)
		}
	}

	if _, err := NewBeginAuthenticationResponse(nil, "alice"); !cm.IsNetworkTable(err, cm.ProtocolError) {
		t.Fatalf("empty response should fail, got %v", err)
	}
	if _, err := NewBeginAuthenticationResponse([]byte{}, "alice"); !cm.IsNetworkTable(err, cm.ProtocolError) {
		t.Fatalf("empty response should fail, got %v", err)
	}
	if _, err := NewBeginAuthenticationResponse(some, ""); !cm.IsNetworkTable(err, cm.ProtocolError) {
		t.Fatalf("empty player name should fail, got %v", err)
	}

	challenge := []byte{9, 9, 9}
	req, err := NewBeginAuthenticationRequest(challenge, some)
	if err != nil {
		t.Fatal(err)
	}
	challenge[0] = 0
	if req.Challenge[0] != 9 {
		t.Fatalf("request should hold a copy of the challenge")
	}
}

func TestReplicationValidation(t *testing.T) {
	m := table.AddComponent(table.RootID, "ace", "card", table.Point{})

	if _, err := NewMutationProposal(-1, m); err == nil {
		t.Fatalf("negative base revision should fail")
	}
	if _, err := NewMutationProposal(0, table.Mutation{}); err == nil {
		t.Fatalf("invalid mutation should fail")
	}
	if _, err := NewMutationBroadcast(0, "alice", m); err == nil {
		t.Fatalf("revision 0 broadcast should fail")
	}
	if _, err := NewMutationBroadcast(1, "", m); err == nil {
		t.Fatalf("broadcast without origin should fail")
	}
	if _, err := NewResyncRequest(-1); err == nil {
		t.Fatalf("negative resync revision should fail")
	}
	if _, err := NewHandshakeFailed(cm.ConfigurationError, "nope"); err == nil {
		t.Fatalf("configuration errors are not sent on the wire")
	}
	if _, err := NewSnapshotResponse(nil, nil); err == nil {
		t.Fatalf("nil snapshot should fail")
	}
	if _, err := NewPlayerJoined(" "); err == nil {
		t.Fatalf("blank player name should fail")
	}
}

func mustMessage(t *testing.T, m Message, err error) Message {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCodecRoundTrip(t *testing.T) {
	tb := table.New(table.NewStandardRegistry())
	if err := tb.Apply(table.AddComponent(table.RootID, "deck", "deck", table.Point{X: 1, Y: 2})); err != nil {
		t.Fatal(err)
	}
	if err := tb.Apply(table.AddComponent("deck", "ace", "card", table.Point{})); err != nil {
		t.Fatal(err)
	}

	move := table.MoveComponent("ace", table.RootID, table.Point{X: -3, Y: 4})

	hello, err := NewHelloRequest(1)
	helloResp, err2 := NewHelloResponse(1)
	auth, err3 := NewBeginAuthenticationRequest([]byte("challenge"), []byte("salt"))
	authResp, err4 := NewBeginAuthenticationResponse([]byte("response"), "alice")
	failed, err5 := NewHandshakeFailed(cm.DuplicatePlayerName, "alice is taken")
	snap, err6 := NewSnapshotResponse(tb.Snapshot(), []string{"host", "alice"})
	proposal, err7 := NewMutationProposal(2, move)
	broadcast, err8 := NewMutationBroadcast(3, "alice", move)
	ack, err9 := NewMutationAck(3, false)

	msgs := []Message{
		mustMessage(t, hello, err),
		mustMessage(t, helloResp, err2),
		mustMessage(t, auth, err3),
		mustMessage(t, authResp, err4),
		mustMessage(t, failed, err5),
		mustMessage(t, snap, err6),
		mustMessage(t, proposal, err7),
		mustMessage(t, broadcast, err8),
		mustMessage(t, ack, err9),
		NewSnapshotRequest(),
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		if err := WriteMessage(&buf, m); err != nil {
			t.Fatalf("writing %s: %v", m.Kind(), err)
		}
	}

	for _, m := range msgs {
		out, err := ReadMessage(&buf, DefaultMaxFrameSize)
		if err != nil {
			t.Fatalf("reading %s: %v", m.Kind(), err)
		}
		if !reflect.DeepEqual(m, out) {
			t.Fatalf("message mismatch: %#v %#v", m, out)
		}
	}

	if _, err := ReadMessage(&buf, DefaultMaxFrameSize); !cm.IsNetworkTable(err, cm.TransportError) {
		t.Fatalf("reading past the end should be a transport error, got %v", err)
	}
}

func rawFrame(t *testing.T, kind MessageKind, body interface{}) []byte {
	var b bytes.Buffer
	b.Write(make([]byte, headerSize))
	b.WriteByte(byte(kind))
	if err := codec.NewEncoder(&b, msgpackHandle).Encode(body); err != nil {
		t.Fatal(err)
	}
	frame := b.Bytes()
	binary.BigEndian.PutUint32(frame, uint32(len(frame)-headerSize))
	return frame
}

func TestReadMessageRejects(t *testing.T) {
	hello, _ := NewHelloRequest(1)
	good, err := EncodeFrame(hello, 0)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		frame []byte
		max   int
		kind  cm.ErrorKind
	}{
		"oversized":      {good, 2, cm.ProtocolError},
		"unknown kind":   {rawFrame(t, 200, &HelloRequest{1}), 0, cm.ProtocolError},
		"negative hello": {rawFrame(t, KindHelloRequest, &HelloRequest{-1}), 0, cm.ProtocolError},
		"empty salt":     {rawFrame(t, KindBeginAuthenticationRequest, &BeginAuthenticationRequest{Challenge: []byte{1}}), 0, cm.ProtocolError},
		"empty frame":    {[]byte{0, 0, 0, 0}, 0, cm.ProtocolError},
		"truncated":      {good[:len(good)-1], 0, cm.TransportError},
	}

	for name, c := range cases {
		_, err := ReadMessage(bytes.NewReader(c.frame), c.max)
		if !cm.IsNetworkTable(err, c.kind) {
			t.Fatalf("%s: expected %s, got %v", name, c.kind, err)
		}
	}
}

func TestEncodeFrameLimit(t *testing.T) {
	hello, _ := NewHelloRequest(1)

	if _, err := EncodeFrame(hello, 2); !cm.IsNetworkTable(err, cm.ProtocolError) {
		t.Fatalf("frame over the limit should fail with a protocol error, got %v", err)
	}

	frame, err := EncodeFrame(hello, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := EncodeFrame(hello, len(frame)-headerSize); err != nil {
		t.Fatalf("frame at the limit should encode, got %v", err)
	}
}

package net

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	cm "github.com/mosaicnetworks/tablenet/src/common"
)

// DefaultMaxFrameSize is the largest frame accepted when no other limit is
// configured.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// frame header: big-endian payload length, then the message kind. The length
// counts the kind byte and the msgpack body.
const headerSize = 4

func newMsgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	mh.RawToString = false
	return mh
}

var msgpackHandle = newMsgpackHandle()

// EncodeFrame validates msg and returns its wire frame. Messages whose
// payload would exceed maxFrameSize are rejected with a ProtocolError, the
// same limit ReadMessage enforces on the receiving side.
func EncodeFrame(msg Message, maxFrameSize int) ([]byte, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if msg == nil {
		return nil, invalidMessage("encode", "nil message")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	b := new(bytes.Buffer)
	b.Write(make([]byte, headerSize))
	b.WriteByte(byte(msg.Kind()))

	enc := codec.NewEncoder(b, msgpackHandle)
	if err := enc.Encode(msg); err != nil {
		return nil, cm.NewNetworkTableError(cm.ProtocolError, "encode", err)
	}

	frame := b.Bytes()
	if size := len(frame) - headerSize; size > maxFrameSize {
		return nil, invalidMessage("encode", "%s frame of %d bytes exceeds limit of %d", msg.Kind(), size, maxFrameSize)
	}
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(frame)-headerSize))

	return frame, nil
}

// WriteMessage writes the frame of msg to w.
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := EncodeFrame(msg, DefaultMaxFrameSize)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return cm.NewNetworkTableError(cm.TransportError, "write", err)
	}
	return nil
}

// ReadMessage reads one frame from r and returns the validated message it
// carries. Frames larger than maxFrameSize are rejected without being read.
// I/O failures, io.EOF included, are TransportErrors; anything wrong with the
// frame itself is a ProtocolError.
func ReadMessage(r io.Reader, maxFrameSize int) (Message, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, cm.NewNetworkTableError(cm.TransportError, "read", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, invalidMessage("read", "empty frame")
	}
	if uint64(size) > uint64(maxFrameSize) {
		return nil, invalidMessage("read", "frame of %d bytes exceeds limit of %d", size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, cm.NewNetworkTableError(cm.TransportError, "read", err)
	}

	return DecodePayload(MessageKind(payload[0]), payload[1:])
}

// DecodePayload decodes and validates the body of a frame of kind k.
func DecodePayload(k MessageKind, body []byte) (Message, error) {
	msg, err := newMessage(k)
	if err != nil {
		return nil, err
	}

	dec := codec.NewDecoderBytes(body, msgpackHandle)
	if err := dec.Decode(msg); err != nil {
		return nil, cm.NewNetworkTableError(cm.ProtocolError, "decode",
			errors.Wrapf(err, "decoding %s", k))
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

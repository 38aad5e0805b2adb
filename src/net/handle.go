package net

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
)

const (
	// DefaultOutboxSize is the number of frames a Handle queues before it
	// gives up on a slow peer.
	DefaultOutboxSize = 256
	// DefaultWriteTimeout bounds every frame write.
	DefaultWriteTimeout = 5 * time.Second

	readBufSize = 64 * 1024
)

// HandleOptions ...
type HandleOptions struct {
	MaxFrameSize int
	OutboxSize   int
	WriteTimeout time.Duration
}

func (o HandleOptions) withDefaults() HandleOptions {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Handle is the transport handle of one connection. Outgoing frames go
// through a bounded queue drained by a writer goroutine, so Send never blocks.
// Incoming frames are read by a single reader goroutine, started on first
// use, which hands each message over only when someone takes it. A consumer
// that stops listening therefore never swallows a frame meant for the next.
type Handle struct {
	id     string
	conn   net.Conn
	r      *bufio.Reader
	opts   HandleOptions
	logger *logrus.Entry

	readOnce   sync.Once
	inCh       chan Message
	readDoneCh chan struct{}
	readErr    error

	outCh     chan []byte
	closingCh chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	errLock sync.Mutex
	err     error
}

// NewHandle wraps conn and starts its writer.
func NewHandle(conn net.Conn, opts HandleOptions, logger *logrus.Entry) *Handle {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	opts = opts.withDefaults()
	id := ulid.Make().String()

	h := &Handle{
		id:   id,
		conn: conn,
		r:    bufio.NewReaderSize(conn, readBufSize),
		opts: opts,
		logger: logger.WithFields(logrus.Fields{
			"handle": id,
			"remote": conn.RemoteAddr(),
		}),
		inCh:       make(chan Message),
		readDoneCh: make(chan struct{}),
		outCh:      make(chan []byte, opts.OutboxSize),
		closingCh:  make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	go h.writeLoop()

	return h
}

// ID returns the unique identifier of the handle.
func (h *Handle) ID() string {
	return h.id
}

// RemoteAddr ...
func (h *Handle) RemoteAddr() string {
	return h.conn.RemoteAddr().String()
}

// Send queues msg. It fails if the handle is closed, and closes the handle if
// the queue is full. A message too large for MaxFrameSize is rejected with a
// ProtocolError and leaves the handle open.
func (h *Handle) Send(msg Message) error {
	frame, err := EncodeFrame(msg, h.opts.MaxFrameSize)
	if err != nil {
		return err
	}

	select {
	case <-h.closingCh:
		return cm.NetworkTableErrorf(cm.TransportError, "send", "handle %s closed", h.id)
	default:
	}

	select {
	case h.outCh <- frame:
		return nil
	default:
		err := cm.NetworkTableErrorf(cm.TransportError, "send", "outbound queue of %s full", h.id)
		h.fail(err)
		return err
	}
}

// Receive blocks until the next message arrives. Once reading has failed
// every call returns the error that stopped it.
func (h *Handle) Receive() (Message, error) {
	select {
	case msg := <-h.incoming():
		return msg, nil
	case <-h.readDone():
		return nil, h.readErr
	}
}

// incoming delivers messages one at a time. A message is only read off the
// connection after the previous one was taken.
func (h *Handle) incoming() <-chan Message {
	h.startReader()
	return h.inCh
}

// readDone is closed once reading has stopped; readErr is set by then.
func (h *Handle) readDone() <-chan struct{} {
	h.startReader()
	return h.readDoneCh
}

// Close flushes the frames already queued, within the write timeout, then
// closes the connection. It returns immediately and is idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closingCh)
	})
	return nil
}

// Done is closed once the connection is closed.
func (h *Handle) Done() <-chan struct{} {
	return h.doneCh
}

// Err returns the error that closed the handle, if any.
func (h *Handle) Err() error {
	h.errLock.Lock()
	defer h.errLock.Unlock()
	return h.err
}

func (h *Handle) fail(err error) {
	h.errLock.Lock()
	if h.err == nil {
		h.err = err
	}
	h.errLock.Unlock()

	h.logger.WithError(err).Debug("Closing handle")
	h.Close()
}

func (h *Handle) write(frame []byte) error {
	h.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	if _, err := h.conn.Write(frame); err != nil {
		return cm.NewNetworkTableError(cm.TransportError, "write", err)
	}
	return nil
}

func (h *Handle) startReader() {
	h.readOnce.Do(func() {
		go h.readLoop()
	})
}

func (h *Handle) readLoop() {
	defer close(h.readDoneCh)

	for {
		msg, err := ReadMessage(h.r, h.opts.MaxFrameSize)
		if err != nil {
			h.readErr = err
			return
		}

		select {
		case h.inCh <- msg:
		case <-h.doneCh:
			h.readErr = cm.NetworkTableErrorf(cm.TransportError, "read", "handle %s closed", h.id)
			return
		}
	}
}

func (h *Handle) writeLoop() {
	defer func() {
		h.conn.Close()
		close(h.doneCh)
	}()

	for {
		select {
		case frame := <-h.outCh:
			if err := h.write(frame); err != nil {
				h.fail(err)
				return
			}
		case <-h.closingCh:
			for {
				select {
				case frame := <-h.outCh:
					if err := h.write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

package net

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/tablenet/src/common"
)

const (
	// DefaultInboxSize is the number of events queued per handler before the
	// handler is considered too slow and closed.
	DefaultInboxSize = 256
	// DefaultTickInterval ...
	DefaultTickInterval = 200 * time.Millisecond
)

type dispatcherState int

const (
	dispatcherIdle dispatcherState = iota
	dispatcherOpen
	dispatcherClosed
)

type registration struct {
	handler EventHandler
	inbox   chan Event
	done    chan struct{}
}

type readiness struct {
	reg *registration
	ev  Event
}

// Dispatcher owns a set of EventHandlers and delivers their events. Each
// registered handler gets a poll goroutine, which reads messages off its
// handle, and a serve goroutine, which calls HandleEvent one event at a time.
// A single loop goroutine multiplexes what the poll goroutines read and routes
// it to the bounded inboxes of the handlers; it never waits on one handler.
type Dispatcher struct {
	logger       *logrus.Entry
	inboxSize    int
	tickInterval time.Duration

	mtx      sync.Mutex
	state    dispatcherState
	handlers map[EventHandler]*registration

	readyCh    chan readiness
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewDispatcher ...
func NewDispatcher(inboxSize int, tickInterval time.Duration, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	return &Dispatcher{
		logger:       logger,
		inboxSize:    inboxSize,
		tickInterval: tickInterval,
		handlers:     make(map[EventHandler]*registration),
		readyCh:      make(chan readiness),
		shutdownCh:   make(chan struct{}),
	}
}

// Open starts the dispatch loop. A Dispatcher can only be opened once.
func (d *Dispatcher) Open() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	switch d.state {
	case dispatcherOpen:
		return cm.NewIllegalStateError("Dispatcher.Open", "already open")
	case dispatcherClosed:
		return cm.NewIllegalStateError("Dispatcher.Open", "closed")
	}

	d.state = dispatcherOpen
	d.wg.Add(1)
	go d.loop()

	return nil
}

// IsOpen ...
func (d *Dispatcher) IsOpen() bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.state == dispatcherOpen
}

// RegisterEventHandler adds h to the dispatched set and queues its EventOpen.
// Registering a handler twice is a no-op.
func (d *Dispatcher) RegisterEventHandler(h EventHandler) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.state == dispatcherClosed {
		return cm.NewIllegalStateError("Dispatcher.RegisterEventHandler", "closed")
	}

	if _, ok := d.handlers[h]; ok {
		return nil
	}

	reg := &registration{
		handler: h,
		inbox:   make(chan Event, d.inboxSize),
		done:    make(chan struct{}),
	}
	reg.inbox <- Event{Type: EventOpen}
	d.handlers[h] = reg

	d.wg.Add(1)
	go d.serve(reg)
	go d.poll(reg)

	d.logger.WithField("handle", h.Handle().ID()).Debug("Registered handler")

	return nil
}

// UnregisterEventHandler removes h from the dispatched set. Events still
// queued for h are dropped. Unknown handlers are ignored. It does not close h.
func (d *Dispatcher) UnregisterEventHandler(h EventHandler) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.state == dispatcherClosed {
		return cm.NewIllegalStateError("Dispatcher.UnregisterEventHandler", "closed")
	}

	reg, ok := d.handlers[h]
	if !ok {
		return nil
	}
	delete(d.handlers, h)
	close(reg.done)

	d.logger.WithField("handle", h.Handle().ID()).Debug("Unregistered handler")

	return nil
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return len(d.handlers)
}

// Close stops the dispatch loop and closes every handler still registered.
// It waits for the dispatcher's goroutines, so it must not be called from
// HandleEvent. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.mtx.Lock()
	if d.state == dispatcherClosed {
		d.mtx.Unlock()
		return nil
	}
	d.state = dispatcherClosed
	close(d.shutdownCh)

	regs := make([]*registration, 0, len(d.handlers))
	for _, reg := range d.handlers {
		regs = append(regs, reg)
		close(reg.done)
	}
	d.handlers = make(map[EventHandler]*registration)
	d.mtx.Unlock()

	for _, reg := range regs {
		reg.handler.Close(nil)
	}

	d.wg.Wait()

	d.logger.Debug("Dispatcher closed")

	return nil
}

func (d *Dispatcher) isRegistered(reg *registration) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.handlers[reg.handler] == reg
}

// loop routes readiness events to inboxes and posts ticks.
func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-d.readyCh:
			d.route(r)
		case <-ticker.C:
			d.tick()
		case <-d.shutdownCh:
			return
		}
	}
}

func (d *Dispatcher) route(r readiness) {
	if !d.isRegistered(r.reg) {
		return
	}

	select {
	case r.reg.inbox <- r.ev:
	default:
		err := cm.NetworkTableErrorf(cm.TransportError, "dispatch",
			"handler %s is not keeping up", r.reg.handler.Handle().ID())
		d.logger.WithError(err).Warn("Closing slow handler")
		go r.reg.handler.Close(err)
	}
}

func (d *Dispatcher) tick() {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	for _, reg := range d.handlers {
		select {
		case reg.inbox <- Event{Type: EventTick}:
		default:
		}
	}
}

// poll reads messages off the handle of reg until it fails.
func (d *Dispatcher) poll(reg *registration) {
	h := reg.handler.Handle()

	for {
		var ev Event
		select {
		case msg := <-h.incoming():
			ev = Event{Type: EventMessage, Message: msg}
		case <-h.readDone():
			ev = Event{Type: EventClosed, Err: h.readErr}
		case <-reg.done:
			return
		case <-d.shutdownCh:
			return
		}

		select {
		case d.readyCh <- readiness{reg: reg, ev: ev}:
		case <-reg.done:
			return
		case <-d.shutdownCh:
			return
		}

		if ev.Type == EventClosed {
			return
		}
	}
}

// serve delivers the events of reg, one at a time.
func (d *Dispatcher) serve(reg *registration) {
	defer d.wg.Done()

	h := reg.handler
	for {
		select {
		case ev := <-reg.inbox:
			err := h.HandleEvent(ev)
			if ev.Type == EventClosed && err == nil {
				err = ev.Err
			}
			if err != nil || ev.Type == EventClosed {
				h.Close(err)
			}
		case <-reg.done:
			return
		}
	}
}

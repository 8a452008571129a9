package auditstream

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Subscriber Registry
// ============================================================================

// dispatchItem is one fan-out unit posted by the client's run loop.
type dispatchItem struct {
	notification *Notification
	connected    *bool
	err          error
}

// dispatcher owns handler registration and fan-out. Handlers run on a
// dedicated goroutine in FIFO order so they may call back into the client
// without deadlocking its run loop.
type dispatcher struct {
	log zerolog.Logger

	mu         sync.Mutex
	closed     bool
	backlog    []dispatchItem
	message    map[string]MessageHandler
	connection map[string]ConnectionHandler
	errors     map[string]ErrorHandler

	wake chan struct{}
}

func newDispatcher(log zerolog.Logger) *dispatcher {
	d := &dispatcher{
		log:        log,
		message:    make(map[string]MessageHandler),
		connection: make(map[string]ConnectionHandler),
		errors:     make(map[string]ErrorHandler),
		wake:       make(chan struct{}, 1),
	}
	go d.run()
	return d
}

// run drains the backlog in FIFO order and exits once close has been
// signalled and nothing is left to deliver.
func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		items := d.backlog
		d.backlog = nil
		closed := d.closed
		d.mu.Unlock()

		for _, item := range items {
			d.fanout(item)
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) fanout(item dispatchItem) {
	switch {
	case item.notification != nil:
		for _, h := range d.messageHandlers() {
			d.invoke(func() { h(*item.notification) })
		}
	case item.connected != nil:
		for _, h := range d.connectionHandlers() {
			connected := *item.connected
			d.invoke(func() { h(connected) })
		}
	case item.err != nil:
		for _, h := range d.errorHandlers() {
			err := item.err
			d.invoke(func() { h(err) })
		}
	}
}

// invoke runs one handler, containing any panic so siblings still run.
func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn().Interface("panic", r).Msg("subscriber handler panicked")
		}
	}()
	fn()
}

func (d *dispatcher) messageHandlers() []MessageHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MessageHandler, 0, len(d.message))
	for _, h := range d.message {
		out = append(out, h)
	}
	return out
}

func (d *dispatcher) connectionHandlers() []ConnectionHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ConnectionHandler, 0, len(d.connection))
	for _, h := range d.connection {
		out = append(out, h)
	}
	return out
}

func (d *dispatcher) errorHandlers() []ErrorHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ErrorHandler, 0, len(d.errors))
	for _, h := range d.errors {
		out = append(out, h)
	}
	return out
}

// ----------------------------------------------------------------------------
// Registration

func (d *dispatcher) onMessage(h MessageHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return func() {}
	}
	key := uuid.NewString()
	d.message[key] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.message, key)
	}
}

func (d *dispatcher) onConnection(h ConnectionHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return func() {}
	}
	key := uuid.NewString()
	d.connection[key] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.connection, key)
	}
}

func (d *dispatcher) onError(h ErrorHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return func() {}
	}
	key := uuid.NewString()
	d.errors[key] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.errors, key)
	}
}

// ----------------------------------------------------------------------------
// Emission (called only by the client's run loop)

// emitMessage posts a notification for fan-out. Emission never blocks the
// caller; the backlog is unbounded, so connection transitions and errors are
// never silently lost no matter how slow the handlers are.
func (d *dispatcher) emitMessage(n Notification) {
	d.emit(dispatchItem{notification: &n})
}

func (d *dispatcher) emitConnection(connected bool) {
	d.emit(dispatchItem{connected: &connected})
}

func (d *dispatcher) emitError(err error) {
	d.emit(dispatchItem{err: err})
}

func (d *dispatcher) emit(item dispatchItem) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.backlog = append(d.backlog, item)
	d.mu.Unlock()
	d.signal()
}

// close clears all handler sets and lets the dispatch goroutine exit once
// the backlog drains. It must not wait for that exit: a handler may itself
// be the caller of the Destroy that got us here. Idempotent.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.message = make(map[string]MessageHandler)
	d.connection = make(map[string]ConnectionHandler)
	d.errors = make(map[string]ErrorHandler)
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

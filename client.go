package auditstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Stream Client
// ============================================================================

// ErrReconnectExhausted is reported to error subscribers when automatic
// retries give up. Manual Reconnect remains available afterwards.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second

	eventBuffer = 32
)

type eventKind int

const (
	evDialOK eventKind = iota
	evDialErr
	evRead
	evReadErr
	evHeartbeat
	evRetry
	evSend
	evReconnect
)

// event is one message into the run loop. Transport events carry the epoch
// of the connection attempt they belong to; the loop ignores events from a
// superseded epoch.
type event struct {
	kind  eventKind
	epoch uint64
	conn  Transport
	data  []byte
	err   error
	frame []byte
	reply chan bool
}

// Client is a resilient stream client. All state transitions happen on a
// single run goroutine; public methods communicate with it through the event
// channel, so every method is safe from any goroutine, including from inside
// a subscriber handler.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	disp *dispatcher

	events      chan event
	destroyCh   chan struct{}
	destroyOnce sync.Once
	done        chan struct{}

	// postMu fences event posting against shutdown: posters hold the read
	// lock, shutdown flips destroyed under the write lock before draining,
	// so every accepted event is seen by the drain.
	postMu    sync.RWMutex
	destroyed bool

	// Externally observable snapshot, maintained by the run loop.
	mu       sync.Mutex
	state    ConnectionState
	attempts int
	queued   int
}

// NewClient resolves the config and starts connecting immediately.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	c := &Client{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "auditstream").Logger(),
		events:    make(chan event, eventBuffer),
		destroyCh: make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateDisconnected,
	}
	c.disp = newDispatcher(c.log)
	go c.run()
	return c
}

// ----------------------------------------------------------------------------
// Public surface

// Send stamps the payload with an epoch-millisecond timestamp and writes it
// to the stream. It returns true when the frame went out immediately and
// false when it was queued for the next connection (or the client is
// destroyed). It never fails loudly.
func (c *Client) Send(payload map[string]any) bool {
	frame := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		frame[k] = v
	}
	frame["timestamp"] = time.Now().UnixMilli()

	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping unserializable payload")
		return false
	}

	reply := make(chan bool, 1)
	if !c.post(event{kind: evSend, frame: data, reply: reply}) {
		return false
	}
	select {
	case sent := <-reply:
		return sent
	case <-c.destroyCh:
		return false
	}
}

// OnMessage registers a handler for normalized notifications. The returned
// func unsubscribes; calling it more than once is harmless.
func (c *Client) OnMessage(h MessageHandler) func() {
	return c.disp.onMessage(h)
}

// OnConnection registers a handler for connection transitions: true on open,
// false on close or failure.
func (c *Client) OnConnection(h ConnectionHandler) func() {
	return c.disp.onConnection(h)
}

// OnError registers a handler for informational errors.
func (c *Client) OnError(h ErrorHandler) func() {
	return c.disp.onError(h)
}

// Subscribe registers a handler that only sees notifications of one kind.
func (c *Client) Subscribe(kind NotificationType, h MessageHandler) func() {
	return c.disp.onMessage(func(n Notification) {
		if n.Type == kind {
			h(n)
		}
	})
}

// Status returns the current connection snapshot.
func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionStatus{
		Connected:         c.state == StateConnected,
		ReconnectAttempts: c.attempts,
		QueuedMessages:    c.queued,
	}
}

// State returns the lifecycle state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnect tears the current connection down intentionally and dials again
// after the configured initial delay, with the attempt counter reset. No-op
// once destroyed.
func (c *Client) Reconnect() {
	c.post(event{kind: evReconnect})
}

// Destroy shuts the client down permanently: transport closed with a normal
// closure code, timers cancelled, queue and subscribers cleared. Idempotent
// and safe to call from inside a handler.
func (c *Client) Destroy() {
	c.destroyOnce.Do(func() { close(c.destroyCh) })
	<-c.done
}

// ----------------------------------------------------------------------------
// Run loop

// loopState is owned exclusively by the run goroutine.
type loopState struct {
	conn       Transport
	epoch      uint64
	attempts   int
	queue      *sendQueue
	reconnect  *time.Timer
	heartbeat  *time.Timer
	readCancel context.CancelFunc
}

func (c *Client) run() {
	defer close(c.done)

	lp := &loopState{queue: newSendQueue(c.cfg.QueueCapacity)}
	c.startConnect(lp)

	for {
		select {
		case <-c.destroyCh:
			c.shutdown(lp)
			return
		case ev := <-c.events:
			c.handle(lp, ev)
		}
	}
}

func (c *Client) handle(lp *loopState, ev event) {
	switch ev.kind {
	case evDialOK:
		if ev.epoch != lp.epoch {
			_ = ev.conn.Close(StatusGoingAway, "superseded")
			return
		}
		c.onOpen(lp, ev.conn)

	case evDialErr:
		if ev.epoch != lp.epoch {
			return
		}
		c.log.Debug().Err(ev.err).Msg("dial failed")
		c.disp.emitError(ev.err)
		c.setState(StateDisconnected)
		c.disp.emitConnection(false)
		c.scheduleRetry(lp)

	case evReadErr:
		if ev.epoch != lp.epoch {
			return
		}
		c.log.Debug().Err(ev.err).Msg("connection lost")
		c.disp.emitError(ev.err)
		c.teardown(lp)
		c.scheduleRetry(lp)

	case evRead:
		if ev.epoch != lp.epoch {
			return
		}
		c.handleFrame(lp, ev.data)

	case evHeartbeat:
		if ev.epoch != lp.epoch || lp.conn == nil {
			return
		}
		c.writeControl(lp, "heartbeat")
		c.armHeartbeat(lp)

	case evRetry:
		if ev.epoch == lp.epoch && lp.conn == nil {
			c.startConnect(lp)
		}

	case evSend:
		ev.reply <- c.sendFrame(lp, ev.frame)

	case evReconnect:
		lp.attempts = 0
		c.setAttempts(0)
		stopTimer(lp.reconnect)
		if lp.conn != nil {
			c.teardown(lp)
		} else {
			// A dial may still be in flight; the bump fences its outcome
			// out, so only the timer below leads to a new handshake.
			lp.epoch++
			c.setState(StateDisconnected)
		}
		epoch := lp.epoch
		lp.reconnect = time.AfterFunc(c.cfg.InitialReconnectDelay, func() {
			c.post(event{kind: evRetry, epoch: epoch})
		})
	}
}

// startConnect begins a connection attempt. The dial runs off-loop; its
// outcome comes back as an event tagged with the attempt's epoch.
func (c *Client) startConnect(lp *loopState) {
	lp.epoch++
	epoch := lp.epoch
	c.setState(StateConnecting)
	c.log.Debug().Str("endpoint", c.cfg.Endpoint).Msg("connecting")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		conn, err := c.cfg.Dial(ctx, c.cfg.Endpoint)
		if err != nil {
			c.post(event{kind: evDialErr, epoch: epoch, err: err})
			return
		}
		if !c.post(event{kind: evDialOK, epoch: epoch, conn: conn}) {
			_ = conn.Close(StatusGoingAway, "client destroyed")
		}
	}()
}

func (c *Client) onOpen(lp *loopState, conn Transport) {
	lp.conn = conn
	lp.attempts = 0
	c.setAttempts(0)
	stopTimer(lp.reconnect)
	c.setState(StateConnected)
	c.log.Debug().Msg("connected")

	if lp.queue.len() > 0 {
		sent, err := lp.queue.drainInto(func(frame []byte) error {
			return c.write(lp, frame)
		})
		if err != nil {
			c.log.Warn().Err(err).Int("sent", sent).Msg("queue flush interrupted")
		} else {
			c.log.Debug().Int("sent", sent).Msg("queue flushed")
		}
		c.setQueued(lp)
	}

	c.armHeartbeat(lp)

	ctx, cancel := context.WithCancel(context.Background())
	lp.readCancel = cancel
	go c.readLoop(ctx, conn, lp.epoch)

	c.disp.emitConnection(true)
}

// armHeartbeat replaces the heartbeat timer. The fired event carries the
// epoch it was armed for, so a firing that straddles a teardown cannot start
// a second heartbeat chain on the next connection.
func (c *Client) armHeartbeat(lp *loopState) {
	stopTimer(lp.heartbeat)
	epoch := lp.epoch
	lp.heartbeat = time.AfterFunc(c.cfg.HeartbeatInterval, func() {
		c.post(event{kind: evHeartbeat, epoch: epoch})
	})
}

func (c *Client) readLoop(ctx context.Context, conn Transport, epoch uint64) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.post(event{kind: evReadErr, epoch: epoch, err: err})
			return
		}
		if !c.post(event{kind: evRead, epoch: epoch, data: data}) {
			return
		}
	}
}

func (c *Client) handleFrame(lp *loopState, data []byte) {
	var evt map[string]any
	if err := json.Unmarshal(data, &evt); err != nil {
		c.disp.emitError(fmt.Errorf("malformed event: %w", err))
		return
	}

	// Liveness frames from the peer get answered in kind and go no further.
	switch rawType, _ := evt["type"].(string); rawType {
	case "heartbeat":
		c.writeControl(lp, "heartbeat_ack")
		return
	case "ping":
		c.writeControl(lp, "pong")
		return
	}

	n, err := normalizeEvent(evt)
	if err != nil {
		c.disp.emitError(err)
		return
	}
	if n == nil {
		return
	}

	if err := ValidateNotification(n); err != nil {
		if c.cfg.StrictValidation {
			c.disp.emitError(err)
			return
		}
		c.log.Warn().Err(err).Msg("delivering notification that failed schema check")
	}

	c.disp.emitMessage(*n)
}

func (c *Client) sendFrame(lp *loopState, frame []byte) bool {
	if lp.conn != nil {
		// Frames left over from an interrupted flush go out first; a direct
		// write must not jump the queue.
		if lp.queue.len() > 0 {
			if _, err := lp.queue.drainInto(func(f []byte) error {
				return c.write(lp, f)
			}); err != nil {
				c.log.Warn().Err(err).Msg("queue drain failed, queueing frame")
				c.enqueue(lp, frame)
				return false
			}
		}
		err := c.write(lp, frame)
		if err == nil {
			c.setQueued(lp)
			return true
		}
		c.log.Warn().Err(err).Msg("write failed, queueing frame")
	}
	c.enqueue(lp, frame)
	return false
}

func (c *Client) enqueue(lp *loopState, frame []byte) {
	if lp.queue.push(frame) {
		c.log.Warn().Msg("send queue full, dropped oldest frame")
	}
	c.setQueued(lp)
}

func (c *Client) writeControl(lp *loopState, frameType string) {
	frame, err := json.Marshal(map[string]any{
		"type":      frameType,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	if err := c.write(lp, frame); err != nil {
		c.log.Warn().Err(err).Str("type", frameType).Msg("control write failed")
	}
}

func (c *Client) write(lp *loopState, frame []byte) error {
	if lp.conn == nil {
		return errors.New("not connected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return lp.conn.Write(ctx, frame)
}

// scheduleRetry arms the backoff timer for the next attempt, or gives up
// once the attempt budget is spent. Exhaustion is reported exactly once per
// run of failures; a manual Reconnect starts a fresh run.
func (c *Client) scheduleRetry(lp *loopState) {
	if lp.attempts >= c.cfg.MaxReconnectAttempts {
		c.log.Warn().Int("attempts", lp.attempts).Msg("reconnect attempts exhausted")
		c.disp.emitError(fmt.Errorf("%w: giving up after %d attempts", ErrReconnectExhausted, lp.attempts))
		return
	}
	delay := backoffDelay(c.cfg.ReconnectInterval, c.cfg.MaxReconnectDelay, lp.attempts)
	lp.attempts++
	c.setAttempts(lp.attempts)
	c.log.Debug().Dur("delay", delay).Int("attempt", lp.attempts).Msg("scheduling reconnect")
	stopTimer(lp.reconnect)
	epoch := lp.epoch
	lp.reconnect = time.AfterFunc(delay, func() {
		c.post(event{kind: evRetry, epoch: epoch})
	})
}

// backoffDelay is min(base << attempt, ceiling), guarded against shift
// overflow.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return ceiling
	}
	delay := base << uint(attempt)
	if delay > ceiling || delay <= 0 {
		return ceiling
	}
	return delay
}

// teardown releases the live connection and reports the transition. The
// epoch bump fences out anything the old read goroutine still posts.
func (c *Client) teardown(lp *loopState) {
	stopTimer(lp.heartbeat)
	if lp.readCancel != nil {
		lp.readCancel()
		lp.readCancel = nil
	}
	if lp.conn != nil {
		_ = lp.conn.Close(StatusGoingAway, "reconnecting")
		lp.conn = nil
	}
	lp.epoch++
	c.setState(StateDisconnected)
	c.disp.emitConnection(false)
}

func (c *Client) shutdown(lp *loopState) {
	stopTimer(lp.reconnect)
	stopTimer(lp.heartbeat)
	if lp.readCancel != nil {
		lp.readCancel()
	}
	if lp.conn != nil {
		_ = lp.conn.Close(StatusNormalClosure, "client destroyed")
		lp.conn = nil
	}
	lp.queue.clear()

	c.mu.Lock()
	c.state = StateDestroyed
	c.queued = 0
	c.mu.Unlock()

	c.postMu.Lock()
	c.destroyed = true
	c.postMu.Unlock()

	c.drainEvents()
	c.disp.close()
	c.log.Debug().Msg("destroyed")
}

// drainEvents empties the channel so in-flight dials and sends are not left
// hanging with resources attached.
func (c *Client) drainEvents() {
	for {
		select {
		case ev := <-c.events:
			if ev.conn != nil {
				_ = ev.conn.Close(StatusGoingAway, "client destroyed")
			}
			if ev.reply != nil {
				ev.reply <- false
			}
		default:
			return
		}
	}
}

// post delivers an event to the run loop, reporting false once the client is
// destroyed. A false return means the caller still owns whatever the event
// carried; on true, shutdown's drain takes ownership of anything the loop
// never got to.
func (c *Client) post(ev event) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.destroyed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.destroyCh:
		return false
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// ----------------------------------------------------------------------------
// Snapshot maintenance

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setAttempts(n int) {
	c.mu.Lock()
	c.attempts = n
	c.mu.Unlock()
}

func (c *Client) setQueued(lp *loopState) {
	c.mu.Lock()
	c.queued = lp.queue.len()
	c.mu.Unlock()
}

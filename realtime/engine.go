// Package realtime maintains one persistent connection to a telemetry
// server and multiplexes logical parameter subscriptions across it.
//
// The engine is a small finite state machine (Disconnected, Connecting,
// Connected) whose state is owned by a single event loop: every mutation
// of the connection, the callback mapping, and the pending command queue
// happens inside dispatch, driven by events from public API calls, the
// connection read pump, and the reconnect timer. Transport failures are
// never surfaced to callers; the engine reconnects forever on a fixed
// backoff schedule and replays the desired subscription set on every
// reconnect.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/groundlink/errors"
	"github.com/c360/groundlink/health"
	"github.com/c360/groundlink/identifier"
	"github.com/c360/groundlink/metric"
)

// State is the engine's connection state.
type State int32

// Connection states. There is no terminal state: the engine retries
// until stopped.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DefaultBackoffSchedule is the fixed sequence of waits between
// reconnect attempts. Each consecutive failure advances one step; the
// final value repeats until a connection succeeds, which resets the
// schedule.
var DefaultBackoffSchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	5 * time.Second,
	10 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Sample is one decoded telemetry point delivered to a subscriber.
type Sample struct {
	Key              string
	Timestamp        time.Time
	Value            any
	MonitoringResult string
	RangeCondition   string
}

// Callback receives samples for one subscribed identifier. Callbacks run
// on the engine's event loop and must not block.
type Callback func(Sample)

// Unsubscribe cancels a subscription. The callback is removed
// immediately; the wire unsubscribe is sent best-effort, queued if the
// connection is down.
type Unsubscribe func()

// Engine events. All are applied by dispatch on the event loop.
type event interface{ isEvent() }

type evSubscribe struct {
	key           string
	qualifiedName string
	callback      Callback
}

type evUnsubscribe struct {
	key           string
	qualifiedName string
}

type evDialResult struct {
	generation uint64
	conn       Conn
	err        error
}

type evFrame struct {
	generation uint64
	data       []byte
}

type evConnLost struct {
	generation uint64
	err        error
}

type evRetry struct{}

type evConnect struct{}

func (evConnect) isEvent()     {}
func (evSubscribe) isEvent()   {}
func (evUnsubscribe) isEvent() {}
func (evDialResult) isEvent()  {}
func (evFrame) isEvent()       {}
func (evConnLost) isEvent()    {}
func (evRetry) isEvent()       {}

// Engine owns one logical realtime connection and the set of desired
// subscriptions.
type Engine struct {
	transport Transport
	logger    *slog.Logger
	metrics   *engineMetrics
	schedule  []time.Duration

	events   chan event
	shutdown chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopped  atomic.Bool

	// Observable mirrors for callers outside the event loop
	stateMirror atomic.Int32
	connIDVal   atomic.Value // stores string
	lastErrVal  atomic.Value // stores string
	startTime   time.Time

	// Event-loop-owned state. Touched only inside dispatch and the
	// helpers it calls.
	state        State
	conn         Conn
	generation   uint64
	seq          uint64
	backoffIndex int
	retryPending bool
	retryTimer   *time.Timer
	callbacks    map[string]Callback
	pending      []command
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics registers engine metrics with the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(e *Engine) {
		e.metrics = newEngineMetrics(registry)
	}
}

// WithBackoffSchedule overrides the reconnect backoff schedule.
func WithBackoffSchedule(schedule []time.Duration) Option {
	return func(e *Engine) {
		if len(schedule) > 0 {
			e.schedule = slices.Clone(schedule)
		}
	}
}

// New creates an engine over the given transport. Call Start to connect.
func New(transport Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		logger:    slog.Default(),
		schedule:  DefaultBackoffSchedule,
		events:    make(chan event, 256),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		callbacks: make(map[string]Callback),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.connIDVal.Store("")
	e.lastErrVal.Store("")
	return e
}

// Start launches the event loop and the first connection attempt.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Engine", "Start", "check started state")
	}
	e.startTime = time.Now()
	go e.run(ctx)
	return e.post(evConnect{})
}

// Stop shuts the engine down, closing the connection and waiting up to
// timeout for the event loop to exit.
func (e *Engine) Stop(timeout time.Duration) error {
	if !e.started.Load() {
		return errors.Wrap(errors.ErrNotStarted, "Engine", "Stop", "check started state")
	}
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(e.shutdown)

	select {
	case <-e.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Engine", "Stop", "wait for event loop")
	}
}

// Subscribe registers a delivery callback for the identifier and returns
// a cancel handle. A second Subscribe for the same identifier replaces
// the prior callback. If the engine is connected the wire subscribe is
// sent immediately; otherwise the subscription is replayed automatically
// on the next connect.
func (e *Engine) Subscribe(key string, callback Callback) (Unsubscribe, error) {
	qualifiedName, err := identifier.ToQualifiedName(key)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "Subscribe", "decode identifier")
	}
	if callback == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("nil callback for %s", key),
			"Engine", "Subscribe", "validate callback")
	}

	if err := e.post(evSubscribe{key: key, qualifiedName: qualifiedName, callback: callback}); err != nil {
		return nil, err
	}

	return func() {
		_ = e.post(evUnsubscribe{key: key, qualifiedName: qualifiedName})
	}, nil
}

// State returns the engine's current connection state.
func (e *Engine) State() State {
	return State(e.stateMirror.Load())
}

// Health implements health.Reporter.
func (e *Engine) Health() health.Status {
	state := e.State()
	connID, _ := e.connIDVal.Load().(string)
	lastErr, _ := e.lastErrVal.Load().(string)

	var status health.Status
	switch {
	case !e.started.Load():
		status = health.Unhealthy("realtime", "not started")
	case state == StateConnected:
		status = health.Healthy("realtime", "connected ("+connID+")")
	default:
		msg := state.String()
		if lastErr != "" {
			msg += ": " + lastErr
		}
		status = health.Degraded("realtime", msg)
	}

	if e.started.Load() {
		status = status.WithMetrics(&health.Metrics{
			Uptime: time.Since(e.startTime),
		})
	}
	return status
}

// post submits an event to the loop, failing once the engine is stopped
// or the loop has exited. The loop also exits when the Start context is
// cancelled without a Stop call; selecting on done keeps posts from
// blocking on a loop that will never drain them.
func (e *Engine) post(ev event) error {
	select {
	case <-e.shutdown:
		return errors.Wrap(errors.ErrShuttingDown, "Engine", "post", "submit event")
	case <-e.done:
		return errors.Wrap(errors.ErrShuttingDown, "Engine", "post", "submit event")
	case e.events <- ev:
		return nil
	}
}

// run is the event loop. All engine state is owned here.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			e.cleanup()
			return
		case <-e.shutdown:
			e.cleanup()
			return
		case ev := <-e.events:
			e.dispatch(ctx, ev)
		}
	}
}

// cleanup releases loop-owned resources on shutdown.
func (e *Engine) cleanup() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.setState(StateDisconnected)
}

// dispatch applies one event to the state machine. It is the only place
// the connection state, callback mapping, and pending queue change.
func (e *Engine) dispatch(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case evConnect:
		e.connect(ctx)

	case evSubscribe:
		e.callbacks[ev.key] = ev.callback
		if e.state == StateConnected {
			e.transmit(subscribeCommand(ev.qualifiedName))
		}

	case evUnsubscribe:
		delete(e.callbacks, ev.key)
		cmd := unsubscribeCommand(ev.qualifiedName)
		if e.state == StateConnected {
			e.transmit(cmd)
		} else {
			e.enqueue(cmd)
		}

	case evDialResult:
		e.handleDialResult(ev)

	case evFrame:
		if ev.generation != e.generation {
			return
		}
		e.handleFrame(ev.data)

	case evConnLost:
		if ev.generation != e.generation {
			return
		}
		e.handleConnLost(ev.err)

	case evRetry:
		e.retryPending = false
		if e.state == StateDisconnected {
			e.connect(ctx)
		}
	}
}

// connect starts a dial attempt. Only legal from Disconnected.
func (e *Engine) connect(ctx context.Context) {
	if e.state != StateDisconnected {
		return
	}
	e.setState(StateConnecting)
	e.generation++
	generation := e.generation

	go func() {
		conn, err := e.transport.Dial(ctx)
		// Posting can only fail on shutdown; close the fresh
		// connection rather than leak it.
		if postErr := e.post(evDialResult{generation: generation, conn: conn, err: err}); postErr != nil && conn != nil {
			_ = conn.Close()
		}
	}()
}

// handleDialResult completes a connection attempt.
func (e *Engine) handleDialResult(ev evDialResult) {
	if ev.generation != e.generation || e.state != StateConnecting {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	if ev.err != nil {
		e.lastErrVal.Store(ev.err.Error())
		e.logger.Warn("connection attempt failed", "error", ev.err)
		if e.metrics != nil {
			e.metrics.connectFailures.Inc()
		}
		e.setState(StateDisconnected)
		e.scheduleReconnect()
		return
	}

	connID := uuid.NewString()
	e.conn = ev.conn
	e.connIDVal.Store(connID)
	e.lastErrVal.Store("")
	e.backoffIndex = 0
	e.setState(StateConnected)
	e.logger.Info("connected", "conn_id", connID)

	go e.readPump(ev.conn, ev.generation)

	// Resubscribe everything we still want, then drain commands that
	// were queued while offline. The relative order matters: the
	// desired set first, the backlog second.
	e.resubscribeAll()
	e.drainPending()
}

// readPump feeds inbound frames into the event loop until the
// connection dies.
func (e *Engine) readPump(conn Conn, generation uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			_ = e.post(evConnLost{generation: generation, err: err})
			return
		}
		if postErr := e.post(evFrame{generation: generation, data: data}); postErr != nil {
			return
		}
	}
}

// resubscribeAll re-issues a subscribe command for every identifier in
// the callback mapping, recovering subscriptions across a reconnect.
func (e *Engine) resubscribeAll() {
	keys := make([]string, 0, len(e.callbacks))
	for key := range e.callbacks {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if e.state != StateConnected {
			return
		}
		qualifiedName, err := identifier.ToQualifiedName(key)
		if err != nil {
			// Keys are validated at Subscribe time; this cannot happen.
			continue
		}
		e.transmit(subscribeCommand(qualifiedName))
	}
}

// drainPending sends queued commands in FIFO order while connected. A
// failed write pushes the command back to the front and stops the
// drain; the reconnect path will retry.
func (e *Engine) drainPending() {
	for e.state == StateConnected && len(e.pending) > 0 {
		cmd := e.pending[0]
		e.pending = e.pending[1:]
		if !e.write(cmd) {
			e.pending = append([]command{cmd}, e.pending...)
			break
		}
	}
	e.updateQueueDepth()
}

// transmit writes a command, queueing it for retry if the write fails.
func (e *Engine) transmit(cmd command) {
	if !e.write(cmd) {
		e.enqueue(cmd)
	}
}

// enqueue appends a command to the pending queue.
func (e *Engine) enqueue(cmd command) {
	e.pending = append(e.pending, cmd)
	e.updateQueueDepth()
}

// write wraps a command in the sequence envelope and writes it to the
// connection. A write failure is treated as a disconnect. Sequence
// numbers increase monotonically for the engine's lifetime; they are
// deliberately not reset across reconnects.
func (e *Engine) write(cmd command) bool {
	if e.state != StateConnected || e.conn == nil {
		return false
	}

	e.seq++
	data, err := encodeEnvelope(e.seq, cmd)
	if err != nil {
		// Commands are engine-built; a marshal failure is a bug, not a
		// connection problem. Drop the command rather than wedge the queue.
		e.logger.Error("failed to encode command", "error", err)
		return true
	}

	if err := e.conn.WriteMessage(data); err != nil {
		e.handleConnLost(err)
		return false
	}

	if e.metrics != nil {
		e.metrics.commandsSent.WithLabelValues(cmd.Parameter).Inc()
	}
	return true
}

// handleConnLost transitions to Disconnected and schedules a reconnect.
func (e *Engine) handleConnLost(err error) {
	if e.state == StateDisconnected {
		return
	}
	e.lastErrVal.Store(err.Error())
	e.logger.Warn("connection lost", "error", err)
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.setState(StateDisconnected)
	e.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer using the backoff
// schedule. At most one timer is pending at a time.
func (e *Engine) scheduleReconnect() {
	if e.retryPending {
		return
	}
	e.retryPending = true

	idx := e.backoffIndex
	if idx >= len(e.schedule) {
		idx = len(e.schedule) - 1
	}
	delay := e.schedule[idx]
	e.backoffIndex++

	if e.metrics != nil {
		e.metrics.reconnectAttempts.Inc()
	}
	e.logger.Info("reconnect scheduled", "delay", delay)

	e.retryTimer = time.AfterFunc(delay, func() {
		_ = e.post(evRetry{})
	})
}

// handleFrame decodes an inbound frame and delivers its samples.
// Malformed frames, non-parameter frames, and samples for identifiers
// with no registered callback are all dropped silently.
func (e *Engine) handleFrame(data []byte) {
	if e.metrics != nil {
		e.metrics.framesReceived.Inc()
	}

	body, ok := decodeFrame(data)
	if !ok {
		return
	}

	for _, sample := range body.Data.Parameter {
		key := identifier.ToKey(sample.ID.Name)
		callback, ok := e.callbacks[key]
		if !ok {
			// A server push can race an unsubscribe; not an error.
			if e.metrics != nil {
				e.metrics.samplesDropped.Inc()
			}
			continue
		}

		ts, _ := sample.timestamp()
		callback(Sample{
			Key:              key,
			Timestamp:        ts,
			Value:            sample.EngValue.value(),
			MonitoringResult: sample.MonitoringResult,
			RangeCondition:   sample.RangeCondition,
		})
		if e.metrics != nil {
			e.metrics.samplesDispatched.Inc()
		}
	}
}

// setState records a state transition.
func (e *Engine) setState(state State) {
	e.state = state
	e.stateMirror.Store(int32(state))
	if e.metrics != nil {
		e.metrics.connectionState.Set(float64(state))
	}
}

func (e *Engine) updateQueueDepth() {
	if e.metrics != nil {
		e.metrics.pendingQueueDepth.Set(float64(len(e.pending)))
	}
}

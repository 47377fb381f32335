// Package connection owns the single persistent board socket: connect and
// reconnect with backoff, connection and idle timeouts, and heartbeat.
package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/utils/async"
	"github.com/secmon-lab/boardsync/pkg/utils/clock"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

var (
	ErrInvalidConfig    = goerr.New("invalid connection config")
	ErrConnectTimeout   = goerr.New("connection was not established in time")
	ErrIdleTimeout      = goerr.New("no frame received within idle timeout")
	ErrSocketClosed     = goerr.New("socket closed unexpectedly")
	ErrRetriesExhausted = goerr.New("reconnect attempts exhausted")
	ErrClosed           = goerr.New("connection closed")
)

// WebSocket close codes used on teardown
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

const AttemptKey = "attempt"

// StateChange describes one transition of the state machine
type StateChange struct {
	From    types.ConnectionState
	To      types.ConnectionState
	Attempt int
	// Delay is the backoff before the next attempt when To is reconnecting
	Delay time.Duration
	Err   error
}

// StateFunc observes transitions. It is called outside the manager's
// lock, in transition order, and must not block.
type StateFunc func(StateChange)

// FrameFunc receives every inbound frame on the reader goroutine
type FrameFunc func(ctx context.Context, raw []byte)

// HeartbeatFunc builds the frames sent on every heartbeat tick
type HeartbeatFunc func(ctx context.Context, now time.Time) []any

// DefaultHeartbeat sends a single ping
func DefaultHeartbeat(_ context.Context, now time.Time) []any {
	return []any{model.NewPing(now)}
}

// endpoint is the loggable form of the socket target
type endpoint struct {
	Host          string
	Path          string
	Authorization string `masq:"secret"`
}

// Manager is the connection state machine. All state lives behind mu;
// callbacks scheduled on the clock carry the generation they were
// created for and become no-ops once the generation moves on, which is
// how Close guarantees no timer acts after it returns.
type Manager struct {
	cfg    Config
	dialer interfaces.Dialer
	clock  clock.Clock

	mu        sync.Mutex
	ctx       context.Context
	state     types.ConnectionState
	filter    model.FilterContext
	gen       uint64
	conn      interfaces.Conn
	attempt   int
	backoff   *backoff.ExponentialBackOff
	waiters   []chan error
	onFrame   FrameFunc
	heartbeat HeartbeatFunc

	cancelDial     context.CancelFunc
	connectTimer   clock.Timer
	retryTimer     clock.Timer
	heartbeatTimer clock.Timer
	idleTimer      clock.Timer
	idleSeq        uint64

	observers []StateFunc
	notes     []StateChange
	flushing  bool
}

type Option func(*Manager)

// WithClock replaces the wall clock, for tests
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithHeartbeat(fn HeartbeatFunc) Option {
	return func(m *Manager) { m.heartbeat = fn }
}

func New(cfg Config, dialer interfaces.Dialer, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "dialer is required")
	}

	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		clock:     clock.Real(),
		ctx:       context.Background(),
		state:     types.ConnectionStateDisconnected,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.backoff = &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               m.clock,
	}
	m.backoff.Reset()
	return m, nil
}

// OnStateChange registers an observer of state transitions
func (m *Manager) OnStateChange(fn StateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// OnFrame sets the receiver of inbound frames
func (m *Manager) OnFrame(fn FrameFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// SetHeartbeat replaces the heartbeat frame builder
func (m *Manager) SetHeartbeat(fn HeartbeatFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = DefaultHeartbeat
	}
	m.heartbeat = fn
}

func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the reconnect cycles since the last successful connect
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Filter returns the filter context of the current connection
func (m *Manager) Filter() model.FilterContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}

// effects are side effects collected under the lock and applied after
// it is released
type effects struct {
	closeConn interfaces.Conn
	closeCode int
	waiters   []chan error
	result    error
}

func (m *Manager) apply(ctx context.Context, eff effects) {
	if eff.closeConn != nil {
		reason := "client closed"
		if eff.closeCode != CloseNormal {
			reason = "reconnecting"
		}
		if err := eff.closeConn.Close(eff.closeCode, reason); err != nil {
			logging.From(ctx).Debug("socket close failed", "error", err)
		}
	}
	for _, ch := range eff.waiters {
		ch <- eff.result
	}
	m.flush()
}

// Connect opens the connection for filter and waits for the outcome of
// the first attempt. It is a no-op while connecting or connected. A
// failed attempt is returned as an error but the manager keeps
// reconnecting in the background until attempts run out.
func (m *Manager) Connect(ctx context.Context, filter model.FilterContext) error {
	m.mu.Lock()
	switch m.state {
	case types.ConnectionStateConnected:
		m.mu.Unlock()
		return nil
	case types.ConnectionStateConnecting, types.ConnectionStateReconnecting:
		ch := m.addWaiterLocked()
		m.mu.Unlock()
		return m.wait(ctx, ch)
	case types.ConnectionStateFailed:
		m.mu.Unlock()
		return goerr.Wrap(ErrRetriesExhausted, "connection failed, retry required")
	}

	m.ctx = context.WithoutCancel(ctx)
	m.filter = filter.Normalized()
	m.attempt = 0
	m.backoff.Reset()
	ch := m.addWaiterLocked()
	if err := m.beginAttemptLocked(); err != nil {
		eff := effects{waiters: m.takeWaitersLocked(), result: err}
		m.mu.Unlock()
		m.apply(ctx, eff)
		return err
	}
	m.mu.Unlock()
	m.flush()
	return m.wait(ctx, ch)
}

// Retry resets the attempt counter and connects immediately. It is the
// only way out of the failed state. It is a no-op while connecting or
// connected.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case types.ConnectionStateConnected, types.ConnectionStateConnecting:
		m.mu.Unlock()
		return nil
	}

	logging.From(ctx).Info("manual reconnect requested", "state", m.state, AttemptKey, m.attempt)
	m.ctx = context.WithoutCancel(ctx)
	eff := effects{closeConn: m.teardownLocked(), closeCode: CloseGoingAway}
	m.attempt = 0
	m.backoff.Reset()
	ch := m.addWaiterLocked()
	if err := m.beginAttemptLocked(); err != nil {
		eff.waiters = m.takeWaitersLocked()
		eff.result = err
		m.mu.Unlock()
		m.apply(ctx, eff)
		return err
	}
	m.mu.Unlock()
	m.apply(ctx, eff)
	return m.wait(ctx, ch)
}

// Close cancels every timer, closes the socket with a normal closure and
// moves to disconnected. No scheduled callback has any effect once Close
// returns.
func (m *Manager) Close() {
	m.mu.Lock()
	ctx := m.ctx
	m.gen++
	eff := effects{
		closeConn: m.teardownLocked(),
		closeCode: CloseNormal,
		waiters:   m.takeWaitersLocked(),
		result:    goerr.Wrap(ErrClosed, "connection closed before it was established"),
	}
	m.attempt = 0
	if m.state != types.ConnectionStateDisconnected {
		m.transitionLocked(types.ConnectionStateDisconnected, 0, nil)
	}
	m.mu.Unlock()
	m.apply(ctx, eff)
}

// Send encodes msg and writes it to the socket. It reports whether the
// connection was open and the write succeeded; failures are logged only.
func (m *Manager) Send(ctx context.Context, msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.From(ctx).Error("failed to encode outbound frame", "error", err)
		return false
	}

	m.mu.Lock()
	conn := m.conn
	open := m.state == types.ConnectionStateConnected && conn != nil
	m.mu.Unlock()

	if !open {
		logging.From(ctx).Debug("frame dropped, connection is not open", "state", m.State())
		return false
	}
	if err := conn.WriteMessage(data); err != nil {
		logging.From(ctx).Warn("failed to write frame", "error", err)
		return false
	}
	return true
}

func (m *Manager) addWaiterLocked() chan error {
	ch := make(chan error, 1)
	m.waiters = append(m.waiters, ch)
	return ch
}

func (m *Manager) takeWaitersLocked() []chan error {
	w := m.waiters
	m.waiters = nil
	return w
}

func (m *Manager) wait(ctx context.Context, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "interrupted while waiting for connection")
	}
}

func (m *Manager) transitionLocked(to types.ConnectionState, delay time.Duration, cause error) {
	change := StateChange{From: m.state, To: to, Attempt: m.attempt, Delay: delay, Err: cause}
	m.state = to

	args := []any{"from", change.From, "to", to, AttemptKey, m.attempt}
	if delay > 0 {
		args = append(args, "delay", delay)
	}
	if cause != nil {
		args = append(args, "error", cause)
	}
	logger := logging.From(m.ctx)
	if to == types.ConnectionStateFailed {
		logger.Error("connection state changed", args...)
	} else {
		logger.Info("connection state changed", args...)
	}

	if len(m.observers) > 0 {
		m.notes = append(m.notes, change)
	}
}

// flush delivers queued transitions. Only one goroutine delivers at a
// time so observers see transitions in order, and an observer may call
// back into the manager.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.notes) > 0 {
		notes := m.notes
		m.notes = nil
		observers := append([]StateFunc(nil), m.observers...)
		m.mu.Unlock()
		for _, n := range notes {
			for _, fn := range observers {
				fn(n)
			}
		}
		m.mu.Lock()
	}
	m.flushing = false
	m.mu.Unlock()
}

func (m *Manager) beginAttemptLocked() error {
	target, err := model.ClientsURL(m.cfg.BaseURL, m.cfg.User, m.filter)
	if err != nil {
		return err
	}

	m.gen++
	gen := m.gen
	dialCtx, cancel := context.WithCancel(m.ctx)
	m.cancelDial = cancel
	m.connectTimer = m.clock.AfterFunc(m.cfg.ConnectTimeout, func() { m.onConnectTimeout(gen) })
	m.transitionLocked(types.ConnectionStateConnecting, 0, nil)

	var ep endpoint
	if u, err := url.Parse(target); err == nil {
		ep = endpoint{Host: u.Host, Path: u.Path, Authorization: m.cfg.User}
	}
	logging.From(m.ctx).Debug("dialing board", "endpoint", ep, "filter", m.filter)

	async.Dispatch(m.ctx, "dial", func(context.Context) error {
		m.dial(dialCtx, gen, target)
		return nil
	})
	return nil
}

func (m *Manager) dial(ctx context.Context, gen uint64, target string) {
	conn, err := m.dialer.Dial(ctx, target, http.Header{})

	m.mu.Lock()
	if gen != m.gen || m.state != types.ConnectionStateConnecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseGoingAway, "superseded")
		}
		return
	}
	if err != nil {
		eff := m.failLocked(err)
		m.mu.Unlock()
		m.apply(ctx, eff)
		return
	}

	stopTimer(&m.connectTimer)
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.conn = conn
	m.attempt = 0
	m.backoff.Reset()
	m.transitionLocked(types.ConnectionStateConnected, 0, nil)
	m.armHeartbeatLocked(gen)
	m.armIdleLocked(gen)
	waiters := m.takeWaitersLocked()
	filter := m.filter
	runCtx := m.ctx
	m.mu.Unlock()

	async.Dispatch(runCtx, "read", func(ctx context.Context) error {
		m.readLoop(ctx, gen, conn)
		return nil
	})

	m.flush()
	now := m.clock.Now()
	m.Send(runCtx, model.NewSetAssignee(filter, now))
	m.Send(runCtx, model.NewFetchPreview(filter, now))
	for _, ch := range waiters {
		ch <- nil
	}
}

// failLocked tears down the current attempt and schedules the next one,
// or gives up once MaxAttempts reconnect cycles have been spent
func (m *Manager) failLocked(cause error) effects {
	eff := effects{closeConn: m.teardownLocked(), closeCode: CloseGoingAway}
	m.gen++
	m.attempt++

	if m.attempt > m.cfg.MaxAttempts {
		m.attempt = m.cfg.MaxAttempts
		err := goerr.Wrap(ErrRetriesExhausted, "giving up on board connection",
			goerr.V(AttemptKey, m.attempt), goerr.V("cause", cause.Error()))
		m.transitionLocked(types.ConnectionStateFailed, 0, err)
		eff.waiters = m.takeWaitersLocked()
		eff.result = err
		return eff
	}

	delay := m.backoff.NextBackOff()
	if delay == backoff.Stop || delay > m.cfg.MaxDelay {
		delay = m.cfg.MaxDelay
	}
	gen := m.gen
	m.retryTimer = m.clock.AfterFunc(delay, func() { m.onRetry(gen) })
	m.transitionLocked(types.ConnectionStateReconnecting, delay, cause)
	eff.waiters = m.takeWaitersLocked()
	eff.result = cause
	return eff
}

// teardownLocked stops every timer and detaches the socket, which the
// caller closes after unlocking
func (m *Manager) teardownLocked() interfaces.Conn {
	stopTimer(&m.connectTimer)
	stopTimer(&m.retryTimer)
	stopTimer(&m.heartbeatTimer)
	stopTimer(&m.idleTimer)
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	return conn
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (m *Manager) onConnectTimeout(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != types.ConnectionStateConnecting {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	eff := m.failLocked(goerr.Wrap(ErrConnectTimeout, "connect timeout",
		goerr.V("timeout", m.cfg.ConnectTimeout)))
	m.mu.Unlock()
	m.apply(ctx, eff)
}

func (m *Manager) onRetry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != types.ConnectionStateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	ctx := m.ctx
	var eff effects
	if err := m.beginAttemptLocked(); err != nil {
		eff = m.failLocked(err)
	}
	m.mu.Unlock()
	m.apply(ctx, eff)
}

func (m *Manager) onSocketClosed(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state != types.ConnectionStateConnected {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	eff := m.failLocked(goerr.Wrap(ErrSocketClosed, "socket closed", goerr.V("cause", cause.Error())))
	m.mu.Unlock()
	m.apply(ctx, eff)
}

func (m *Manager) armIdleLocked(gen uint64) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	stopTimer(&m.idleTimer)
	m.idleSeq++
	seq := m.idleSeq
	m.idleTimer = m.clock.AfterFunc(m.cfg.IdleTimeout, func() { m.onIdle(gen, seq) })
}

func (m *Manager) onIdle(gen, seq uint64) {
	m.mu.Lock()
	if gen != m.gen || seq != m.idleSeq || m.state != types.ConnectionStateConnected {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	eff := m.failLocked(goerr.Wrap(ErrIdleTimeout, "connection presumed dead",
		goerr.V("idle_timeout", m.cfg.IdleTimeout)))
	m.mu.Unlock()
	m.apply(ctx, eff)
}

func (m *Manager) armHeartbeatLocked(gen uint64) {
	stopTimer(&m.heartbeatTimer)
	m.heartbeatTimer = m.clock.AfterFunc(m.cfg.PingInterval, func() { m.beat(gen) })
}

func (m *Manager) beat(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != types.ConnectionStateConnected {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	build := m.heartbeat
	m.mu.Unlock()

	for _, msg := range build(ctx, m.clock.Now()) {
		m.Send(ctx, msg)
	}

	m.mu.Lock()
	if gen == m.gen && m.state == types.ConnectionStateConnected {
		m.armHeartbeatLocked(gen)
	}
	m.mu.Unlock()
}

// readLoop forwards frames until the socket fails. Each frame proves the
// connection alive and pushes the idle deadline back.
func (m *Manager) readLoop(ctx context.Context, gen uint64, conn interfaces.Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			m.onSocketClosed(gen, err)
			return
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.armIdleLocked(gen)
		handler := m.onFrame
		m.mu.Unlock()

		if handler != nil {
			handler(ctx, raw)
		}
	}
}

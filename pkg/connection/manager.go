package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/metrics"
)

// State is the session state of a Manager.
type State uint8

const (
	// StateIdle indicates no session is held.
	StateIdle State = iota

	// StateConnecting indicates a session is being opened.
	StateConnecting

	// StateConnected indicates a session is held.
	StateConnected

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Teardown reasons, used in logs and metrics.
const (
	ReasonIdle      = "idle"
	ReasonFailure   = "write_failure"
	ReasonStale     = "stale"
	ReasonRequested = "requested"
	ReasonClosed    = "closed"
)

// Manager owns the single transport session of one device. All writes go
// through its Guard; the session is opened on demand and closed after an
// idle linger.
type Manager struct {
	address   string
	config    Config
	resolver  Resolver
	transport Transport
	scheduler Scheduler
	logger    *slog.Logger

	guard *Guard
	slot  slot

	mu            sync.RWMutex
	state         State
	closed        bool
	events        log.Logger
	metrics       *metrics.Recorder
	onStateChange func(oldState, newState State)
}

// NewManager creates a manager for the device at address.
func NewManager(address string, resolver Resolver, transport Transport, config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil || transport == nil {
		return nil, errors.New("connection: resolver and transport are required")
	}
	m := &Manager{
		address:   address,
		config:    config,
		resolver:  resolver,
		transport: transport,
		scheduler: config.Scheduler,
		logger:    config.Logger,
		guard:     NewGuard(),
		events:    log.NoopLogger{},
	}
	if m.scheduler == nil {
		m.scheduler = NewScheduler(nil)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.logger = m.logger.With("address", address)
	m.guard.OnWait(func(d time.Duration) {
		m.metricsRecorder().ObserveGuardWait(m.address, d)
	})
	return m, nil
}

// Address returns the device address.
func (m *Manager) Address() string {
	return m.address
}

// Guard returns the write lock, for instrumentation.
func (m *Manager) Guard() *Guard {
	return m.guard
}

// HasFastPath reports whether a fast path was injected.
func (m *Manager) HasFastPath() bool {
	return m.config.FastPath != nil
}

// SetEventLogger sets the device event logger.
func (m *Manager) SetEventLogger(l log.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = log.OrNoop(l)
}

// SetMetrics sets the metrics recorder. Nil disables metrics.
func (m *Manager) SetMetrics(r *metrics.Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = r
}

// OnStateChange sets a callback for session state changes. It is invoked
// outside the manager's locks, possibly from a timer goroutine.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether a session is held and its transport reports
// connected.
func (m *Manager) IsConnected() bool {
	h, _ := m.slot.current()
	return h != nil && h.IsConnected()
}

// Session returns information about the current session.
func (m *Manager) Session() (SessionInfo, bool) {
	return m.slot.info()
}

// ResolveTarget looks up a currently reachable target for the device.
func (m *Manager) ResolveTarget(ctx context.Context) (Target, error) {
	target, ok := m.resolver.Resolve(ctx, m.address, true)
	if !ok || target == nil {
		return nil, unreachable(m.address, "resolve", ErrAddressUnresolvable, nil)
	}
	return target, nil
}

// EnsureSession returns a live session, opening one if needed. It takes
// the write lock and rearms the idle timer like a write does.
func (m *Manager) EnsureSession(ctx context.Context) (Handle, error) {
	if err := m.guard.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.guard.Release()
	defer m.ExtendIdleTimer()

	if m.isClosed() {
		return nil, ErrClosed
	}
	m.slot.cancelTimer()
	return m.ensureSession(ctx)
}

// Write writes data to the characteristic charUUID with a write request.
func (m *Manager) Write(ctx context.Context, charUUID string, data []byte) error {
	return m.WriteCharacteristic(ctx, charUUID, data, true)
}

// WriteCharacteristic serializes one write through the guard. With a fast
// path it is tried first under FastPathTimeout; on a transport failure the
// call falls back to a direct connect+write under DirectTimeout.
//
// Expected failures return an error matching ErrDeviceUnreachable and drop
// the session. Other errors are returned unchanged but also drop the
// session. The idle timer is rearmed on every return path.
func (m *Manager) WriteCharacteristic(ctx context.Context, charUUID string, data []byte, withResponse bool) error {
	start := time.Now()
	if err := m.guard.Acquire(ctx); err != nil {
		return err
	}
	defer m.guard.Release()
	defer m.ExtendIdleTimer()

	if m.isClosed() {
		return ErrClosed
	}
	// A write in flight keeps the session; the timer is rearmed on return.
	m.slot.cancelTimer()

	path, err := m.write(ctx, charUUID, data, withResponse)
	abandoned := err != nil && ctx.Err() != nil
	switch {
	case abandoned:
		// The caller gave up; only the tier budgets speak for the device.
		err = fmt.Errorf("write %s: %w", m.address, ctx.Err())
	case err != nil && !IsUnreachable(err) && isTransportError(err):
		err = unreachable(m.address, "write", ErrTransportFailure, err)
	}
	_, sessionID := m.slot.current()

	outcome := log.OutcomeOK
	switch {
	case err == nil:
		m.logger.Debug("write complete", "uuid", charUUID, "path", path.String())
	case abandoned:
		outcome = log.OutcomeAbandoned
		m.logger.Info("write abandoned by caller", "uuid", charUUID, "path", path.String(), "error", err)
		if h, _ := m.slot.current(); h != nil && !h.IsConnected() {
			m.discard(ctx, ReasonStale)
		}
	case IsUnreachable(err):
		outcome = log.OutcomeUnreachable
		m.logger.Warn("write failed, device unreachable", "uuid", charUUID, "path", path.String(), "error", err)
		m.discard(ctx, ReasonFailure)
	default:
		outcome = log.OutcomeFailed
		m.logger.Error("unexpected write failure", "uuid", charUUID, "path", path.String(), "error", err)
		m.discard(ctx, ReasonFailure)
	}

	elapsed := time.Since(start)
	m.metricsRecorder().ObserveWrite(m.address, path.String(), outcome.String(), elapsed)
	m.logEvent(log.Event{
		SessionID: sessionID,
		Direction: log.DirectionOut,
		Layer:     log.LayerSession,
		Category:  log.CategoryWrite,
		Write: &log.WriteEvent{
			UUID:         charUUID,
			Data:         data,
			Path:         path,
			WithResponse: withResponse,
			Outcome:      outcome,
			Duration:     elapsed,
		},
	})
	return err
}

func (m *Manager) write(ctx context.Context, charUUID string, data []byte, withResponse bool) (log.WritePath, error) {
	if fp := m.config.FastPath; fp != nil {
		target, err := m.ResolveTarget(ctx)
		if err != nil {
			return log.WritePathFast, err
		}
		fctx, cancel := context.WithTimeout(ctx, m.config.FastPathTimeout)
		err = fp.WriteCharacteristic(fctx, target, charUUID, data)
		cancel()
		if err == nil {
			return log.WritePathFast, nil
		}
		if !isTransportError(err) || ctx.Err() != nil {
			return log.WritePathFast, err
		}
		m.logger.Warn("fast path write failed, falling back to direct write", "uuid", charUUID, "error", err)
	}

	dctx, cancel := context.WithTimeout(ctx, m.config.DirectTimeout)
	defer cancel()

	h, err := m.ensureSession(dctx)
	if err != nil {
		return log.WritePathDirect, err
	}
	return log.WritePathDirect, h.WriteCharacteristic(dctx, charUUID, data, withResponse)
}

// ensureSession must be called with the guard held.
func (m *Manager) ensureSession(ctx context.Context) (Handle, error) {
	if h, _ := m.slot.current(); h != nil {
		if h.IsConnected() {
			return h, nil
		}
		m.discard(ctx, ReasonStale)
	}

	target, err := m.ResolveTarget(ctx)
	if err != nil {
		return nil, err
	}
	if m.isClosed() {
		return nil, ErrClosed
	}

	m.setState(StateConnecting, "")
	h, err := m.transport.Open(ctx, target, m.config.NameHint, m.config.UseServiceCache)
	if err == nil && !h.HasServices() {
		if derr := h.DiscoverServices(ctx); derr != nil {
			m.disconnectHandle(ctx, h)
			err = derr
		}
	}
	if err != nil {
		m.metricsRecorder().ObserveConnect(m.address, "failed")
		m.setState(StateIdle, "connect failed")
		if isTransportError(err) {
			return nil, unreachable(m.address, "connect", ErrTransportFailure, err)
		}
		return nil, err
	}

	id := uuid.NewString()
	if prev := m.slot.set(h, id, time.Now()); prev != nil {
		m.disconnectHandle(ctx, prev)
	}
	m.metricsRecorder().ObserveConnect(m.address, "ok")
	m.metricsRecorder().SetSessionLive(m.address, true)
	m.logger.Info("session opened", "session", id, "source", target.Source())
	m.setState(StateConnected, target.Source())
	return h, nil
}

// ExtendIdleTimer cancels any pending idle timer and, if a session is
// held, arms a new one for the configured linger.
func (m *Manager) ExtendIdleTimer() {
	m.slot.arm(m.scheduler, m.config.Linger, m.onIdle)
}

func (m *Manager) onIdle(gen uint64) {
	h, id, ok := m.slot.expire(gen)
	if !ok {
		return
	}
	m.logger.Debug("idle linger elapsed", "session", id, "linger", m.config.Linger)
	m.teardown(context.Background(), h, id, ReasonIdle)
}

// Disconnect tears down the current session, if any. It never fails.
func (m *Manager) Disconnect(ctx context.Context) {
	m.discard(ctx, ReasonRequested)
}

// Close cancels the idle timer and tears the session down. It waits for an
// in-flight write until ctx ends. Writes after Close return ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if err := m.guard.Acquire(ctx); err == nil {
		defer m.guard.Release()
	} else {
		m.logger.Warn("closing without write lock", "error", err)
	}

	m.slot.cancelTimer()
	m.discard(ctx, ReasonClosed)
	m.setState(StateClosed, ReasonClosed)
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// discard clears the slot and disconnects what it held.
func (m *Manager) discard(ctx context.Context, reason string) {
	h, id := m.slot.take()
	if h == nil {
		return
	}
	m.teardown(ctx, h, id, reason)
}

func (m *Manager) teardown(ctx context.Context, h Handle, id, reason string) {
	m.disconnectHandle(ctx, h)
	m.metricsRecorder().ObserveDisconnect(m.address, reason)
	m.metricsRecorder().SetSessionLive(m.address, false)
	m.logger.Info("session closed", "session", id, "reason", reason)
	if !m.isClosed() {
		m.setState(StateIdle, reason)
	}
}

// disconnectHandle disconnects h best-effort. Errors are logged and
// swallowed. The caller's context may already be done, so teardown gets
// its own budget.
func (m *Manager) disconnectHandle(ctx context.Context, h Handle) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.DisconnectTimeout)
	defer cancel()
	if err := h.Disconnect(dctx); err != nil {
		m.logger.Warn("disconnect failed", "error", err)
	}
}

func (m *Manager) setState(newState State, reason string) {
	m.mu.Lock()
	oldState := m.state
	if oldState == newState || oldState == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = newState
	fn := m.onStateChange
	events := m.events
	m.mu.Unlock()

	_, sessionID := m.slot.current()
	events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Address:   m.address,
		Direction: log.DirectionNone,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
	if fn != nil {
		fn(oldState, newState)
	}
}

func (m *Manager) logEvent(e log.Event) {
	m.mu.RLock()
	events := m.events
	m.mu.RUnlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Address = m.address
	events.Log(e)
}

func (m *Manager) metricsRecorder() *metrics.Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

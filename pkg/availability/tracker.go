package availability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/metrics"
)

// SessionState reports whether a transport session is live.
// *connection.Manager implements it.
type SessionState interface {
	IsConnected() bool
}

// Tracker derives the availability of one device from its session state,
// the recency of sightings and the distrust flag set by write failures.
//
// A live session dominates every other input. A write failure makes the
// device unavailable immediately; only a sighting or a live session clears
// it. Elapsed time alone never restores availability.
type Tracker struct {
	address string
	config  Config
	clock   clockwork.Clock
	session SessionState
	logger  *slog.Logger
	ready   *Signal

	mu       sync.Mutex
	live     bool
	lastSeen time.Time
	forced   bool
	reported State
	watchdog clockwork.Timer
	closed   bool

	events  log.Logger
	metrics *metrics.Recorder

	subMu      sync.RWMutex
	nextID     int
	subs       map[int]func(Update)
	refreshers map[int]func()
	refreshing sync.WaitGroup
}

// NewTracker creates a tracker for address. When session is set it is the
// source of truth for liveness and OnSessionLive/OnSessionEnded only
// trigger re-evaluation; when nil, those calls set liveness.
func NewTracker(address string, session SessionState, config Config) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		address:    address,
		config:     config,
		clock:      config.Clock,
		session:    session,
		logger:     config.Logger,
		ready:      NewSignal(),
		reported:   StateSightingStale,
		events:     log.NoopLogger{},
		subs:       make(map[int]func(Update)),
		refreshers: make(map[int]func()),
	}
	if t.clock == nil {
		t.clock = clockwork.NewRealClock()
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	t.logger = t.logger.With("address", address)
	t.logger.Info("availability tracker initialized", "unavailableAfter", config.UnavailableAfter)
	return t, nil
}

// SetEventLogger sets the device event logger.
func (t *Tracker) SetEventLogger(l log.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = log.OrNoop(l)
}

// SetMetrics sets the metrics recorder.
func (t *Tracker) SetMetrics(r *metrics.Recorder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = r
	r.SetAvailable(t.address, t.reported.Available())
}

// Address returns the tracked device address.
func (t *Tracker) Address() string {
	return t.address
}

// Ready returns the signal fired by the first sighting.
func (t *Tracker) Ready() *Signal {
	return t.ready
}

// OnSighting records a sighting at the given time. A zero time means now.
// It reports whether the sighting cleared the distrusted state; in that
// case subscribers get a forced update and refresh subscribers are invoked
// asynchronously.
func (t *Tracker) OnSighting(at time.Time) (recovered bool) {
	now := t.clock.Now()
	if at.IsZero() {
		at = now
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if at.After(t.lastSeen) {
		t.lastSeen = at
	}
	recovered = t.forced
	t.forced = false
	t.armWatchdogLocked(now)
	u, changed := t.reportLocked(now, ReasonSighting)
	t.mu.Unlock()

	t.ready.Fire()

	if recovered {
		u.Reason = ReasonRecovered
		u.Recovered = true
		t.metricsRecorder().ObserveRecovery(t.address)
		t.notify(u)
		t.broadcastRefresh()
		return true
	}
	if changed {
		t.notify(u)
	}
	return false
}

// OnSessionLive records that a session became live. A connection proves
// reachability, so it also clears the distrusted state.
func (t *Tracker) OnSessionLive() {
	now := t.clock.Now()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.live = true
	t.forced = false
	u, changed := t.reportLocked(now, ReasonSessionLive)
	t.mu.Unlock()
	if changed {
		t.notify(u)
	}
}

// OnSessionEnded records that the session was torn down.
func (t *Tracker) OnSessionEnded() {
	now := t.clock.Now()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.armWatchdogLocked(now)
	u, changed := t.reportLocked(now, ReasonSessionEnded)
	t.mu.Unlock()
	if changed {
		t.notify(u)
	}
}

// MarkWriteFailed distrusts the device until the next sighting or live
// session. A failure reported while a session is connected is stale: that
// session already proved the device reachable, so it is ignored.
// Subscribers are always notified.
func (t *Tracker) MarkWriteFailed() {
	now := t.clock.Now()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	connected := t.connectedLocked()
	if !connected {
		t.forced = true
	}
	u, _ := t.reportLocked(now, ReasonWriteFailed)
	t.mu.Unlock()

	if connected {
		t.logger.Debug("write failure reported while connected, keeping availability")
	} else {
		t.logger.Warn("write failed, marking unavailable until next sighting")
	}
	t.notify(u)
}

// Available reports availability now.
func (t *Tracker) Available() bool {
	return t.AvailableAt(t.clock.Now())
}

// AvailableAt reports availability at now.
func (t *Tracker) AvailableAt(now time.Time) bool {
	return t.StateAt(now).Available()
}

// StateAt derives the availability state at now.
func (t *Tracker) StateAt(now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(now)
}

// LastSeen returns the time of the most recent sighting, or the zero time.
func (t *Tracker) LastSeen() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

// Distrusted reports whether a write failure is pending new evidence.
func (t *Tracker) Distrusted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forced
}

// WaitReady blocks until the first sighting, ctx ends or timeout elapses.
// A non-positive timeout uses the configured startup timeout.
func (t *Tracker) WaitReady(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = t.config.StartupTimeout
	}
	if t.ready.Fired() {
		return true
	}
	timer := t.clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.ready.Done():
		return true
	case <-timer.Chan():
		return t.ready.Fired()
	case <-ctx.Done():
		return t.ready.Fired()
	}
}

// Subscribe registers fn for availability updates and returns a function
// that removes it. fn runs on the goroutine that caused the update and must
// not block.
func (t *Tracker) Subscribe(fn func(Update)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subs, id)
	}
}

// SubscribeRefresh registers fn to run after each recovery, so dependent
// entities can re-read and re-render their state. Refresh callbacks run on
// their own goroutine.
func (t *Tracker) SubscribeRefresh(fn func()) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextID
	t.nextID++
	t.refreshers[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.refreshers, id)
	}
}

// Close stops the watchdog, drops all subscribers and waits for pending
// refresh broadcasts.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}
	t.mu.Unlock()

	t.subMu.Lock()
	clear(t.subs)
	clear(t.refreshers)
	t.subMu.Unlock()

	t.refreshing.Wait()
}

func (t *Tracker) connectedLocked() bool {
	if t.session != nil {
		return t.session.IsConnected()
	}
	return t.live
}

// stateLocked derives the state at now. Seeing a connected session clears
// distrust.
func (t *Tracker) stateLocked(now time.Time) State {
	switch {
	case t.connectedLocked():
		t.forced = false
		return StateConnected
	case t.forced:
		return StateDistrusted
	case t.lastSeen.IsZero(), now.Sub(t.lastSeen) >= t.config.UnavailableAfter:
		return StateSightingStale
	default:
		return StateSightingFresh
	}
}

// reportLocked evaluates the state and records it as the last reported
// one. changed is set when availability flipped.
func (t *Tracker) reportLocked(now time.Time, reason string) (Update, bool) {
	old := t.reported
	state := t.stateLocked(now)
	t.reported = state
	changed := old.Available() != state.Available()

	if old != state {
		t.events.Log(log.Event{
			Timestamp: now,
			Address:   t.address,
			Direction: log.DirectionNone,
			Layer:     log.LayerAvailability,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityAvailability,
				OldState: old.String(),
				NewState: state.String(),
				Reason:   reason,
			},
		})
	}
	if changed {
		t.metrics.SetAvailable(t.address, state.Available())
	}
	return Update{
		Address:   t.address,
		Available: state.Available(),
		State:     state,
		Reason:    reason,
		At:        now,
	}, changed
}

// armWatchdogLocked schedules a re-evaluation for when the last sighting
// crosses the threshold.
func (t *Tracker) armWatchdogLocked(now time.Time) {
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}
	if t.lastSeen.IsZero() {
		return
	}
	remaining := t.lastSeen.Add(t.config.UnavailableAfter).Sub(now)
	if remaining <= 0 {
		return
	}
	t.watchdog = t.clock.AfterFunc(remaining, t.checkStale)
}

func (t *Tracker) checkStale() {
	now := t.clock.Now()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.watchdog = nil
	age := now.Sub(t.lastSeen)
	u, changed := t.reportLocked(now, ReasonStale)
	t.mu.Unlock()

	if changed {
		if !u.Available {
			t.logger.Warn("device became unavailable", "lastSeenAgo", age.Round(100*time.Millisecond))
		}
		t.notify(u)
	}
}

func (t *Tracker) notify(u Update) {
	t.subMu.RLock()
	fns := make([]func(Update), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (t *Tracker) broadcastRefresh() {
	t.subMu.RLock()
	fns := make([]func(), 0, len(t.refreshers))
	for _, fn := range t.refreshers {
		fns = append(fns, fn)
	}
	t.subMu.RUnlock()

	t.logger.Info("forcing entity refresh after recovery", "entities", len(fns))
	t.refreshing.Add(1)
	go func() {
		defer t.refreshing.Done()
		for _, fn := range fns {
			fn()
		}
	}()
}

func (t *Tracker) metricsRecorder() *metrics.Recorder {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

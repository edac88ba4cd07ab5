package connection

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// ClockScheduler implements Scheduler on a clockwork.Clock, so tests can
// drive timers with a fake clock.
type ClockScheduler struct {
	clock clockwork.Clock
}

// NewScheduler returns a scheduler on clock. A nil clock uses real time.
func NewScheduler(clock clockwork.Clock) *ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockScheduler{clock: clock}
}

// CallLater runs fn on its own goroutine after d.
func (s *ClockScheduler) CallLater(d time.Duration, fn func()) func() {
	t := s.clock.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Now returns the scheduler's current time.
func (s *ClockScheduler) Now() time.Time {
	return s.clock.Now()
}

var _ Scheduler = (*ClockScheduler)(nil)

package connection

import (
	"sync"
	"time"
)

// SessionInfo describes the current session.
type SessionInfo struct {
	ID       string
	OpenedAt time.Time
	// IdleArmed is set while the linger timer is pending.
	IdleArmed bool
}

// slot holds the current handle and its idle timer. The handle can only be
// replaced through set or take, and both cancel a pending timer first.
type slot struct {
	mu       sync.Mutex
	handle   Handle
	id       string
	openedAt time.Time

	cancelIdle func()
	// gen invalidates timer callbacks that fire after being cancelled.
	gen uint64
}

func (s *slot) current() (Handle, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.id
}

func (s *slot) info() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{ID: s.id, OpenedAt: s.openedAt, IdleArmed: s.cancelIdle != nil}, true
}

// set installs h and returns the handle it replaced, if any.
func (s *slot) set(h Handle, id string, now time.Time) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	prev := s.handle
	s.handle, s.id, s.openedAt = h, id, now
	return prev
}

// take clears the slot and returns what it held.
func (s *slot) take() (Handle, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	h, id := s.handle, s.id
	s.handle, s.id, s.openedAt = nil, "", time.Time{}
	return h, id
}

func (s *slot) cancelTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *slot) cancelLocked() {
	s.gen++
	if s.cancelIdle != nil {
		s.cancelIdle()
		s.cancelIdle = nil
	}
}

// arm cancels any pending timer and, only if a handle is held, schedules
// fire after d. It reports whether a timer was armed.
func (s *slot) arm(sched Scheduler, d time.Duration, fire func(gen uint64)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	if s.handle == nil {
		return false
	}
	gen := s.gen
	s.cancelIdle = sched.CallLater(d, func() { fire(gen) })
	return true
}

// expire takes the handle if the timer of generation gen is still the
// current one.
func (s *slot) expire(gen uint64) (Handle, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cancelIdle == nil {
		return nil, "", false
	}
	s.cancelIdle = nil
	h, id := s.handle, s.id
	s.handle, s.id, s.openedAt = nil, "", time.Time{}
	return h, id, h != nil
}

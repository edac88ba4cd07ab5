package availability

import (
	"context"
	"sync"
)

// Signal is a one-shot completion signal. It is fired at most once, never
// resets and may be awaited by any number of readers.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unfired signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire signals all current and future waiters. It reports whether this
// call was the one that fired it.
func (s *Signal) Fire() bool {
	fired := false
	s.once.Do(func() {
		close(s.ch)
		fired = true
	})
	return fired
}

// Done returns a channel closed once the signal has fired.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Fired reports whether the signal has fired.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal fires or ctx ends, and reports whether it
// fired.
func (s *Signal) Wait(ctx context.Context) bool {
	select {
	case <-s.ch:
		return true
	case <-ctx.Done():
		return s.Fired()
	}
}

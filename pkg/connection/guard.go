package connection

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Guard is the per-device write lock. It is held for a whole
// resolve+connect+write sequence. Waiters are served in arrival order and
// leave the queue when their context ends.
type Guard struct {
	sem     *semaphore.Weighted
	held    atomic.Bool
	waiting atomic.Int32

	// acquired counts successful acquisitions.
	acquired atomic.Uint64

	onWait func(time.Duration)
}

// NewGuard returns an unlocked guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// OnWait sets a callback receiving the time spent waiting for each
// successful acquisition. Must be set before first use.
func (g *Guard) OnWait(fn func(time.Duration)) {
	g.onWait = fn
}

// Acquire blocks until the guard is held or ctx ends.
func (g *Guard) Acquire(ctx context.Context) error {
	start := time.Now()
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return err
	}
	g.held.Store(true)
	g.acquired.Add(1)
	if g.onWait != nil {
		g.onWait(time.Since(start))
	}
	return nil
}

// TryAcquire takes the guard only if it is free.
func (g *Guard) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.held.Store(true)
	g.acquired.Add(1)
	return true
}

// Release releases the guard. Releasing an unheld guard panics.
func (g *Guard) Release() {
	g.held.Store(false)
	g.sem.Release(1)
}

// Held reports whether some caller holds the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}

// Waiting returns the number of callers blocked in Acquire.
func (g *Guard) Waiting() int {
	return int(g.waiting.Load())
}

// Acquisitions returns the number of successful acquisitions so far.
func (g *Guard) Acquisitions() uint64 {
	return g.acquired.Load()
}

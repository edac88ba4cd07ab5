// Package eventbus fans device events out to live subscribers such as
// websocket clients.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type classifies an event.
type Type string

const (
	TypeAvailability Type = "availability"
	TypeSwitch       Type = "switch"
	TypeSession      Type = "session"
	TypeRefresh      Type = "refresh"
	TypeProxy        Type = "proxy"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Event is the JSON envelope delivered to subscribers.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address,omitempty"`
	Data      any       `json:"data,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Bus delivers every published event to all current subscribers. A
// subscriber whose buffer is full misses the event; Publish never blocks.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	buffer  int
	dropped atomic.Uint64
}

// New creates a bus with the given per-subscriber buffer. A non-positive
// buffer means DefaultBuffer.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish sends e to all subscribers. A zero timestamp is set to now.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of deliveries skipped for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

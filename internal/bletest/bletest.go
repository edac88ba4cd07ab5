// Package bletest provides in-memory fakes of the registry, transport and
// fast-path collaborators for tests.
package bletest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blelink/blelink-go/pkg/connection"
)

// Target is a static connection.Target.
type Target struct {
	Addr string
	Src  string
}

func (t Target) Address() string { return t.Addr }
func (t Target) Source() string  { return t.Src }

// Resolver is a map-backed connection.Resolver.
type Resolver struct {
	mu      sync.Mutex
	targets map[string]connection.Target
	calls   int
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{targets: make(map[string]connection.Target)}
}

// Set makes address resolve to t. A nil t removes the entry.
func (r *Resolver) Set(address string, t connection.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToUpper(address)
	if t == nil {
		delete(r.targets, key)
		return
	}
	r.targets[key] = t
}

// Resolve implements connection.Resolver.
func (r *Resolver) Resolve(_ context.Context, address string, _ bool) (connection.Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	t, ok := r.targets[strings.ToUpper(address)]
	return t, ok
}

// Calls returns the number of Resolve calls.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Write is one recorded characteristic write.
type Write struct {
	UUID         string
	Data         []byte
	WithResponse bool
}

// Transport is an instrumented connection.Transport. It tracks how many
// open or write operations run at the same time.
type Transport struct {
	mu sync.Mutex

	openErr       error
	openDelay     time.Duration
	writeErr      error
	writeDelay    time.Duration
	discoverErr   error
	disconnectErr error
	cached        bool

	opens       int
	discovers   int
	disconnects int
	writes      []Write
	handles     []*Handle

	inFlight    int
	maxInFlight int
}

// NewTransport returns a transport whose sessions arrive with a cached
// characteristic table.
func NewTransport() *Transport {
	return &Transport{cached: true}
}

// TransportError wraps msg as an expected transport failure.
func TransportError(msg string) error {
	return fmt.Errorf("%w: %s", connection.ErrTransportFailure, msg)
}

func (t *Transport) SetOpenError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

func (t *Transport) SetOpenDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openDelay = d
}

func (t *Transport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *Transport) SetWriteDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeDelay = d
}

func (t *Transport) SetDiscoverError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discoverErr = err
}

func (t *Transport) SetDisconnectError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnectErr = err
}

// SetCached controls whether new sessions report a known table.
func (t *Transport) SetCached(cached bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cached = cached
}

// Open implements connection.Transport.
func (t *Transport) Open(ctx context.Context, target connection.Target, _ string, _ bool) (connection.Handle, error) {
	t.enter()
	defer t.leave()

	t.mu.Lock()
	t.opens++
	delay, err, cached := t.openDelay, t.openErr, t.cached
	t.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	h := &Handle{transport: t, target: target, services: cached}
	h.connected.Store(true)

	t.mu.Lock()
	t.handles = append(t.handles, h)
	t.mu.Unlock()
	return h, nil
}

func (t *Transport) enter() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
}

func (t *Transport) leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight--
}

// Opens returns the number of Open calls.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// Discovers returns the number of explicit service discoveries.
func (t *Transport) Discovers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discovers
}

// Disconnects returns the number of Disconnect calls on live handles.
func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

// Writes returns the successful writes in order.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Write, len(t.writes))
	copy(out, t.writes)
	return out
}

// MaxInFlight returns the highest number of concurrent open/write calls seen.
func (t *Transport) MaxInFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInFlight
}

// LastHandle returns the most recently opened handle.
func (t *Transport) LastHandle() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handles) == 0 {
		return nil
	}
	return t.handles[len(t.handles)-1]
}

// Handle is a fake session.
type Handle struct {
	transport *Transport
	target    connection.Target
	connected atomic.Bool
	services  bool
	mu        sync.Mutex
}

// Target returns the target the handle was opened for.
func (h *Handle) Target() connection.Target {
	return h.target
}

// WriteCharacteristic implements connection.Handle.
func (h *Handle) WriteCharacteristic(ctx context.Context, uuid string, data []byte, withResponse bool) error {
	t := h.transport
	t.enter()
	defer t.leave()

	t.mu.Lock()
	delay, err := t.writeDelay, t.writeErr
	t.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return err
	}
	if !h.connected.Load() {
		return TransportError("not connected")
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.writes = append(t.writes, Write{UUID: uuid, Data: append([]byte(nil), data...), WithResponse: withResponse})
	t.mu.Unlock()
	return nil
}

func (h *Handle) IsConnected() bool {
	return h.connected.Load()
}

func (h *Handle) HasServices() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.services
}

func (h *Handle) DiscoverServices(ctx context.Context) error {
	t := h.transport
	t.mu.Lock()
	t.discovers++
	err := t.discoverErr
	t.mu.Unlock()
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.services = true
	h.mu.Unlock()
	return ctx.Err()
}

// Disconnect counts only disconnects of connected handles.
func (h *Handle) Disconnect(context.Context) error {
	t := h.transport
	t.mu.Lock()
	err := t.disconnectErr
	if h.connected.Load() {
		t.disconnects++
	}
	t.mu.Unlock()
	h.connected.Store(false)
	return err
}

// Drop simulates the peripheral dropping the link.
func (h *Handle) Drop() {
	h.connected.Store(false)
}

// FastPath is a scripted connection.FastPathWriter.
type FastPath struct {
	mu     sync.Mutex
	err    error
	block  bool
	calls  int
	writes []Write
}

// SetError makes later calls fail with err.
func (f *FastPath) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetBlock makes later calls wait for their context to end.
func (f *FastPath) SetBlock(block bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = block
}

// Calls returns the number of calls.
func (f *FastPath) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// WriteCharacteristic implements connection.FastPathWriter.
func (f *FastPath) WriteCharacteristic(ctx context.Context, _ connection.Target, uuid string, data []byte) error {
	f.mu.Lock()
	f.calls++
	err, block := f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", connection.ErrTransportFailure, ctx.Err())
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, Write{UUID: uuid, Data: append([]byte(nil), data...)})
	f.mu.Unlock()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ connection.Resolver       = (*Resolver)(nil)
	_ connection.Transport      = (*Transport)(nil)
	_ connection.Handle         = (*Handle)(nil)
	_ connection.FastPathWriter = (*FastPath)(nil)
	_ connection.Target         = Target{}
)

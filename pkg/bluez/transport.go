package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/blelink/blelink-go/pkg/connection"
)

// Defaults.
const (
	DefaultAdapter = "hci0"

	// DefaultPollInterval is how often Connected and ServicesResolved are
	// polled while waiting.
	DefaultPollInterval = 200 * time.Millisecond
)

// Config configures the transport.
type Config struct {
	// Adapter is used when a target's source is not a local adapter.
	Adapter string

	PollInterval time.Duration

	Logger *slog.Logger
}

// Transport opens GATT sessions through BlueZ. It implements
// connection.Transport.
//
// Link state of open handles follows Device1 PropertiesChanged signals, so
// Handle.IsConnected never waits on the bus.
type Transport struct {
	conn   *dbus.Conn
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	cache   map[string]map[string]dbus.ObjectPath // device path -> uuid -> char path
	handles map[dbus.ObjectPath]*Handle

	watchOnce sync.Once
	closeOnce sync.Once
	signals   chan *dbus.Signal
	done      chan struct{}
}

// NewTransport creates a transport on conn, usually dbus.SystemBus().
func NewTransport(conn *dbus.Conn, config Config) *Transport {
	if config.Adapter == "" {
		config.Adapter = DefaultAdapter
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{
		conn:    conn,
		config:  config,
		logger:  logger.With("adapter", config.Adapter),
		cache:   make(map[string]map[string]dbus.ObjectPath),
		handles: make(map[dbus.ObjectPath]*Handle),
		done:    make(chan struct{}),
	}
}

// Close stops following link state. Open handles keep their last state.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		ch := t.signals
		t.mu.Unlock()
		if ch != nil {
			t.conn.RemoveSignal(ch)
			_ = t.conn.RemoveMatchSignal(linkMatch...)
		}
		close(t.done)
	})
}

// linkMatch selects Device1 property changes.
var linkMatch = []dbus.MatchOption{
	dbus.WithMatchInterface(propertiesIface),
	dbus.WithMatchMember("PropertiesChanged"),
	dbus.WithMatchArg(0, deviceIface),
}

// watch subscribes to link state changes once per transport.
func (t *Transport) watch(ctx context.Context) {
	t.watchOnce.Do(func() {
		if err := t.conn.AddMatchSignalContext(context.WithoutCancel(ctx), linkMatch...); err != nil {
			t.logger.Warn("cannot follow link state, relying on write errors", "error", err)
			return
		}
		ch := make(chan *dbus.Signal, 32)
		t.conn.Signal(ch)
		t.mu.Lock()
		t.signals = ch
		t.mu.Unlock()
		go func() {
			for {
				select {
				case <-t.done:
					return
				case sig := <-ch:
					if sig != nil {
						t.handleSignal(sig)
					}
				}
			}
		}()
	})
}

// handleSignal marks the open handle of a device dropped when BlueZ
// reports Connected=false for it.
func (t *Transport) handleSignal(sig *dbus.Signal) {
	if sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != deviceIface {
		return
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, ok := changed["Connected"]
	if !ok {
		return
	}
	if up, _ := v.Value().(bool); up {
		return
	}
	t.mu.Lock()
	h := t.handles[sig.Path]
	t.mu.Unlock()
	if h != nil && h.connected.Swap(false) {
		h.logger.Info("link dropped")
	}
}

// track registers h as the open handle for its device.
func (t *Transport) track(h *Handle) {
	h.connected.Store(true)
	t.mu.Lock()
	t.handles[h.path] = h
	t.mu.Unlock()
}

func (t *Transport) untrack(h *Handle) {
	t.mu.Lock()
	if t.handles[h.path] == h {
		delete(t.handles, h.path)
	}
	t.mu.Unlock()
}

// adapterFor picks the adapter that saw target. Sources that are not local
// adapter names (proxy addresses) fall back to the configured adapter.
func (t *Transport) adapterFor(target connection.Target) string {
	src := target.Source()
	if strings.HasPrefix(src, "hci") {
		return src
	}
	return t.config.Adapter
}

// Open connects to target and waits until BlueZ reports the link up.
func (t *Transport) Open(ctx context.Context, target connection.Target, nameHint string, useCache bool) (connection.Handle, error) {
	path := DevicePath(t.adapterFor(target), target.Address())
	logger := t.logger.With("address", target.Address(), "name", nameHint)
	device := t.conn.Object(bluezService, path)
	t.watch(ctx)

	connected, err := property[bool](t.conn, path, deviceIface, "Connected")
	if err != nil {
		return nil, mapError("connect", err)
	}
	if !connected {
		logger.Debug("connecting", "path", path)
		if call := device.CallWithContext(ctx, deviceIface+".Connect", 0); call.Err != nil {
			return nil, mapError("connect", call.Err)
		}
		if err := t.waitProperty(ctx, path, "Connected"); err != nil {
			return nil, mapError("connect", err)
		}
	}

	h := &Handle{
		transport: t,
		path:      path,
		address:   target.Address(),
		logger:    logger,
		useCache:  useCache,
	}
	if useCache {
		t.mu.Lock()
		h.chars = t.cache[string(path)]
		t.mu.Unlock()
	}
	if h.chars == nil {
		if resolved, _ := property[bool](t.conn, path, deviceIface, "ServicesResolved"); resolved {
			// BlueZ already holds the table from an earlier connection.
			_ = h.index(ctx)
		}
	}
	t.track(h)
	logger.Debug("connected", "hasServices", h.HasServices())
	return h, nil
}

// ClearCache drops the cached characteristic tables.
func (t *Transport) ClearCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.cache)
}

// waitProperty polls a boolean Device1 property until it is true.
func (t *Transport) waitProperty(ctx context.Context, path dbus.ObjectPath, name string) error {
	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()
	for {
		v, err := property[bool](t.conn, path, deviceIface, name)
		if err != nil {
			return err
		}
		if v {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handle is an open BlueZ device session. It implements connection.Handle.
type Handle struct {
	transport *Transport
	path      dbus.ObjectPath
	address   string
	logger    *slog.Logger
	useCache  bool

	connected atomic.Bool

	mu     sync.Mutex
	chars  map[string]dbus.ObjectPath
	closed bool
}

// Path returns the device object path.
func (h *Handle) Path() dbus.ObjectPath { return h.path }

// IsConnected reports the link state last seen on the bus. It does not
// block.
func (h *Handle) IsConnected() bool {
	return h.connected.Load()
}

// HasServices reports whether the characteristic table is indexed.
func (h *Handle) HasServices() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chars) > 0
}

// DiscoverServices waits for ServicesResolved and indexes the
// characteristics.
func (h *Handle) DiscoverServices(ctx context.Context) error {
	if err := h.transport.waitProperty(ctx, h.path, "ServicesResolved"); err != nil {
		return mapError("discover", err)
	}
	if err := h.index(ctx); err != nil {
		return mapError("discover", err)
	}
	if !h.HasServices() {
		return fmt.Errorf("discover: %w: no characteristics", connection.ErrTransportFailure)
	}
	return nil
}

func (h *Handle) index(ctx context.Context) error {
	objs, err := getManagedObjects(ctx, h.transport.conn)
	if err != nil {
		return err
	}
	chars := characteristicsBelow(objs, h.path)
	h.mu.Lock()
	h.chars = chars
	h.mu.Unlock()
	if h.useCache && len(chars) > 0 {
		h.transport.mu.Lock()
		h.transport.cache[string(h.path)] = chars
		h.transport.mu.Unlock()
	}
	h.logger.Debug("indexed characteristics", "count", len(chars))
	return nil
}

// WriteCharacteristic writes data to the characteristic with uuid.
func (h *Handle) WriteCharacteristic(ctx context.Context, uuid string, data []byte, withResponse bool) error {
	h.mu.Lock()
	charPath, ok := h.chars[strings.ToLower(uuid)]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("write: %w: characteristic %s not found on %s", connection.ErrTransportFailure, uuid, h.address)
	}
	call := h.transport.conn.Object(bluezService, charPath).
		CallWithContext(ctx, gattCharIface+".WriteValue", 0, data, writeOptions(withResponse))
	if call.Err != nil {
		if errorName(call.Err) == errNotConnected {
			h.markClosed()
		}
		return mapError("write", call.Err)
	}
	return nil
}

// Disconnect disconnects the device. Calling it again is a no-op.
func (h *Handle) Disconnect(ctx context.Context) error {
	if !h.markClosed() {
		return nil
	}
	call := h.transport.conn.Object(bluezService, h.path).CallWithContext(ctx, deviceIface+".Disconnect", 0)
	if call.Err != nil && errorName(call.Err) != errNotConnected {
		return mapError("disconnect", call.Err)
	}
	return nil
}

// markClosed reports whether this call closed the handle.
func (h *Handle) markClosed() bool {
	h.connected.Store(false)
	h.mu.Lock()
	first := !h.closed
	h.closed = true
	h.mu.Unlock()
	if first {
		h.transport.untrack(h)
	}
	return first
}

var (
	_ connection.Transport = (*Transport)(nil)
	_ connection.Handle    = (*Handle)(nil)
)


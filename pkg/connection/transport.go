package connection

import (
	"context"
	"time"
)

// Target is an opaque, possibly stale reference to a reachable path to a
// device, as handed out by the registry. It may change between calls as the
// device moves between proxies.
type Target interface {
	// Address is the logical (hardware) address of the device.
	Address() string

	// Source identifies the adapter or proxy that last saw the device.
	Source() string
}

// Resolver locates a currently reachable target for an address.
type Resolver interface {
	Resolve(ctx context.Context, address string, connectable bool) (Target, bool)
}

// Transport opens sessions to targets.
//
// Expected failures (not found, connect error, timeout) must wrap
// ErrTransportFailure or ErrNotFound so the manager can classify them.
type Transport interface {
	Open(ctx context.Context, target Target, nameHint string, useCache bool) (Handle, error)
}

// Handle is an open transport session.
type Handle interface {
	WriteCharacteristic(ctx context.Context, uuid string, data []byte, withResponse bool) error
	IsConnected() bool

	// HasServices reports whether the characteristic table is known.
	HasServices() bool
	DiscoverServices(ctx context.Context) error

	// Disconnect is idempotent.
	Disconnect(ctx context.Context) error
}

// FastPathWriter is an optional host capability that writes a
// characteristic without the manager owning a session.
type FastPathWriter interface {
	WriteCharacteristic(ctx context.Context, target Target, uuid string, data []byte) error
}

// Scheduler runs a callback after a delay. The returned function cancels
// the callback if it has not fired yet.
type Scheduler interface {
	CallLater(d time.Duration, fn func()) (cancel func())
}

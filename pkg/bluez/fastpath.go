package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blelink/blelink-go/pkg/connection"
)

// errNoHostLink is returned when the host holds no usable link to the
// device. It wraps connection.ErrTransportFailure so the manager falls back
// to its own session.
var errNoHostLink = errors.New("no host connection")

// FastPath writes over a link the host already holds, for example one
// opened by another BlueZ client. It never connects. It implements
// connection.FastPathWriter.
type FastPath struct {
	transport *Transport
}

// NewFastPath creates a fast path sharing the transport's bus and cache.
func NewFastPath(t *Transport) *FastPath {
	return &FastPath{transport: t}
}

// WriteCharacteristic writes with response if the device is connected and
// its services are resolved.
func (f *FastPath) WriteCharacteristic(ctx context.Context, target connection.Target, uuid string, data []byte) error {
	t := f.transport
	path := DevicePath(t.adapterFor(target), target.Address())

	connected, err := property[bool](t.conn, path, deviceIface, "Connected")
	if err != nil {
		return mapError("fast path", err)
	}
	resolved, _ := property[bool](t.conn, path, deviceIface, "ServicesResolved")
	if !connected || !resolved {
		return fmt.Errorf("fast path: %w: %w", connection.ErrTransportFailure, errNoHostLink)
	}

	t.mu.Lock()
	chars := t.cache[string(path)]
	t.mu.Unlock()
	charPath, ok := chars[strings.ToLower(uuid)]
	if !ok {
		objs, err := getManagedObjects(ctx, t.conn)
		if err != nil {
			return mapError("fast path", err)
		}
		chars = characteristicsBelow(objs, path)
		charPath, ok = chars[strings.ToLower(uuid)]
		if !ok {
			return fmt.Errorf("fast path: %w: characteristic %s not found", connection.ErrTransportFailure, uuid)
		}
	}

	call := t.conn.Object(bluezService, charPath).
		CallWithContext(ctx, gattCharIface+".WriteValue", 0, data, writeOptions(true))
	if call.Err != nil {
		return mapError("fast path", call.Err)
	}
	return nil
}

var _ connection.FastPathWriter = (*FastPath)(nil)

package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/blelink/blelink-go/pkg/connection"
)

// D-Bus names.
const (
	bluezService      = "org.bluez"
	adapterIface      = "org.bluez.Adapter1"
	deviceIface       = "org.bluez.Device1"
	gattCharIface     = "org.bluez.GattCharacteristic1"
	objManagerIface   = "org.freedesktop.DBus.ObjectManager"
	propertiesIface   = "org.freedesktop.DBus.Properties"
	propertiesChanged = propertiesIface + ".PropertiesChanged"
	interfacesAdded   = objManagerIface + ".InterfacesAdded"
)

// BlueZ error names that mean the object is gone.
const (
	errDoesNotExist  = "org.bluez.Error.DoesNotExist"
	errUnknownObject = "org.freedesktop.DBus.Error.UnknownObject"
	errNotConnected  = "org.bluez.Error.NotConnected"
)

// managedObjects is the GetManagedObjects reply.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// DevicePath returns the object path of address on adapter.
// Example: ("hci0", "AA:BB:CC:DD:EE:FF") gives /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func DevicePath(adapter, address string) dbus.ObjectPath {
	dev := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath("/org/bluez/" + adapter + "/dev_" + dev)
}

// AdapterPath returns the object path of adapter.
func AdapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// AddressFromPath extracts the device address from a device object path or
// any path below it. It returns "" for paths without a dev_ element.
func AddressFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.Index(s, "/dev_")
	if idx < 0 {
		return ""
	}
	s = s[idx+5:]
	if end := strings.IndexByte(s, '/'); end >= 0 {
		s = s[:end]
	}
	return strings.ReplaceAll(s, "_", ":")
}

// AdapterFromPath extracts the adapter name from an object path.
func AdapterFromPath(p dbus.ObjectPath) string {
	s := strings.TrimPrefix(string(p), "/org/bluez/")
	if s == string(p) {
		return ""
	}
	if end := strings.IndexByte(s, '/'); end >= 0 {
		s = s[:end]
	}
	return s
}

// mapError classifies a D-Bus failure for the connection manager. Objects
// that no longer exist become connection.ErrNotFound, context errors are
// returned as is, everything else wraps connection.ErrTransportFailure.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch errorName(err) {
	case errDoesNotExist, errUnknownObject:
		return fmt.Errorf("%s: %w: %w", op, connection.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, connection.ErrTransportFailure, err)
}

// errorName returns the D-Bus error name carried by err, or "".
func errorName(err error) string {
	var v dbus.Error
	if errors.As(err, &v) {
		return v.Name
	}
	var p *dbus.Error
	if errors.As(err, &p) && p != nil {
		return p.Name
	}
	return ""
}

// property reads iface.name from the object at path.
func property[T any](conn *dbus.Conn, path dbus.ObjectPath, iface, name string) (T, error) {
	var zero T
	v, err := conn.Object(bluezService, path).GetProperty(iface + "." + name)
	if err != nil {
		return zero, err
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, name, v.Value())
	}
	return val, nil
}

func getManagedObjects(ctx context.Context, conn *dbus.Conn) (managedObjects, error) {
	var objs managedObjects
	call := conn.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode managed objects: %w", err)
	}
	return objs, nil
}

// characteristicsBelow indexes the characteristics under device by
// lower-case UUID.
func characteristicsBelow(objs managedObjects, device dbus.ObjectPath) map[string]dbus.ObjectPath {
	prefix := string(device) + "/"
	chars := make(map[string]dbus.ObjectPath)
	for path, ifaces := range objs {
		props, ok := ifaces[gattCharIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		u, ok := v.Value().(string)
		if !ok {
			continue
		}
		chars[strings.ToLower(u)] = path
	}
	return chars
}

// writeOptions returns the WriteValue options for the write type.
func writeOptions(withResponse bool) map[string]dbus.Variant {
	typ := "command"
	if withResponse {
		typ = "request"
	}
	return map[string]dbus.Variant{"type": dbus.MakeVariant(typ)}
}

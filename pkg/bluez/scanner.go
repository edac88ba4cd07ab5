package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"

	"github.com/blelink/blelink-go/pkg/sighting"
)

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Adapter string

	// ServiceUUIDs narrows the discovery filter. Empty means all devices.
	ServiceUUIDs []string

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Scanner turns BlueZ discovery results into sightings.
type Scanner struct {
	conn   *dbus.Conn
	config ScannerConfig
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]string
}

// NewScanner creates a scanner on conn.
func NewScanner(conn *dbus.Conn, config ScannerConfig) *Scanner {
	if config.Adapter == "" {
		config.Adapter = DefaultAdapter
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		conn:   conn,
		config: config,
		logger: logger.With("adapter", config.Adapter),
		names:  make(map[string]string),
	}
}

// Run starts LE discovery and delivers sightings to sink until ctx is
// cancelled. Discovery is stopped on return.
func (s *Scanner) Run(ctx context.Context, sink func(sighting.Sighting)) error {
	adapter := s.conn.Object(bluezService, AdapterPath(s.config.Adapter))

	if call := adapter.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, discoveryFilter(s.config.ServiceUUIDs)); call.Err != nil {
		return fmt.Errorf("set discovery filter: %w", call.Err)
	}

	sigCh := make(chan *dbus.Signal, 64)
	s.conn.Signal(sigCh)
	defer s.conn.RemoveSignal(sigCh)

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(objManagerIface), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchInterface(propertiesIface), dbus.WithMatchMember("PropertiesChanged"), dbus.WithMatchArg(0, deviceIface)},
	}
	for _, m := range matches {
		if err := s.conn.AddMatchSignalContext(ctx, m...); err != nil {
			return fmt.Errorf("add match: %w", err)
		}
		defer func(m []dbus.MatchOption) { _ = s.conn.RemoveMatchSignal(m...) }(m)
	}

	if call := adapter.CallWithContext(ctx, adapterIface+".StartDiscovery", 0); call.Err != nil {
		return fmt.Errorf("start discovery: %w", call.Err)
	}
	defer adapter.Call(adapterIface+".StopDiscovery", 0)
	s.logger.Info("scanning started")

	if objs, err := getManagedObjects(ctx, s.conn); err == nil {
		for path, ifaces := range objs {
			s.rememberName(path, ifaces[deviceIface])
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanning stopped")
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				return fmt.Errorf("dbus signal channel closed")
			}
			if sg, ok := s.translate(sig); ok {
				sink(sg)
			}
		}
	}
}

// translate converts a signal into a sighting when it carries a fresh
// advertisement from a device below the scanned adapter.
func (s *Scanner) translate(sig *dbus.Signal) (sighting.Sighting, bool) {
	now := s.config.Clock.Now()
	switch sig.Name {
	case interfacesAdded:
		if len(sig.Body) < 2 {
			return sighting.Sighting{}, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		props, ok := ifaces[deviceIface]
		if !ok || AdapterFromPath(path) != s.config.Adapter {
			return sighting.Sighting{}, false
		}
		s.rememberName(path, props)
		return sightingFromProps(s.config.Adapter, path, props, s.name(path), now)

	case propertiesChanged:
		if len(sig.Body) < 2 || AdapterFromPath(sig.Path) != s.config.Adapter {
			return sighting.Sighting{}, false
		}
		if iface, _ := sig.Body[0].(string); iface != deviceIface {
			return sighting.Sighting{}, false
		}
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		s.rememberName(sig.Path, changed)
		return sightingFromProps(s.config.Adapter, sig.Path, changed, s.name(sig.Path), now)
	}
	return sighting.Sighting{}, false
}

func (s *Scanner) rememberName(path dbus.ObjectPath, props map[string]dbus.Variant) {
	if props == nil {
		return
	}
	name := stringProp(props, "Name")
	if name == "" {
		name = stringProp(props, "Alias")
	}
	if name == "" {
		return
	}
	s.mu.Lock()
	s.names[string(path)] = name
	s.mu.Unlock()
}

func (s *Scanner) name(path dbus.ObjectPath) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[string(path)]
}

// sightingFromProps builds a sighting from Device1 properties. Only an RSSI
// reading marks a received advertisement; cached properties alone do not.
func sightingFromProps(adapter string, path dbus.ObjectPath, props map[string]dbus.Variant, name string, at time.Time) (sighting.Sighting, bool) {
	v, ok := props["RSSI"]
	if !ok {
		return sighting.Sighting{}, false
	}
	rssi, ok := v.Value().(int16)
	if !ok {
		return sighting.Sighting{}, false
	}
	addr := stringProp(props, "Address")
	if addr == "" {
		addr = AddressFromPath(path)
	}
	if addr == "" {
		return sighting.Sighting{}, false
	}
	if n := stringProp(props, "Name"); n != "" {
		name = n
	}
	return sighting.Sighting{
		Timestamp:   at,
		Address:     addr,
		Source:      adapter,
		Name:        name,
		RSSI:        rssi,
		Connectable: true,
	}, true
}

func stringProp(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func discoveryFilter(uuids []string) map[string]dbus.Variant {
	f := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}
	if len(uuids) > 0 {
		f["UUIDs"] = dbus.MakeVariant(uuids)
	}
	return f
}

package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/blelink/blelink-go/pkg/availability"
	"github.com/blelink/blelink-go/pkg/config"
	"github.com/blelink/blelink-go/pkg/connection"
	"github.com/blelink/blelink-go/pkg/eventbus"
	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/metrics"
	"github.com/blelink/blelink-go/pkg/persistence"
	"github.com/blelink/blelink-go/pkg/registry"
	"github.com/blelink/blelink-go/pkg/sighting"
	"github.com/blelink/blelink-go/pkg/switches"
)

// Errors.
var (
	// ErrNotReady is returned by Setup when no advertisement arrived within
	// the ready timeout. The caller may retry setup later.
	ErrNotReady = errors.New("device not ready")

	// ErrUnknownDevice is returned for an address that is not configured.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrUnknownSwitch is returned for a switch id that does not exist.
	ErrUnknownSwitch = errors.New("unknown switch")
)

// DefaultReadyTimeout bounds the wait for the first advertisement.
const DefaultReadyTimeout = availability.DefaultStartupTimeout

// Characteristic is one writable characteristic exposed as a switch.
type Characteristic struct {
	Name string
	UUID string
}

// Config describes one device.
type Config struct {
	Address      string
	Name         string
	Manufacturer string
	Model        string

	Linger           time.Duration
	UnavailableAfter time.Duration
	ReadyTimeout     time.Duration

	Characteristics []Characteristic
}

// ConfigFrom converts a normalized device configuration.
func ConfigFrom(d config.Device) Config {
	c := Config{
		Address:          d.MACAddress,
		Name:             d.Name,
		Manufacturer:     d.Manufacturer,
		Model:            d.Model,
		Linger:           d.DisconnectDelay.D(),
		UnavailableAfter: d.UnavailableAfter.D(),
	}
	for _, ch := range d.Characteristics {
		c.Characteristics = append(c.Characteristics, Characteristic{Name: ch.Name, UUID: ch.UUID})
	}
	return c
}

// Options carries the collaborators shared by all devices.
type Options struct {
	// Resolver and Registry are usually the same *registry.Registry.
	Resolver connection.Resolver
	Registry sighting.TargetUpdater

	Transport connection.Transport

	// FastPath is optional.
	FastPath connection.FastPathWriter

	// Store persists switch states. Optional.
	Store persistence.Store

	// Names resolves sighting sources to proxy names. Optional.
	Names sighting.Namer

	// Events is the protocol log. Optional.
	Events log.Logger

	// Metrics is optional.
	Metrics *metrics.Recorder

	// Bus receives live events. Optional.
	Bus *eventbus.Bus

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Status is a point-in-time snapshot of a device.
type Status struct {
	Address      string                 `json:"address"`
	Name         string                 `json:"name"`
	Available    bool                   `json:"available"`
	State        string                 `json:"state"`
	Distrusted   bool                   `json:"distrusted"`
	LastSeen     time.Time              `json:"lastSeen,omitzero"`
	Ready        bool                   `json:"ready"`
	Session      SessionStatus          `json:"session"`
	FastPath     bool                   `json:"fastPath"`
	Switches     []switches.State       `json:"switches"`
	Sources      []sighting.SourceStats `json:"sources"`
	Observations []registry.Observation `json:"observations,omitempty"`
}

// SessionStatus describes the connection session of a device.
type SessionStatus struct {
	State     string    `json:"state"`
	ID        string    `json:"id,omitempty"`
	OpenedAt  time.Time `json:"openedAt,omitzero"`
	IdleArmed bool      `json:"idleArmed"`
	Waiting   int       `json:"waiting"`
}

// Device is one configured peripheral with its session, availability and
// switches.
type Device struct {
	config Config
	opts   Options
	logger *slog.Logger
	clock  clockwork.Clock

	manager  *connection.Manager
	tracker  *availability.Tracker
	listener *sighting.Listener
	switches []*switches.Switch

	unsub []func()
}

// New builds the device. Nothing touches the transport until the first
// write.
func New(cfg Config, opts Options) (*Device, error) {
	if cfg.Address == "" {
		return nil, errors.New("device: address is required")
	}
	if opts.Resolver == nil || opts.Transport == nil {
		return nil, errors.New("device: resolver and transport are required")
	}
	cfg.Address = registry.NormalizeAddress(cfg.Address)
	if cfg.Name == "" {
		cfg.Name = "BLE Device " + cfg.Address
	}
	if cfg.Linger <= 0 {
		cfg.Linger = connection.DefaultLinger
	}
	if cfg.UnavailableAfter <= 0 {
		cfg.UnavailableAfter = availability.DefaultUnavailableAfter
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	events := log.OrNoop(opts.Events)

	d := &Device{
		config: cfg,
		opts:   opts,
		logger: logger.With("address", cfg.Address),
		clock:  opts.Clock,
	}

	availCfg := availability.DefaultConfig()
	availCfg.UnavailableAfter = cfg.UnavailableAfter
	availCfg.StartupTimeout = cfg.ReadyTimeout
	availCfg.Clock = opts.Clock
	availCfg.Logger = logger
	if err := availCfg.ValidateLinger(cfg.Linger); err != nil {
		return nil, err
	}

	connCfg := connection.DefaultConfig()
	connCfg.NameHint = cfg.Name
	connCfg.Linger = cfg.Linger
	connCfg.FastPath = opts.FastPath
	connCfg.Scheduler = connection.NewScheduler(opts.Clock)
	connCfg.Logger = logger
	manager, err := connection.NewManager(cfg.Address, opts.Resolver, opts.Transport, connCfg)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", cfg.Address, err)
	}
	manager.SetEventLogger(events)
	manager.SetMetrics(opts.Metrics)
	d.manager = manager

	tracker, err := availability.NewTracker(cfg.Address, manager, availCfg)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", cfg.Address, err)
	}
	tracker.SetEventLogger(events)
	tracker.SetMetrics(opts.Metrics)
	d.tracker = tracker

	manager.OnStateChange(d.onSessionState)

	d.listener = sighting.NewListener(cfg.Address, tracker, sighting.Config{
		Registry: opts.Registry,
		Names:    opts.Names,
		Clock:    opts.Clock,
		Logger:   logger,
	})
	d.listener.SetEventLogger(events)
	d.listener.SetMetrics(opts.Metrics)

	var store switches.StateStore
	if opts.Store != nil {
		store = opts.Store
	}
	for _, ch := range cfg.Characteristics {
		sw, err := switches.New(manager, tracker, switches.Config{
			Address:      cfg.Address,
			DeviceName:   cfg.Name,
			Manufacturer: cfg.Manufacturer,
			Model:        cfg.Model,
			Name:         ch.Name,
			UUID:         ch.UUID,
			Store:        store,
			Logger:       logger,
		})
		if err != nil {
			tracker.Close()
			return nil, fmt.Errorf("device %s: %w", cfg.Address, err)
		}
		if _, dup := d.Switch(sw.ID()); dup {
			tracker.Close()
			return nil, fmt.Errorf("device %s: characteristic %s: duplicate switch id %s", cfg.Address, ch.UUID, sw.ID())
		}
		sw.SetEventLogger(events)
		sw.Bind(tracker)
		sw.OnRender(d.publishSwitch)
		d.switches = append(d.switches, sw)
	}

	d.unsub = append(d.unsub,
		tracker.Subscribe(d.publishAvailability),
		tracker.SubscribeRefresh(func() {
			d.publish(eventbus.TypeRefresh, nil)
		}),
	)
	return d, nil
}

// Setup waits for the first advertisement and restores switch states.
// It returns ErrNotReady if none arrives within the ready timeout.
func (d *Device) Setup(ctx context.Context) error {
	d.logger.Info("waiting for advertisement", "timeout", d.config.ReadyTimeout)
	if !d.tracker.WaitReady(ctx, d.config.ReadyTimeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: no advertisement from %s within %s", ErrNotReady, d.config.Address, d.config.ReadyTimeout)
	}

	keep := make([]string, 0, len(d.switches))
	for _, sw := range d.switches {
		if err := sw.Restore(); err != nil {
			d.logger.Warn("failed to restore switch state", "switch", sw.Name(), "error", err)
		}
		keep = append(keep, sw.ID())
	}
	if d.opts.Store != nil {
		if n, err := d.opts.Store.Prune(d.config.Address, keep); err != nil {
			d.logger.Warn("failed to prune stale switch states", "error", err)
		} else if n > 0 {
			d.logger.Info("pruned stale switch states", "count", n)
		}
	}
	for _, sw := range d.switches {
		sw.Render()
	}
	d.logger.Info("device ready", "switches", len(d.switches))
	return nil
}

// Close unsubscribes the switches, stops the availability watchdog and
// closes the session.
func (d *Device) Close(ctx context.Context) error {
	for _, sw := range d.switches {
		sw.Close()
	}
	for _, fn := range d.unsub {
		fn()
	}
	d.unsub = nil
	err := d.manager.Close(ctx)
	d.tracker.Close()
	return err
}

// HandleSighting feeds one advertisement to the device. Sightings of other
// addresses are ignored.
func (d *Device) HandleSighting(s sighting.Sighting) bool {
	return d.listener.Handle(s)
}

func (d *Device) Address() string                { return d.config.Address }
func (d *Device) Name() string                   { return d.config.Name }
func (d *Device) Manager() *connection.Manager   { return d.manager }
func (d *Device) Tracker() *availability.Tracker { return d.tracker }
func (d *Device) Switches() []*switches.Switch   { return d.switches }
func (d *Device) Listener() *sighting.Listener   { return d.listener }

// Switch returns the switch with the given id.
func (d *Device) Switch(id string) (*switches.Switch, bool) {
	for _, sw := range d.switches {
		if sw.ID() == id {
			return sw, true
		}
	}
	return nil, false
}

// Status returns a snapshot of the device.
func (d *Device) Status() Status {
	now := d.clock.Now()
	st := Status{
		Address:    d.config.Address,
		Name:       d.config.Name,
		Available:  d.tracker.AvailableAt(now),
		State:      d.tracker.StateAt(now).String(),
		Distrusted: d.tracker.Distrusted(),
		LastSeen:   d.tracker.LastSeen(),
		Ready:      d.tracker.Ready().Fired(),
		FastPath:   d.manager.HasFastPath(),
		Session: SessionStatus{
			State:   d.manager.State().String(),
			Waiting: d.manager.Guard().Waiting(),
		},
		Sources: d.listener.Stats(),
	}
	if info, ok := d.manager.Session(); ok {
		st.Session.ID = info.ID
		st.Session.OpenedAt = info.OpenedAt
		st.Session.IdleArmed = info.IdleArmed
	}
	if reg, ok := d.opts.Resolver.(*registry.Registry); ok {
		st.Observations = reg.Observations(d.config.Address)
	}
	st.Switches = make([]switches.State, 0, len(d.switches))
	for _, sw := range d.switches {
		st.Switches = append(st.Switches, sw.Snapshot())
	}
	return st
}

func (d *Device) onSessionState(oldState, newState connection.State) {
	switch {
	case newState == connection.StateConnected:
		d.tracker.OnSessionLive()
	case oldState == connection.StateConnected:
		d.tracker.OnSessionEnded()
	}
	d.publish(eventbus.TypeSession, map[string]string{
		"from": oldState.String(),
		"to":   newState.String(),
	})
}

func (d *Device) publishAvailability(u availability.Update) {
	d.publish(eventbus.TypeAvailability, map[string]any{
		"available": u.Available,
		"state":     u.State.String(),
		"reason":    u.Reason,
		"recovered": u.Recovered,
	})
}

func (d *Device) publishSwitch(st switches.State) {
	d.publish(eventbus.TypeSwitch, st)
}

func (d *Device) publish(t eventbus.Type, data any) {
	if d.opts.Bus == nil {
		return
	}
	d.opts.Bus.Publish(eventbus.Event{
		Type:      t,
		Timestamp: d.clock.Now(),
		Address:   d.config.Address,
		Data:      data,
	})
}

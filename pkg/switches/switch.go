// Package switches exposes writable characteristics as on/off switches.
package switches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blelink/blelink-go/pkg/availability"
	"github.com/blelink/blelink-go/pkg/connection"
	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/persistence"
)

// ErrUnavailable is the user-visible error for a switch whose device is
// not available. Write failures caused by an unreachable device match
// both ErrUnavailable and connection.ErrDeviceUnreachable.
var ErrUnavailable = errors.New("device not available")

// Payloads written for on and off.
var (
	PayloadOn  = []byte{0x01}
	PayloadOff = []byte{0x00}
)

// Device info defaults.
const (
	DefaultManufacturer = "Custom BLE"
	DefaultModel        = "BLE Device"
)

const bluetoothBase = "-0000-1000-8000-00805f9b34fb"

// Writer performs characteristic writes. *connection.Manager implements it.
type Writer interface {
	Write(ctx context.Context, charUUID string, data []byte) error
}

// Availability is the device availability the switch reflects.
// *availability.Tracker implements it.
type Availability interface {
	Available() bool
	MarkWriteFailed()
}

// UpdateSource delivers availability updates and refresh broadcasts.
// *availability.Tracker implements it.
type UpdateSource interface {
	Subscribe(fn func(availability.Update)) func()
	SubscribeRefresh(fn func()) func()
}

// StateStore persists the last rendered state.
type StateStore interface {
	Load(id string) (persistence.EntityState, bool, error)
	Save(state persistence.EntityState) error
}

// DeviceInfo describes the device a switch belongs to.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// State is a rendered snapshot of a switch.
type State struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Device    string    `json:"device"`
	UUID      string    `json:"uuid"`
	On        bool      `json:"on"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Config describes one switch.
type Config struct {
	// Address is the device hardware address.
	Address string

	// DeviceName defaults to "BLE Device <address>".
	DeviceName   string
	Manufacturer string
	Model        string

	// Name is the characteristic display name.
	Name string

	// UUID is the characteristic UUID.
	UUID string

	// Store persists rendered state. Optional.
	Store StateStore

	Logger *slog.Logger
}

// Switch maps on/off intents to single-byte writes.
type Switch struct {
	id     string
	name   string
	uuid   string
	info   DeviceInfo
	writer Writer
	avail  Availability
	store  StateStore
	logger *slog.Logger

	mu        sync.RWMutex
	on        bool
	updatedAt time.Time
	events    log.Logger

	renderMu  sync.RWMutex
	nextID    int
	renderers map[int]func(State)
	unbind    []func()
}

// New creates a switch.
func New(writer Writer, avail Availability, config Config) (*Switch, error) {
	if writer == nil || avail == nil {
		return nil, errors.New("switches: writer and availability are required")
	}
	if config.Address == "" || config.UUID == "" {
		return nil, errors.New("switches: address and uuid are required")
	}
	info := DeviceInfo{
		Identifier:   strings.ToUpper(config.Address),
		Name:         config.DeviceName,
		Manufacturer: config.Manufacturer,
		Model:        config.Model,
	}
	if info.Name == "" {
		info.Name = "BLE Device " + info.Identifier
	}
	if info.Manufacturer == "" {
		info.Manufacturer = DefaultManufacturer
	}
	if info.Model == "" {
		info.Model = DefaultModel
	}

	s := &Switch{
		id:        UniqueID(config.Address, config.UUID),
		name:      strings.TrimSpace(info.Name + " " + config.Name),
		uuid:      strings.ToLower(config.UUID),
		info:      info,
		writer:    writer,
		avail:     avail,
		store:     config.Store,
		logger:    config.Logger,
		events:    log.NoopLogger{},
		renderers: make(map[int]func(State)),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("address", info.Identifier, "entity", s.id)
	return s, nil
}

// UniqueID returns the stable id of the switch for characteristic uuid on
// the device at address: the address without colons in lower case, an
// underscore and the uuid without dashes. UUIDs on the Bluetooth base are
// shortened to their leading assigned number.
func UniqueID(address, uuid string) string {
	mac := strings.ToLower(strings.ReplaceAll(address, ":", ""))
	u := strings.ToLower(uuid)
	if short, ok := strings.CutSuffix(u, bluetoothBase); ok {
		u = short
	}
	return mac + "_" + strings.ReplaceAll(u, "-", "")
}

// SetEventLogger sets the device event logger.
func (s *Switch) SetEventLogger(l log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = log.OrNoop(l)
}

func (s *Switch) ID() string             { return s.id }
func (s *Switch) Name() string           { return s.name }
func (s *Switch) UUID() string           { return s.uuid }
func (s *Switch) DeviceInfo() DeviceInfo { return s.info }

// IsOn returns the last successfully written state.
func (s *Switch) IsOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.on
}

// Available reports the device availability.
func (s *Switch) Available() bool {
	return s.avail.Available()
}

// Snapshot returns the current rendered state.
func (s *Switch) Snapshot() State {
	s.mu.RLock()
	on, at := s.on, s.updatedAt
	s.mu.RUnlock()
	return State{
		ID:        s.id,
		Name:      s.name,
		Device:    s.info.Identifier,
		UUID:      s.uuid,
		On:        on,
		Available: s.avail.Available(),
		UpdatedAt: at,
	}
}

// TurnOn writes 0x01.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.Set(ctx, true)
}

// TurnOff writes 0x00.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.Set(ctx, false)
}

// Set writes the payload for on. An unavailable device fails fast with
// ErrUnavailable without a write. An unreachable device distrusts the
// device for every switch sharing it. Other errors are returned unchanged.
func (s *Switch) Set(ctx context.Context, on bool) error {
	action := "turn off"
	payload := PayloadOff
	if on {
		action = "turn on"
		payload = PayloadOn
	}

	if !s.avail.Available() {
		s.logger.Warn("cannot "+action+", device reports unavailable", "switch", s.name)
		s.logError(ErrUnavailable, action)
		return fmt.Errorf("%w: %s", ErrUnavailable, s.info.Identifier)
	}

	s.logger.Debug("writing", "switch", s.name, "action", action, "uuid", s.uuid)
	if err := s.writer.Write(ctx, s.uuid, payload); err != nil {
		if connection.IsUnreachable(err) {
			s.logger.Error("device not available", "switch", s.name, "action", action, "error", err)
			s.avail.MarkWriteFailed()
			s.logError(err, action)
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		s.logger.Error("unexpected write error", "switch", s.name, "action", action, "error", err)
		s.logError(err, action)
		return err
	}
	s.logger.Info("switch "+action+" succeeded", "switch", s.name)

	s.record(on, "command")
	return nil
}

// Restore loads the last rendered state from the store. A missing store or
// record is not an error.
func (s *Switch) Restore() error {
	if s.store == nil {
		return nil
	}
	st, ok, err := s.store.Load(s.id)
	if err != nil {
		return fmt.Errorf("restore %s: %w", s.id, err)
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.on, s.updatedAt = st.On, st.UpdatedAt
	s.mu.Unlock()
	s.logger.Debug("restored state", "switch", s.name, "on", st.On)
	return nil
}

// OnRender registers fn to receive rendered states and returns a function
// that removes it.
func (s *Switch) OnRender(fn func(State)) func() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	id := s.nextID
	s.nextID++
	s.renderers[id] = fn
	return func() {
		s.renderMu.Lock()
		defer s.renderMu.Unlock()
		delete(s.renderers, id)
	}
}

// Render pushes the current state to render subscribers.
func (s *Switch) Render() {
	st := s.Snapshot()
	s.renderMu.RLock()
	fns := make([]func(State), 0, len(s.renderers))
	for _, fn := range s.renderers {
		fns = append(fns, fn)
	}
	s.renderMu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Bind re-renders the switch on every availability update and refresh
// broadcast of src. Close undoes it.
func (s *Switch) Bind(src UpdateSource) {
	unsub := src.Subscribe(func(u availability.Update) {
		s.logger.Debug("availability update", "switch", s.name, "available", u.Available, "reason", u.Reason)
		s.Render()
	})
	unrefresh := src.SubscribeRefresh(s.Render)

	s.renderMu.Lock()
	s.unbind = append(s.unbind, unsub, unrefresh)
	s.renderMu.Unlock()
}

// Close removes all bindings and render subscribers.
func (s *Switch) Close() {
	s.renderMu.Lock()
	unbind := s.unbind
	s.unbind = nil
	clear(s.renderers)
	s.renderMu.Unlock()
	for _, fn := range unbind {
		fn()
	}
}

func (s *Switch) record(on bool, reason string) {
	now := time.Now()
	s.mu.Lock()
	old := s.on
	s.on, s.updatedAt = on, now
	events := s.events
	s.mu.Unlock()

	if s.store != nil {
		err := s.store.Save(persistence.EntityState{
			UniqueID:  s.id,
			Device:    s.info.Identifier,
			On:        on,
			UpdatedAt: now,
		})
		if err != nil {
			s.logger.Warn("failed to persist switch state", "error", err)
		}
	}
	events.Log(log.Event{
		Timestamp: now,
		Address:   s.info.Identifier,
		Direction: log.DirectionNone,
		Layer:     log.LayerEntity,
		Category:  log.CategoryState,
		Entity:    s.id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySwitch,
			OldState: onOff(old),
			NewState: onOff(on),
			Reason:   reason,
		},
	})
	s.Render()
}

func (s *Switch) logError(err error, action string) {
	s.mu.RLock()
	events := s.events
	s.mu.RUnlock()
	events.Log(log.Event{
		Timestamp: time.Now(),
		Address:   s.info.Identifier,
		Direction: log.DirectionNone,
		Layer:     log.LayerEntity,
		Category:  log.CategoryError,
		Entity:    s.id,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEntity,
			Message: err.Error(),
			Context: action,
		},
	})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

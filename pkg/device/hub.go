package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/blelink/blelink-go/pkg/registry"
	"github.com/blelink/blelink-go/pkg/sighting"
	"github.com/blelink/blelink-go/pkg/switches"
)

// Hub holds the configured devices and routes sightings to them.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
	ready   map[string]bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger:  logger,
		devices: make(map[string]*Device),
		ready:   make(map[string]bool),
	}
}

// Add registers d. Adding a second device with the same address fails.
func (h *Hub) Add(d *Device) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.devices[d.Address()]; ok {
		return fmt.Errorf("device %s already added", d.Address())
	}
	h.devices[d.Address()] = d
	h.order = append(h.order, d.Address())
	return nil
}

// HandleSighting routes s to the device it names. Reports whether a
// configured device took it.
func (h *Hub) HandleSighting(s sighting.Sighting) bool {
	h.mu.RLock()
	d, ok := h.devices[registry.NormalizeAddress(s.Address)]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return d.HandleSighting(s)
}

// Run feeds sightings from feed until ctx ends or feed is closed.
func (h *Hub) Run(ctx context.Context, feed <-chan sighting.Sighting) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-feed:
			if !ok {
				return nil
			}
			h.HandleSighting(s)
		}
	}
}

// Setup runs Setup on every device concurrently. Devices that are not
// ready are reported in the joined error and can be retried with
// SetupDevice.
func (h *Hub) Setup(ctx context.Context) error {
	devices := h.Devices()
	errs := make([]error, len(devices))
	var wg sync.WaitGroup
	for i, d := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.SetupDevice(ctx, d.Address())
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// SetupDevice runs Setup on one device.
func (h *Hub) SetupDevice(ctx context.Context, address string) error {
	d, ok := h.Device(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}
	if err := d.Setup(ctx); err != nil {
		h.logger.Warn("device setup failed", "address", d.Address(), "error", err)
		return err
	}
	h.mu.Lock()
	h.ready[d.Address()] = true
	h.mu.Unlock()
	return nil
}

// Ready reports whether Setup succeeded for the device at address.
func (h *Hub) Ready(address string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready[registry.NormalizeAddress(address)]
}

// Device returns the device at address.
func (h *Hub) Device(address string) (*Device, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.devices[registry.NormalizeAddress(address)]
	return d, ok
}

// Devices returns the devices in the order they were added.
func (h *Hub) Devices() []*Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Device, 0, len(h.order))
	for _, addr := range h.order {
		out = append(out, h.devices[addr])
	}
	return out
}

// Switch finds a switch by id across all devices.
func (h *Hub) Switch(id string) (*switches.Switch, *Device, bool) {
	for _, d := range h.Devices() {
		if sw, ok := d.Switch(id); ok {
			return sw, d, true
		}
	}
	return nil, nil, false
}

// Switches returns every switch sorted by name.
func (h *Hub) Switches() []*switches.Switch {
	var out []*switches.Switch
	for _, d := range h.Devices() {
		out = append(out, d.Switches()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Statuses returns the status of every device.
func (h *Hub) Statuses() []Status {
	devices := h.Devices()
	out := make([]Status, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Status())
	}
	return out
}

// Close closes every device.
func (h *Hub) Close(ctx context.Context) error {
	var errs []error
	for _, d := range h.Devices() {
		if err := d.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d.Address(), err))
		}
	}
	return errors.Join(errs...)
}

// Package registry tracks which sources (local adapters or proxies) have
// recently seen each device and resolves an address to the best current
// connection target.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/blelink/blelink-go/pkg/connection"
)

// DefaultStaleAfter is how long an observation keeps resolving after the
// source last reported the device.
const DefaultStaleAfter = 195 * time.Second

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid registry config")

// Observation is the latest report of a device by one source.
type Observation struct {
	Address     string    `json:"address"`
	Source      string    `json:"source"`
	Name        string    `json:"name,omitempty"`
	RSSI        int16     `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Seen        time.Time `json:"seen"`
}

// Target is a resolved connection target.
type Target struct {
	address string
	source  string
	rssi    int16
}

// Address returns the device address.
func (t Target) Address() string { return t.address }

// Source returns the adapter or proxy that can reach the device.
func (t Target) Source() string { return t.source }

// RSSI returns the signal strength of the observation the target came from.
func (t Target) RSSI() int16 { return t.rssi }

// Config configures a Registry.
type Config struct {
	StaleAfter time.Duration
	Clock      clockwork.Clock
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{StaleAfter: DefaultStaleAfter}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StaleAfter <= 0 {
		return fmt.Errorf("%w: stale window must be positive", ErrInvalidConfig)
	}
	return nil
}

// Registry is safe for concurrent use.
type Registry struct {
	config Config
	clock  clockwork.Clock

	mu sync.RWMutex
	// address -> source -> observation
	entries map[string]map[string]Observation
}

// New creates a registry.
func New(config Config) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		config:  config,
		clock:   config.Clock,
		entries: make(map[string]map[string]Observation),
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	return r, nil
}

// NormalizeAddress returns the canonical upper-case form of a hardware
// address.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Update records o, replacing the previous observation from the same
// source. A zero Seen time means now.
func (r *Registry) Update(o Observation) {
	o.Address = NormalizeAddress(o.Address)
	if o.Seen.IsZero() {
		o.Seen = r.clock.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	bySource, ok := r.entries[o.Address]
	if !ok {
		bySource = make(map[string]Observation)
		r.entries[o.Address] = bySource
	}
	if prev, ok := bySource[o.Source]; ok && prev.Seen.After(o.Seen) {
		return
	}
	bySource[o.Source] = o
}

// Resolve returns the strongest fresh observation of address. With
// connectable set, only sources able to connect are considered.
func (r *Registry) Resolve(_ context.Context, address string, connectable bool) (connection.Target, bool) {
	best, ok := r.best(NormalizeAddress(address), connectable)
	if !ok {
		return nil, false
	}
	return Target{address: best.Address, source: best.Source, rssi: best.RSSI}, true
}

func (r *Registry) best(address string, connectable bool) (Observation, bool) {
	now := r.clock.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Observation
	found := false
	for _, o := range r.entries[address] {
		if connectable && !o.Connectable {
			continue
		}
		if now.Sub(o.Seen) >= r.config.StaleAfter {
			continue
		}
		if !found || o.RSSI > best.RSSI || (o.RSSI == best.RSSI && o.Seen.After(best.Seen)) {
			best, found = o, true
		}
	}
	return best, found
}

// Observations returns all observations of address, freshest first,
// including stale ones.
func (r *Registry) Observations(address string) []Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bySource := r.entries[NormalizeAddress(address)]
	out := make([]Observation, 0, len(bySource))
	for _, o := range bySource {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seen.After(out[j].Seen) })
	return out
}

// Prune drops stale observations and returns how many were removed.
func (r *Registry) Prune() int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for addr, bySource := range r.entries {
		for src, o := range bySource {
			if now.Sub(o.Seen) >= r.config.StaleAfter {
				delete(bySource, src)
				removed++
			}
		}
		if len(bySource) == 0 {
			delete(r.entries, addr)
		}
	}
	return removed
}

// Run prunes the registry every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Prune()
		}
	}
}

var _ connection.Resolver = (*Registry)(nil)

package discovery

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// Directory holds the proxies seen so far, keyed by MAC address.
// A proxy announced on several interfaces is one entry with the union of
// its addresses; it is dropped once its last address is withdrawn.
type Directory struct {
	mu         sync.RWMutex
	byMAC      map[string]*Proxy
	byInstance map[string]string

	onChange func(p Proxy, present bool)
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byMAC:      make(map[string]*Proxy),
		byInstance: make(map[string]string),
	}
}

// OnChange registers fn to be called when a proxy appears or disappears.
func (d *Directory) OnChange(fn func(p Proxy, present bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Add records p, merging addresses into an existing entry for the same MAC.
// Reports whether the proxy is new.
func (d *Directory) Add(p *Proxy) bool {
	d.mu.Lock()
	existing, found := d.byMAC[p.MAC]
	if found {
		existing.Addresses = mergeAddresses(existing.Addresses, p.Addresses)
		if p.FriendlyName != "" {
			existing.FriendlyName = p.FriendlyName
		}
		existing.FeatureFlags = p.FeatureFlags
		existing.Version = p.Version
		if existing.Instance != p.Instance {
			delete(d.byInstance, existing.Instance)
			existing.Instance = p.Instance
		}
		d.byInstance[p.Instance] = p.MAC
		d.mu.Unlock()
		return false
	}
	cp := *p
	cp.Addresses = slices.Clone(p.Addresses)
	d.byMAC[p.MAC] = &cp
	d.byInstance[p.Instance] = p.MAC
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn(cp, true)
	}
	return true
}

// Remove withdraws addrs from the proxy announced as instance. An empty
// addrs removes the proxy outright. Reports whether the proxy is gone.
func (d *Directory) Remove(instance string, addrs []string) bool {
	d.mu.Lock()
	mac, ok := d.byInstance[instance]
	if !ok {
		d.mu.Unlock()
		return false
	}
	p := d.byMAC[mac]
	if len(addrs) > 0 {
		p.Addresses = removeAddresses(p.Addresses, addrs)
		if len(p.Addresses) > 0 {
			d.mu.Unlock()
			return false
		}
	}
	delete(d.byMAC, mac)
	delete(d.byInstance, instance)
	gone := *p
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn(gone, false)
	}
	return true
}

// Get returns the proxy with the given MAC.
func (d *Directory) Get(mac string) (Proxy, bool) {
	if n, err := NormalizeMAC(mac); err == nil {
		mac = n
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byMAC[mac]
	if !ok {
		return Proxy{}, false
	}
	cp := *p
	cp.Addresses = slices.Clone(p.Addresses)
	return cp, true
}

// Name returns the display name of the proxy whose MAC is source, or ""
// when source is not a known proxy.
func (d *Directory) Name(source string) string {
	p, ok := d.Get(source)
	if !ok {
		return ""
	}
	return p.DisplayName()
}

// All returns the known proxies sorted by display name.
func (d *Directory) All() []Proxy {
	d.mu.RLock()
	out := make([]Proxy, 0, len(d.byMAC))
	for _, p := range d.byMAC {
		cp := *p
		cp.Addresses = slices.Clone(p.Addresses)
		out = append(out, cp)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName()) < strings.ToLower(out[j].DisplayName())
	})
	return out
}

// Len returns the number of known proxies.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byMAC)
}

// mergeAddresses adds new addresses to the existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, addr := range removed {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}

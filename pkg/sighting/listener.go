// Package sighting consumes the broadcast sighting feed for one device and
// forwards it to the registry and the availability tracker.
package sighting

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/metrics"
	"github.com/blelink/blelink-go/pkg/registry"
)

// Sighting is one received advertisement.
type Sighting struct {
	Timestamp   time.Time
	Address     string
	Source      string
	Name        string
	RSSI        int16
	Connectable bool
}

// TargetUpdater receives the latest path to the device.
type TargetUpdater interface {
	Update(o registry.Observation)
}

// Tracker is the availability input fed by sightings.
type Tracker interface {
	OnSighting(at time.Time) (recovered bool)
}

// Namer resolves a source id to a display name. discovery.Directory
// implements it.
type Namer interface {
	Name(source string) string
}

// SourceStats summarizes sightings from one source.
type SourceStats struct {
	Source   string    `json:"source"`
	Name     string    `json:"name"`
	Count    uint64    `json:"count"`
	LastRSSI int16     `json:"lastRssi"`
	LastSeen time.Time `json:"lastSeen"`
}

// Config configures a Listener.
type Config struct {
	// Registry is updated on every sighting. Optional.
	Registry TargetUpdater

	// Names resolves proxy names for logs and stats. Optional.
	Names Namer

	// Clock stamps sightings that arrive without a timestamp. Defaults to
	// the real clock.
	Clock clockwork.Clock

	Logger *slog.Logger
}

// Listener handles sightings of one device. Handle never blocks on
// downstream work.
type Listener struct {
	address string
	tracker Tracker
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	stats   map[string]*SourceStats
	events  log.Logger
	metrics *metrics.Recorder
}

// NewListener creates a listener for address.
func NewListener(address string, tracker Tracker, config Config) *Listener {
	l := &Listener{
		address: registry.NormalizeAddress(address),
		tracker: tracker,
		config:  config,
		logger:  config.Logger,
		stats:   make(map[string]*SourceStats),
		events:  log.NoopLogger{},
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.config.Clock == nil {
		l.config.Clock = clockwork.NewRealClock()
	}
	l.logger = l.logger.With("address", l.address)
	return l
}

// SetEventLogger sets the device event logger.
func (l *Listener) SetEventLogger(e log.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = log.OrNoop(e)
}

// SetMetrics sets the metrics recorder.
func (l *Listener) SetMetrics(r *metrics.Recorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = r
}

// Address returns the device address the listener accepts.
func (l *Listener) Address() string {
	return l.address
}

// Handle processes one sighting. Sightings of other addresses are ignored.
// It reports whether the sighting was accepted.
func (l *Listener) Handle(s Sighting) bool {
	if registry.NormalizeAddress(s.Address) != l.address {
		return false
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = l.config.Clock.Now()
	}

	if l.config.Registry != nil {
		l.config.Registry.Update(registry.Observation{
			Address:     l.address,
			Source:      s.Source,
			Name:        s.Name,
			RSSI:        s.RSSI,
			Connectable: s.Connectable,
			Seen:        s.Timestamp,
		})
	}

	recovered := l.tracker.OnSighting(s.Timestamp)
	name := l.sourceName(s.Source)

	l.mu.Lock()
	st, ok := l.stats[s.Source]
	if !ok {
		st = &SourceStats{Source: s.Source}
		l.stats[s.Source] = st
	}
	st.Name = name
	st.Count++
	st.LastRSSI = s.RSSI
	st.LastSeen = s.Timestamp
	events, rec := l.events, l.metrics
	l.mu.Unlock()

	if recovered {
		l.logger.Info("device recovered, advertisement received", "source", name, "rssi", s.RSSI)
	} else {
		l.logger.Debug("advertisement", "source", name, "rssi", s.RSSI, "connectable", s.Connectable)
	}
	rec.ObserveSighting(l.address, s.Source)
	events.Log(log.Event{
		Timestamp: s.Timestamp,
		Address:   l.address,
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategorySighting,
		Sighting: &log.SightingEvent{
			Source:      s.Source,
			RSSI:        s.RSSI,
			Connectable: s.Connectable,
			Recovered:   recovered,
		},
	})
	return true
}

// Run handles sightings from feed until ctx ends or feed is closed.
func (l *Listener) Run(ctx context.Context, feed <-chan Sighting) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-feed:
			if !ok {
				return nil
			}
			l.Handle(s)
		}
	}
}

// Stats returns per-source statistics ordered by most recent sighting.
func (l *Listener) Stats() []SourceStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SourceStats, 0, len(l.stats))
	for _, st := range l.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (l *Listener) sourceName(source string) string {
	if l.config.Names != nil {
		if name := l.config.Names.Name(source); name != "" {
			return name
		}
	}
	if source == "" {
		return "unknown"
	}
	return source
}

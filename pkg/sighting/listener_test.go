package sighting

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blelink/blelink-go/pkg/availability"
	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/registry"
)

const testAddr = "AA:BB:CC:DD:EE:FF"

type names map[string]string

func (n names) Name(source string) string { return n[source] }

type memLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (m *memLogger) Log(e log.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

type fixture struct {
	clock    *clockwork.FakeClock
	registry *registry.Registry
	tracker  *availability.Tracker
	listener *Listener
	logs     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()

	rcfg := registry.DefaultConfig()
	rcfg.Clock = clock
	reg, err := registry.New(rcfg)
	require.NoError(t, err)

	acfg := availability.DefaultConfig()
	acfg.Clock = clock
	tr, err := availability.NewTracker(testAddr, nil, acfg)
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	var buf bytes.Buffer
	l := NewListener(testAddr, tr, Config{
		Registry: reg,
		Names:    names{"24:0A:C4:11:22:33": "Kitchen Proxy"},
		Clock:    clock,
		Logger:   slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return &fixture{clock: clock, registry: reg, tracker: tr, listener: l, logs: &buf}
}

func TestHandleUpdatesRegistryAndTracker(t *testing.T) {
	f := newFixture(t)

	ok := f.listener.Handle(Sighting{
		Timestamp:   f.clock.Now(),
		Address:     "aa:bb:cc:dd:ee:ff",
		Source:      "hci0",
		RSSI:        -61,
		Connectable: true,
	})
	require.True(t, ok)

	target, found := f.registry.Resolve(context.Background(), testAddr, true)
	require.True(t, found)
	assert.Equal(t, "hci0", target.Source())
	assert.True(t, f.tracker.Available())
	assert.True(t, f.tracker.Ready().Fired())
}

func TestUnstampedSightingUsesClock(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(time.Hour)

	require.True(t, f.listener.Handle(Sighting{Address: testAddr, Source: "hci0", RSSI: -70}))

	assert.Equal(t, f.clock.Now(), f.tracker.LastSeen())
	stats := f.listener.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, f.clock.Now(), stats[0].LastSeen)
	assert.True(t, f.tracker.Available())

	f.clock.Advance(availability.DefaultConfig().UnavailableAfter + time.Second)
	assert.False(t, f.tracker.Available(), "freshness runs on the same clock")
}

func TestHandleIgnoresOtherAddresses(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.listener.Handle(Sighting{Address: "11:22:33:44:55:66", Source: "hci0"}))
	assert.False(t, f.tracker.Ready().Fired())
	assert.Empty(t, f.listener.Stats())
}

func TestRecoveryIsLoggedWithProxyName(t *testing.T) {
	f := newFixture(t)
	f.tracker.MarkWriteFailed()

	f.listener.Handle(Sighting{
		Timestamp: f.clock.Now(),
		Address:   testAddr,
		Source:    "24:0A:C4:11:22:33",
		RSSI:      -72,
	})

	assert.True(t, f.tracker.Available())
	out := f.logs.String()
	assert.Contains(t, out, "device recovered")
	assert.Contains(t, out, `source="Kitchen Proxy"`)
	assert.Contains(t, out, "rssi=-72")
}

func TestStatsPerSource(t *testing.T) {
	f := newFixture(t)
	events := &memLogger{}
	f.listener.SetEventLogger(events)

	f.listener.Handle(Sighting{Timestamp: f.clock.Now(), Address: testAddr, Source: "hci0", RSSI: -80})
	f.clock.Advance(time.Second)
	f.listener.Handle(Sighting{Timestamp: f.clock.Now(), Address: testAddr, Source: "24:0A:C4:11:22:33", RSSI: -55})
	f.clock.Advance(time.Second)
	f.listener.Handle(Sighting{Timestamp: f.clock.Now(), Address: testAddr, Source: "24:0A:C4:11:22:33", RSSI: -50})

	stats := f.listener.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "Kitchen Proxy", stats[0].Name)
	assert.Equal(t, uint64(2), stats[0].Count)
	assert.Equal(t, int16(-50), stats[0].LastRSSI)
	assert.Equal(t, "hci0", stats[1].Name)

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 3)
	assert.Equal(t, log.CategorySighting, events.events[0].Category)
	assert.Equal(t, "hci0", events.events[0].Sighting.Source)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	feed := make(chan Sighting, 2)
	feed <- Sighting{Timestamp: f.clock.Now(), Address: testAddr, Source: "hci0"}
	feed <- Sighting{Timestamp: f.clock.Now(), Address: "11:22:33:44:55:66", Source: "hci0"}
	close(feed)

	require.NoError(t, f.listener.Run(context.Background(), feed))
	stats := f.listener.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Count)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.listener.Run(ctx, make(chan Sighting)), context.Canceled)
}

package blelink_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blelink/blelink-go/internal/bletest"
	"github.com/blelink/blelink-go/pkg/api"
	"github.com/blelink/blelink-go/pkg/availability"
	"github.com/blelink/blelink-go/pkg/connection"
	"github.com/blelink/blelink-go/pkg/device"
	"github.com/blelink/blelink-go/pkg/eventbus"
	"github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/metrics"
	"github.com/blelink/blelink-go/pkg/persistence"
	"github.com/blelink/blelink-go/pkg/registry"
	"github.com/blelink/blelink-go/pkg/sighting"
	"github.com/blelink/blelink-go/pkg/switches"
)

const (
	e2eAddr = "C4:7C:8D:6A:10:02"
	e2eUUID = "0000ff01-0000-1000-8000-00805f9b34fb"
	e2eWait = 2 * time.Second
)

// stack is one running daemon minus the radio: devices behind a hub, the
// HTTP API on a loopback port and a feed for injected sightings.
type stack struct {
	clock     *clockwork.FakeClock
	transport *bletest.Transport
	hub       *device.Hub
	feed      chan sighting.Sighting
	baseURL   string
	switchID  string
	sightings uint64
}

func startStack(t *testing.T, store persistence.Store, events log.Logger) *stack {
	t.Helper()

	s := &stack{
		clock:     clockwork.NewFakeClock(),
		transport: bletest.NewTransport(),
		hub:       device.NewHub(nil),
		feed:      make(chan sighting.Sighting),
		switchID:  switches.UniqueID(e2eAddr, e2eUUID),
	}

	reg, err := registry.New(registry.Config{StaleAfter: registry.DefaultStaleAfter, Clock: s.clock})
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	promReg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promReg)
	bus := eventbus.New(eventbus.DefaultBuffer)

	opts := device.Options{
		Resolver:  reg,
		Registry:  reg,
		Transport: s.transport,
		Metrics:   recorder,
		Bus:       bus,
		Clock:     s.clock,
	}
	if store != nil {
		opts.Store = store
	}
	if events != nil {
		opts.Events = events
	}
	d, err := device.New(device.Config{
		Address:         e2eAddr,
		Name:            "Garage",
		Characteristics: []device.Characteristic{{Name: "Door", UUID: e2eUUID}},
	}, opts)
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	if err := s.hub.Add(d); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	srv := api.NewServer("", api.Config{
		Devices:  s.hub,
		Bus:      bus,
		Gatherer: promReg,
		Metrics:  recorder,
	})
	s.baseURL = "http://" + l.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = srv.Serve(l)
	}()
	go func() {
		defer wg.Done()
		_ = s.hub.Run(ctx, s.feed)
	}()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
		_ = s.hub.Close(shutdownCtx)
		wg.Wait()
	})
	return s
}

func (s *stack) sight(t *testing.T) {
	t.Helper()
	select {
	case s.feed <- sighting.Sighting{
		Timestamp:   s.clock.Now(),
		Address:     e2eAddr,
		Source:      "hci0",
		RSSI:        -58,
		Connectable: true,
	}:
	case <-time.After(e2eWait):
		t.Fatal("sighting not consumed")
	}
	s.sightings++
	// The receive completes before the hub has handled the sighting.
	eventually(t, "sighting handled", func() bool {
		var total uint64
		for _, st := range s.hub.Devices()[0].Listener().Stats() {
			total += st.Count
		}
		return total == s.sightings
	})
}

func (s *stack) command(t *testing.T, on bool) (int, switches.State) {
	t.Helper()
	code, st, err := s.post(on)
	if err != nil {
		t.Fatal(err)
	}
	return code, st
}

func (s *stack) post(on bool) (int, switches.State, error) {
	action := "off"
	if on {
		action = "on"
	}
	resp, err := http.Post(fmt.Sprintf("%s/api/v1/switches/%s/%s", s.baseURL, s.switchID, action), "application/json", nil)
	if err != nil {
		return 0, switches.State{}, fmt.Errorf("POST %s failed: %w", action, err)
	}
	defer resp.Body.Close()

	var body struct {
		switches.State
		Error  string          `json:"error"`
		Switch *switches.State `json:"switch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, switches.State{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Switch != nil {
		return resp.StatusCode, *body.Switch, nil
	}
	return resp.StatusCode, body.State, nil
}

func (s *stack) status(t *testing.T) device.Status {
	t.Helper()
	resp, err := http.Get(s.baseURL + "/api/v1/devices/" + e2eAddr)
	if err != nil {
		t.Fatalf("GET device failed: %v", err)
	}
	defer resp.Body.Close()
	var st device.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	return st
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(e2eWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestE2E_SwitchLifecycle drives a switch over HTTP from first sighting to
// the linger disconnect and checks the protocol log afterwards.
func TestE2E_SwitchLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	logPath := filepath.Join(t.TempDir(), "e2e"+log.FileExtension)
	events, err := log.NewFileLogger(logPath)
	if err != nil {
		t.Fatalf("Failed to create protocol logger: %v", err)
	}
	s := startStack(t, nil, events)

	// No advertisement yet: the command is refused without touching the radio.
	if code, _ := s.command(t, true); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first sighting, got %d", code)
	}
	if n := s.transport.Opens(); n != 0 {
		t.Fatalf("expected no connection attempt, got %d", n)
	}

	s.sight(t)
	if st := s.status(t); !st.Available || st.State != "SIGHTING_FRESH" {
		t.Fatalf("expected fresh sighting, got available=%v state=%s", st.Available, st.State)
	}

	code, sw := s.command(t, true)
	if code != http.StatusOK || !sw.On {
		t.Fatalf("expected switch on, got %d %+v", code, sw)
	}
	if st := s.status(t); st.Session.State != "CONNECTED" || !st.Session.IdleArmed {
		t.Fatalf("expected live session with idle timer, got %+v", st.Session)
	}

	// Watchdog and idle timer are both pending on the fake clock.
	ctx, cancel := context.WithTimeout(context.Background(), e2eWait)
	defer cancel()
	if err := s.clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("timers not armed: %v", err)
	}
	s.clock.Advance(connection.DefaultLinger)
	eventually(t, "linger disconnect", func() bool { return s.transport.Disconnects() == 1 })
	eventually(t, "idle session", func() bool { return s.status(t).Session.State == "IDLE" })

	if st := s.status(t); !st.Available {
		t.Fatalf("device should stay available after a linger disconnect, got %s", st.State)
	}

	events.Close()
	reader, err := log.NewReader(logPath)
	if err != nil {
		t.Fatalf("Failed to open protocol log: %v", err)
	}
	defer reader.Close()

	var writes, sightings int
	for {
		e, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read protocol log: %v", err)
		}
		switch {
		case e.Write != nil:
			writes++
			if e.Write.Outcome != log.OutcomeOK || e.SessionID == "" {
				t.Errorf("unexpected write event: %+v", e.Write)
			}
		case e.Sighting != nil:
			sightings++
		}
	}
	if writes != 1 {
		t.Errorf("expected 1 write event, got %d", writes)
	}
	if sightings != 1 {
		t.Errorf("expected 1 sighting event, got %d", sightings)
	}
}

// TestE2E_StateSurvivesRestart checks that a rendered state is restored by
// the next process from the SQLite store.
func TestE2E_StateSurvivesRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := persistence.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	first := startStack(t, store, nil)
	first.sight(t)
	if code, _ := first.command(t, true); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	second := startStack(t, store, nil)
	second.sight(t)
	if err := second.hub.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	st := second.status(t)
	if len(st.Switches) != 1 || !st.Switches[0].On {
		t.Fatalf("expected restored on state, got %+v", st.Switches)
	}
	if !st.Ready {
		t.Error("expected device to report ready")
	}
}

// TestE2E_SilenceAndRecovery lets a device go quiet until it is reported
// unavailable, then brings it back with one advertisement.
func TestE2E_SilenceAndRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := startStack(t, nil, nil)
	s.sight(t)

	ctx, cancel := context.WithTimeout(context.Background(), e2eWait)
	defer cancel()
	if err := s.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("watchdog not armed: %v", err)
	}
	s.clock.Advance(availability.DefaultUnavailableAfter + time.Second)
	eventually(t, "unavailable", func() bool { return !s.status(t).Available })

	if code, _ := s.command(t, true); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while silent, got %d", code)
	}

	s.sight(t)
	if code, _ := s.command(t, true); code != http.StatusOK {
		t.Fatalf("expected 200 after recovery, got %d", code)
	}
}

// TestE2E_ConcurrentCommands fires commands in parallel and checks they
// share one session and never overlap on the radio.
func TestE2E_ConcurrentCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := startStack(t, nil, nil)
	s.transport.SetWriteDelay(10 * time.Millisecond)
	s.sight(t)

	const n = 6
	var wg sync.WaitGroup
	codes := make([]int, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i], _, errs[i] = s.post(i%2 == 0)
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if errs[i] != nil {
			t.Errorf("command %d: %v", i, errs[i])
		} else if code != http.StatusOK {
			t.Errorf("command %d: expected 200, got %d", i, code)
		}
	}
	if got := len(s.transport.Writes()); got != n {
		t.Errorf("expected %d writes, got %d", n, got)
	}
	if got := s.transport.MaxInFlight(); got != 1 {
		t.Errorf("expected serialized radio access, max in flight %d", got)
	}
	if got := s.transport.Opens(); got != 1 {
		t.Errorf("expected one shared session, got %d opens", got)
	}
}

package connection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blelink/blelink-go/internal/bletest"
	"github.com/blelink/blelink-go/pkg/connection"
)

const (
	testAddr = "AA:BB:CC:DD:EE:FF"
	testChar = "0000ff01-0000-1000-8000-00805f9b34fb"
)

type fixture struct {
	clock     *clockwork.FakeClock
	resolver  *bletest.Resolver
	transport *bletest.Transport
	manager   *connection.Manager
}

func newFixture(t *testing.T, mutate ...func(*connection.Config)) *fixture {
	t.Helper()
	f := &fixture{
		clock:     clockwork.NewFakeClock(),
		resolver:  bletest.NewResolver(),
		transport: bletest.NewTransport(),
	}
	f.resolver.Set(testAddr, bletest.Target{Addr: testAddr, Src: "hci0"})

	cfg := connection.DefaultConfig()
	cfg.NameHint = "Desk Lamp"
	cfg.Scheduler = connection.NewScheduler(f.clock)
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := connection.NewManager(testAddr, f.resolver, f.transport, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	f.manager = m
	return f
}

// waitTimer blocks until the idle timer is registered with the fake clock.
func (f *fixture) waitTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
}

func TestWriteOpensSessionOnDemand(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Write(context.Background(), testChar, []byte{0x01})
	require.NoError(t, err)

	assert.Equal(t, 1, f.transport.Opens())
	assert.Equal(t, []bletest.Write{{UUID: testChar, Data: []byte{0x01}, WithResponse: true}}, f.transport.Writes())
	assert.True(t, f.manager.IsConnected())
	assert.Equal(t, connection.StateConnected, f.manager.State())

	info, ok := f.manager.Session()
	require.True(t, ok)
	assert.NotEmpty(t, info.ID)
	assert.True(t, info.IdleArmed, "idle timer must be armed after a write")
}

func TestWriteReusesLiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))
	first, _ := f.manager.Session()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x00}))
	second, _ := f.manager.Session()

	assert.Equal(t, 1, f.transport.Opens())
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.transport.Writes(), 2)
}

func TestWriteUnresolvableAddress(t *testing.T) {
	f := newFixture(t)
	f.resolver.Set(testAddr, nil)

	err := f.manager.Write(context.Background(), testChar, []byte{0x01})

	require.Error(t, err)
	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.ErrorIs(t, err, connection.ErrAddressUnresolvable)
	assert.Equal(t, 0, f.transport.Opens(), "no session may be attempted")
	assert.False(t, f.manager.IsConnected())
}

func TestWriteConnectFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.SetOpenError(bletest.TransportError("le-connection-abort-by-local"))

	err := f.manager.Write(context.Background(), testChar, []byte{0x01})

	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.ErrorIs(t, err, connection.ErrTransportFailure)
	assert.Equal(t, connection.StateIdle, f.manager.State())
	_, ok := f.manager.Session()
	assert.False(t, ok)
}

func TestWriteNotFoundIsUnreachable(t *testing.T) {
	f := newFixture(t)
	f.transport.SetOpenError(connection.ErrNotFound)

	err := f.manager.Write(context.Background(), testChar, []byte{0x01})

	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.ErrorIs(t, err, connection.ErrNotFound)
}

func TestWriteTransportErrorDiscardsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))

	f.transport.SetWriteError(bletest.TransportError("att error 0x0e"))
	err := f.manager.Write(ctx, testChar, []byte{0x00})

	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.Equal(t, 1, f.transport.Disconnects())
	assert.False(t, f.manager.IsConnected())
	_, ok := f.manager.Session()
	assert.False(t, ok, "idle timer rearm must be a no-op without a session")
}

func TestWriteUnexpectedErrorPropagatesUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))

	errBoom := errors.New("boom")
	f.transport.SetWriteError(errBoom)
	err := f.manager.Write(ctx, testChar, []byte{0x00})

	assert.Equal(t, errBoom, err, "unexpected errors must not be wrapped")
	assert.False(t, connection.IsUnreachable(err))
	assert.Equal(t, 1, f.transport.Disconnects(), "session is still cleaned up")
	assert.False(t, f.manager.IsConnected())
}

func TestWriteTimeoutIsUnreachable(t *testing.T) {
	f := newFixture(t, func(c *connection.Config) {
		c.DirectTimeout = 30 * time.Millisecond
	})
	f.transport.SetWriteDelay(time.Second)

	start := time.Now()
	err := f.manager.Write(context.Background(), testChar, []byte{0x01})

	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, f.manager.IsConnected())
}

func TestCallerCancellationIsNotUnreachable(t *testing.T) {
	f := newFixture(t)
	f.transport.SetWriteDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := f.manager.Write(ctx, testChar, []byte{0x01})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, connection.IsUnreachable(err))
	assert.True(t, f.manager.IsConnected(), "a healthy session survives the caller giving up")
	assert.Equal(t, 0, f.transport.Disconnects())
}

func TestCallerDeadlineAfterQueueingIsNotUnreachable(t *testing.T) {
	f := newFixture(t)
	f.transport.SetWriteDelay(150 * time.Millisecond)

	first := make(chan error, 1)
	go func() { first <- f.manager.Write(context.Background(), testChar, []byte{0x01}) }()
	require.Eventually(t, f.manager.Guard().Held, time.Second, time.Millisecond)

	// Most of this budget is spent waiting for the first write.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := f.manager.Write(ctx, testChar, []byte{0x00})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, connection.IsUnreachable(err))
	require.NoError(t, <-first)
	assert.True(t, f.manager.IsConnected())
	assert.Equal(t, 1, f.transport.Opens())
	assert.Equal(t, 0, f.transport.Disconnects())
}

func TestStaleSessionIsReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))
	f.transport.LastHandle().Drop()

	assert.False(t, f.manager.IsConnected())
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x00}))

	assert.Equal(t, 2, f.transport.Opens())
	assert.True(t, f.manager.IsConnected())
}

func TestMissingServiceTableTriggersDiscovery(t *testing.T) {
	f := newFixture(t)
	f.transport.SetCached(false)

	require.NoError(t, f.manager.Write(context.Background(), testChar, []byte{0x01}))
	assert.Equal(t, 1, f.transport.Discovers())

	require.NoError(t, f.manager.Write(context.Background(), testChar, []byte{0x00}))
	assert.Equal(t, 1, f.transport.Discovers(), "reused session keeps its table")
}

func TestDiscoveryFailureDisconnects(t *testing.T) {
	f := newFixture(t)
	f.transport.SetCached(false)
	f.transport.SetDiscoverError(bletest.TransportError("services not resolved"))

	err := f.manager.Write(context.Background(), testChar, []byte{0x01})

	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.Equal(t, 1, f.transport.Disconnects())
	assert.False(t, f.manager.IsConnected())
}

func TestIdleTimerDisconnectsOnceAfterLinger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Write(context.Background(), testChar, []byte{0x01}))
	f.waitTimer(t)

	f.clock.Advance(connection.DefaultLinger - time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, f.transport.Disconnects(), "no disconnect before the linger elapses")

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.transport.Disconnects() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.manager.State() == connection.StateIdle }, time.Second, time.Millisecond)

	f.clock.Advance(10 * connection.DefaultLinger)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, f.transport.Disconnects(), "exactly one disconnect per arm")
}

func TestIdleTimerRearmedByEachWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))
	f.waitTimer(t)
	f.clock.Advance(10 * time.Second)

	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x00}))
	f.waitTimer(t)
	f.clock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, f.transport.Disconnects())

	f.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return f.transport.Disconnects() == 1 }, time.Second, time.Millisecond)
}

func TestFailedWriteLeavesNoTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))

	f.transport.SetWriteError(bletest.TransportError("gatt write failed"))
	require.Error(t, f.manager.Write(ctx, testChar, []byte{0x00}))
	require.Equal(t, 1, f.transport.Disconnects())

	f.clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, f.transport.Disconnects())
}

func TestDisconnectIsIdempotentAndSwallowsErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))

	f.transport.SetDisconnectError(errors.New("org.bluez.Error.Failed"))
	f.manager.Disconnect(ctx)
	f.manager.Disconnect(ctx)

	assert.Equal(t, 1, f.transport.Disconnects())
	assert.False(t, f.manager.IsConnected())
	_, ok := f.manager.Session()
	assert.False(t, ok, "handle is cleared even when disconnect fails")
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Write(ctx, testChar, []byte{0x01}))

	require.NoError(t, f.manager.Close(ctx))
	assert.Equal(t, 1, f.transport.Disconnects())
	assert.Equal(t, connection.StateClosed, f.manager.State())

	err := f.manager.Write(ctx, testChar, []byte{0x01})
	assert.ErrorIs(t, err, connection.ErrClosed)
	assert.NoError(t, f.manager.Close(ctx))

	f.clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, f.transport.Disconnects())
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.transport.SetWriteDelay(2 * time.Millisecond)
	f.transport.SetOpenDelay(5 * time.Millisecond)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.manager.Write(context.Background(), testChar, []byte{byte(i % 2)})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.transport.MaxInFlight(), "open/write sequences overlapped")
	assert.Equal(t, 1, f.transport.Opens())
	assert.Len(t, f.transport.Writes(), callers)
	assert.Equal(t, uint64(callers), f.manager.Guard().Acquisitions())
}

func TestGuardWaiterHonoursContext(t *testing.T) {
	f := newFixture(t)
	f.transport.SetWriteDelay(200 * time.Millisecond)

	go func() { _ = f.manager.Write(context.Background(), testChar, []byte{0x01}) }()
	require.Eventually(t, f.manager.Guard().Held, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.manager.Write(ctx, testChar, []byte{0x00})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, connection.IsUnreachable(err), "lock wait timeout is not a device failure")
}

func TestEnsureSession(t *testing.T) {
	f := newFixture(t)

	h, err := f.manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.True(t, h.IsConnected())
	info, ok := f.manager.Session()
	require.True(t, ok)
	assert.True(t, info.IdleArmed)

	h2, err := f.manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, h2)
}

func TestStateChangeCallbacks(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var got []connection.State
	f.manager.OnStateChange(func(_, newState connection.State) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, newState)
	})

	require.NoError(t, f.manager.Write(context.Background(), testChar, []byte{0x01}))
	f.waitTimer(t)
	f.clock.Advance(connection.DefaultLinger)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []connection.State{
		connection.StateConnecting,
		connection.StateConnected,
		connection.StateIdle,
	}, got)
}

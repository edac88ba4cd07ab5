package switches_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blelink/blelink-go/pkg/availability"
	"github.com/blelink/blelink-go/pkg/connection"
	"github.com/blelink/blelink-go/pkg/persistence"
	"github.com/blelink/blelink-go/pkg/switches"
	"github.com/blelink/blelink-go/pkg/switches/mocks"
)

const (
	testAddr = "AA:BB:CC:DD:EE:FF"
	testUUID = "0000FF01-0000-1000-8000-00805F9B34FB"
)

func newSwitch(t *testing.T, w switches.Writer, a switches.Availability, store switches.StateStore) *switches.Switch {
	t.Helper()
	cfg := switches.Config{
		Address:    testAddr,
		DeviceName: "Desk",
		Name:       "Lamp",
		UUID:       testUUID,
	}
	if store != nil {
		cfg.Store = store
	}
	sw, err := switches.New(w, a, cfg)
	require.NoError(t, err)
	return sw
}

func TestIdentity(t *testing.T) {
	sw := newSwitch(t, mocks.NewMockWriter(t), mocks.NewMockAvailability(t), nil)

	assert.Equal(t, "aabbccddeeff_0000ff01", sw.ID())
	assert.Equal(t, "Desk Lamp", sw.Name())
	assert.Equal(t, "0000ff01-0000-1000-8000-00805f9b34fb", sw.UUID())
	assert.Equal(t, switches.DeviceInfo{
		Identifier:   testAddr,
		Name:         "Desk",
		Manufacturer: switches.DefaultManufacturer,
		Model:        switches.DefaultModel,
	}, sw.DeviceInfo())
}

func TestUniqueID(t *testing.T) {
	assert.Equal(t, "aabbccddeeff_0000ff01", switches.UniqueID("aa:bb:cc:dd:ee:ff", testUUID))
	assert.Equal(t, "aabbccddeeff_0000ff02", switches.UniqueID(testAddr, "0000ff02-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "aabbccddeeff_ff01", switches.UniqueID(testAddr, "ff01"))
	assert.Equal(t, "aabbccddeeff_6e400002b5a3f393e0a9e50e24dcca9e",
		switches.UniqueID(testAddr, "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"))
}

func TestTurnOnWritesPayload(t *testing.T) {
	w := mocks.NewMockWriter(t)
	a := mocks.NewMockAvailability(t)
	store := mocks.NewMockStateStore(t)
	sw := newSwitch(t, w, a, store)

	a.EXPECT().Available().Return(true)
	w.EXPECT().Write(mock.Anything, sw.UUID(), []byte{0x01}).Return(nil).Once()
	store.EXPECT().Save(mock.MatchedBy(func(st persistence.EntityState) bool {
		return st.UniqueID == sw.ID() && st.Device == testAddr && st.On
	})).Return(nil).Once()

	var rendered []switches.State
	sw.OnRender(func(st switches.State) { rendered = append(rendered, st) })

	require.NoError(t, sw.TurnOn(context.Background()))
	assert.True(t, sw.IsOn())
	require.Len(t, rendered, 1)
	assert.True(t, rendered[0].On)
	assert.True(t, rendered[0].Available)
}

func TestTurnOffWritesPayload(t *testing.T) {
	w := mocks.NewMockWriter(t)
	a := mocks.NewMockAvailability(t)
	sw := newSwitch(t, w, a, nil)

	a.EXPECT().Available().Return(true)
	w.EXPECT().Write(mock.Anything, sw.UUID(), []byte{0x00}).Return(nil).Once()

	require.NoError(t, sw.TurnOff(context.Background()))
	assert.False(t, sw.IsOn())
}

func TestUnavailableFailsFastWithoutWrite(t *testing.T) {
	w := mocks.NewMockWriter(t)
	a := mocks.NewMockAvailability(t)
	sw := newSwitch(t, w, a, nil)

	a.EXPECT().Available().Return(false)

	err := sw.TurnOn(context.Background())
	assert.ErrorIs(t, err, switches.ErrUnavailable)
	assert.False(t, sw.IsOn())
	w.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnreachableMarksWriteFailed(t *testing.T) {
	w := mocks.NewMockWriter(t)
	a := mocks.NewMockAvailability(t)
	sw := newSwitch(t, w, a, nil)

	unreachable := &connection.UnreachableError{
		Address: testAddr,
		Op:      "connect",
		Cause:   connection.ErrTransportFailure,
		Err:     errors.New("le-connection-abort-by-local"),
	}
	a.EXPECT().Available().Return(true).Once()
	w.EXPECT().Write(mock.Anything, mock.Anything, mock.Anything).Return(unreachable).Once()
	a.EXPECT().MarkWriteFailed().Once()

	err := sw.TurnOn(context.Background())
	assert.ErrorIs(t, err, switches.ErrUnavailable)
	assert.ErrorIs(t, err, connection.ErrDeviceUnreachable)
	assert.False(t, sw.IsOn(), "state is only recorded on success")
}

func TestUnexpectedErrorDoesNotDistrust(t *testing.T) {
	w := mocks.NewMockWriter(t)
	a := mocks.NewMockAvailability(t)
	sw := newSwitch(t, w, a, nil)

	errBoom := errors.New("boom")
	a.EXPECT().Available().Return(true)
	w.EXPECT().Write(mock.Anything, mock.Anything, mock.Anything).Return(errBoom)

	err := sw.TurnOn(context.Background())
	assert.Equal(t, errBoom, err)
	a.AssertNotCalled(t, "MarkWriteFailed")
}

func TestPersistFailureIsNotFatal(t *testing.T) {
	w := mocks.NewMockWriter(t)
	a := mocks.NewMockAvailability(t)
	store := mocks.NewMockStateStore(t)
	sw := newSwitch(t, w, a, store)

	a.EXPECT().Available().Return(true)
	w.EXPECT().Write(mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.EXPECT().Save(mock.Anything).Return(errors.New("disk full"))

	require.NoError(t, sw.TurnOn(context.Background()))
	assert.True(t, sw.IsOn())
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name    string
		state   persistence.EntityState
		ok      bool
		err     error
		wantOn  bool
		wantErr bool
	}{
		{name: "on", state: persistence.EntityState{On: true}, ok: true, wantOn: true},
		{name: "off", state: persistence.EntityState{On: false}, ok: true},
		{name: "missing", ok: false},
		{name: "store error", err: errors.New("locked"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockStateStore(t)
			sw := newSwitch(t, mocks.NewMockWriter(t), mocks.NewMockAvailability(t), store)
			store.EXPECT().Load(sw.ID()).Return(tt.state, tt.ok, tt.err)

			err := sw.Restore()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOn, sw.IsOn())
		})
	}
}

func TestRestoreWithoutStore(t *testing.T) {
	sw := newSwitch(t, mocks.NewMockWriter(t), mocks.NewMockAvailability(t), nil)
	assert.NoError(t, sw.Restore())
}

func TestRestoreFromFileStore(t *testing.T) {
	store := persistence.NewFileStore(t.TempDir() + "/entities.json")
	id := switches.UniqueID(testAddr, testUUID)
	require.NoError(t, store.Save(persistence.EntityState{UniqueID: id, Device: testAddr, On: true}))

	sw := newSwitch(t, mocks.NewMockWriter(t), mocks.NewMockAvailability(t), store)
	require.NoError(t, sw.Restore())
	assert.True(t, sw.IsOn())
}

// Two switches share one tracker: a write failure on one makes both
// unavailable, and a recovering sighting re-renders both.
func TestSharedAvailability(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := availability.DefaultConfig()
	cfg.Clock = clock
	tracker, err := availability.NewTracker(testAddr, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(tracker.Close)
	tracker.OnSighting(clock.Now())

	w := mocks.NewMockWriter(t)
	w.EXPECT().Write(mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("write: %w", &connection.UnreachableError{Address: testAddr, Op: "write", Cause: connection.ErrTransportFailure})).
		Once()

	lamp := newSwitch(t, w, tracker, nil)
	fan, err := switches.New(w, tracker, switches.Config{Address: testAddr, Name: "Fan", UUID: "0000ff02-0000-1000-8000-00805f9b34fb"})
	require.NoError(t, err)

	var mu sync.Mutex
	renders := map[string][]bool{}
	for _, sw := range []*switches.Switch{lamp, fan} {
		sw.Bind(tracker)
		t.Cleanup(sw.Close)
		sw.OnRender(func(st switches.State) {
			mu.Lock()
			defer mu.Unlock()
			renders[st.ID] = append(renders[st.ID], st.Available)
		})
	}

	err = lamp.TurnOn(context.Background())
	require.ErrorIs(t, err, switches.ErrUnavailable)
	assert.False(t, lamp.Available())
	assert.False(t, fan.Available())

	err = fan.TurnOn(context.Background())
	assert.ErrorIs(t, err, switches.ErrUnavailable, "fails fast without a second write")

	clock.Advance(time.Second)
	tracker.OnSighting(clock.Now())
	assert.True(t, fan.Available())

	// One render from the failure notification, one from the recovery
	// update, one from the refresh broadcast.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(renders[lamp.ID()]) == 3 && len(renders[fan.ID()]) == 3
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true, true}, renders[fan.ID()])
}

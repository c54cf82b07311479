package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/driver/sim"
	"github.com/jmichalek/punchsync/internal/punch/fleet"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

// newTestFleet builds a fleet of n sim-backed supervisors and returns the
// injected drivers for scripting.
func newTestFleet(t *testing.T, n int) (*fleet.Fleet, []*sim.Driver) {
	t.Helper()
	endpoints := make([]types.DeviceEndpoint, n)
	for i := range endpoints {
		endpoints[i] = testEndpoint(string(rune('a' + i)))
		endpoints[i].Port = 4370 + i
	}
	f := fleet.New(endpoints, time.Millisecond, testLogger())

	drivers := make([]*sim.Driver, 0, n)
	for _, sup := range f.Supervisors() {
		d := sim.New()
		sup.SetDriver(d)
		drivers = append(drivers, d)
	}
	return f, drivers
}

func TestNew_SkipsDisabledEndpoints(t *testing.T) {
	endpoints := []types.DeviceEndpoint{
		testEndpoint("on"),
		{Name: "off", Address: "127.0.0.2", Port: 4370, Driver: "sim", Enabled: false},
	}
	f := fleet.New(endpoints, time.Millisecond, testLogger())
	if f.Size() != 1 {
		t.Fatalf("expected 1 enabled member, got %d", f.Size())
	}
}

func TestConnectAll_FailuresAreSkippedNotFatal(t *testing.T) {
	f, drivers := newTestFleet(t, 3)
	drivers[1].FailConnect = true

	f.ConnectAll(context.Background())

	status := f.Status()
	want := []string{"connected", "disconnected", "connected"}
	for i, s := range status {
		if s.Status != want[i] {
			t.Errorf("device %s: expected %s, got %s", s.Name, want[i], s.Status)
		}
	}
}

func TestWatchdog_RetriesFailedDeviceOncePerTick(t *testing.T) {
	f, drivers := newTestFleet(t, 1)
	drivers[0].FailConnect = true

	f.ConnectAll(context.Background())
	if got := drivers[0].Connects(); got != 1 {
		t.Fatalf("expected 1 initial attempt, got %d", got)
	}

	// Each watchdog pass retries a disconnected device exactly once.
	f.MaintainConnections(context.Background())
	if got := drivers[0].Connects(); got != 2 {
		t.Fatalf("expected 2 attempts after one tick, got %d", got)
	}
	f.MaintainConnections(context.Background())
	if got := drivers[0].Connects(); got != 3 {
		t.Fatalf("expected 3 attempts after two ticks, got %d", got)
	}

	if got := f.Status()[0].Status; got != "disconnected" {
		t.Fatalf("expected device to stay disconnected, got %s", got)
	}
}

func TestWatchdog_ReconnectsOnPingFailure(t *testing.T) {
	f, drivers := newTestFleet(t, 1)
	f.ConnectAll(context.Background())

	drivers[0].FailPing = true
	f.MaintainConnections(context.Background())

	if got := drivers[0].Disconnects(); got != 1 {
		t.Errorf("expected one teardown during heal, got %d", got)
	}
	if got := drivers[0].Connects(); got != 2 {
		t.Errorf("expected a fresh handshake during heal, got %d connects", got)
	}
	// The reconnect succeeded, so the member is connected again even
	// though its ping is still broken; the next tick will heal again.
	if got := f.Status()[0].Status; got != "connected" {
		t.Fatalf("expected connected after heal, got %s", got)
	}
}

func TestWatchdog_HealthyDeviceUntouched(t *testing.T) {
	f, drivers := newTestFleet(t, 1)
	f.ConnectAll(context.Background())

	f.MaintainConnections(context.Background())
	f.MaintainConnections(context.Background())

	if got := drivers[0].Connects(); got != 1 {
		t.Errorf("healthy device should not be reconnected, got %d connects", got)
	}
	if got := drivers[0].Disconnects(); got != 0 {
		t.Errorf("healthy device should not be torn down, got %d disconnects", got)
	}
}

func TestDisconnectAll_LeavesEveryMemberDisconnected(t *testing.T) {
	f, _ := newTestFleet(t, 3)
	f.ConnectAll(context.Background())
	f.DisconnectAll()

	for _, s := range f.Status() {
		if s.Status != "disconnected" {
			t.Errorf("device %s: expected disconnected, got %s", s.Name, s.Status)
		}
	}
}

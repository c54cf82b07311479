package fleet_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/driver/sim"
	"github.com/jmichalek/punchsync/internal/punch/fleet"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

func testEndpoint(name string) types.DeviceEndpoint {
	return types.DeviceEndpoint{
		Name:    name,
		Address: "127.0.0.1",
		Port:    4370,
		Driver:  "sim",
		Enabled: true,
	}
}

// newTestSupervisor builds a supervisor with an injected sim driver and a
// drained event channel.
func newTestSupervisor(t *testing.T) (*fleet.Supervisor, *sim.Driver, chan fleet.Event) {
	t.Helper()
	events := make(chan fleet.Event, 64)
	sup := fleet.NewSupervisor(testEndpoint("lobby"), events, time.Millisecond, testLogger())
	d := sim.New()
	sup.SetDriver(d)
	return sup, d, events
}

func TestConnect_RecordsSerialAndStatus(t *testing.T) {
	sup, d, _ := newTestSupervisor(t)
	d.SetSerial("A8N5210042")

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c := sup.Connection()
	if c.Status != fleet.Connected {
		t.Fatalf("expected Connected, got %v", c.Status)
	}
	if c.SerialNumber != "A8N5210042" {
		t.Errorf("expected serial to be recorded, got %q", c.SerialNumber)
	}
	if c.LastSeen.IsZero() {
		t.Error("expected last_seen to be set")
	}
}

func TestConnect_FailureLeavesDisconnected(t *testing.T) {
	sup, d, _ := newTestSupervisor(t)
	d.FailConnect = true

	if err := sup.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if got := sup.Connection().Status; got != fleet.Disconnected {
		t.Fatalf("expected Disconnected after failed connect, got %v", got)
	}
}

func TestConnect_UnknownDriverIsRetryableError(t *testing.T) {
	events := make(chan fleet.Event, 1)
	ep := testEndpoint("lobby")
	ep.Driver = "no-such-adapter"
	sup := fleet.NewSupervisor(ep, events, time.Millisecond, testLogger())

	if err := sup.Connect(context.Background()); err == nil {
		t.Fatal("expected error for unregistered driver")
	}
	if got := sup.Connection().Status; got != fleet.Disconnected {
		t.Fatalf("expected Disconnected, got %v", got)
	}
}

func TestDisconnect_TwiceIsSafe(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sup.Disconnect()
	sup.Disconnect() // must not panic or error

	if got := sup.Connection().Status; got != fleet.Disconnected {
		t.Fatalf("expected Disconnected after double disconnect, got %v", got)
	}
}

func TestPing_DoesNotMutateStatus(t *testing.T) {
	sup, d, _ := newTestSupervisor(t)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.FailPing = true
	if sup.Ping(context.Background()) {
		t.Fatal("expected ping to fail")
	}
	if got := sup.Connection().Status; got != fleet.Connected {
		t.Fatalf("ping must not demote status, got %v", got)
	}
}

func TestReconnect_TearsDownThenConnects(t *testing.T) {
	sup, d, _ := newTestSupervisor(t)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := sup.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if d.Disconnects() != 1 {
		t.Errorf("expected 1 disconnect, got %d", d.Disconnects())
	}
	if d.Connects() != 2 {
		t.Errorf("expected 2 connects, got %d", d.Connects())
	}
	if got := sup.Connection().Status; got != fleet.Connected {
		t.Fatalf("expected Connected after reconnect, got %v", got)
	}
}

func TestReadBacklog_BestEffortOnDriverError(t *testing.T) {
	sup, d, _ := newTestSupervisor(t)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.SetBacklog([]types.RawLog{
		{EmployeeID: 1001, Timestamp: time.Now(), Valid: true},
		{EmployeeID: 1002, Timestamp: time.Now(), Valid: true},
	})
	d.BacklogErr = context.DeadlineExceeded

	logs := sup.ReadBacklog(context.Background())
	if len(logs) != 2 {
		t.Fatalf("expected partial results despite read error, got %d", len(logs))
	}
}

func TestDisconnectCallback_DemotesAndEmitsLost(t *testing.T) {
	sup, d, events := newTestSupervisor(t)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	d.EmitDisconnect()

	if got := sup.Connection().Status; got != fleet.Disconnected {
		t.Fatalf("expected Disconnected after disconnect callback, got %v", got)
	}

	select {
	case ev := <-events:
		if ev.Kind != fleet.KindLost {
			t.Fatalf("expected lost event, got %v", ev.Kind)
		}
		if ev.Device != "lobby" {
			t.Errorf("expected device tag lobby, got %q", ev.Device)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a lost event on the fleet channel")
	}
}

func TestAttendanceCallback_TaggedWithDeviceIdentity(t *testing.T) {
	sup, d, events := newTestSupervisor(t)
	if err := sup.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ts := time.Date(2026, 3, 9, 8, 7, 0, 0, time.UTC)
	d.EmitAttendance(1001, true, types.StateCheckIn, types.VerifyFingerprint, ts, 7)

	select {
	case ev := <-events:
		if ev.Kind != fleet.KindAttendance {
			t.Fatalf("expected attendance event, got %v", ev.Kind)
		}
		a := ev.Attendance
		if a == nil {
			t.Fatal("expected attendance payload")
		}
		if a.DeviceName != "lobby" || a.DeviceAddress != "127.0.0.1" {
			t.Errorf("expected device tagging, got name=%q addr=%q", a.DeviceName, a.DeviceAddress)
		}
		if a.EmployeeID != 1001 || !a.EventTime.Equal(ts) || a.WorkCode != 7 {
			t.Errorf("payload mismatch: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an attendance event on the fleet channel")
	}
}

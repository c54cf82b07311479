// Package sim is an in-process terminal adapter with no real device behind
// it. Tests script it directly; dev deployments can point an endpoint at it
// to exercise the full pipeline without hardware.
package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/driver"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

func init() {
	driver.Register("sim", func(logger *log.Logger) driver.Driver {
		return New()
	})
}

// Driver simulates one terminal. The zero value connects successfully,
// answers pings, and has an empty backlog. Unlike real adapters it is safe
// for concurrent use, because tests poke it while the supervisor runs.
type Driver struct {
	mu sync.Mutex

	handler   driver.Handler
	connected bool
	serial    string
	backlog   []types.RawLog

	// Failure switches, settable at any time.
	FailConnect bool
	FailPing    bool
	BacklogErr  error

	connects    int
	disconnects int
}

func New() *Driver {
	return &Driver{serial: "SIM-0001"}
}

func (d *Driver) SetHandler(h driver.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *Driver) Connect(_ context.Context, address string, port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	if d.FailConnect {
		return fmt.Errorf("%w: simulated connect failure to %s:%d", driver.ErrUnavailable, address, port)
	}
	d.connected = true
	return nil
}

func (d *Driver) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	d.connected = false
}

func (d *Driver) Ping(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected && !d.FailPing
}

func (d *Driver) SerialNumber() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ""
	}
	return d.serial
}

func (d *Driver) ReadBacklog(context.Context) ([]types.RawLog, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.RawLog, len(d.backlog))
	copy(out, d.backlog)
	return out, d.BacklogErr
}

// ── Scripting helpers ────────────────────────────────────────────────────────

// SetSerial overrides the serial reported after Connect.
func (d *Driver) SetSerial(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serial = s
}

// SetBacklog replaces the buffered historical records.
func (d *Driver) SetBacklog(logs []types.RawLog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backlog = append([]types.RawLog(nil), logs...)
}

// EmitAttendance fires the attendance callback as if the terminal pushed a
// scan.
func (d *Driver) EmitAttendance(employeeID int, valid bool, state, verify int, ts time.Time, workCode int) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h.OnAttendance != nil {
		h.OnAttendance(employeeID, valid, state, verify, ts, workCode)
	}
}

// EmitDisconnect fires the disconnect callback and drops the link.
func (d *Driver) EmitDisconnect() {
	d.mu.Lock()
	d.connected = false
	h := d.handler
	d.mu.Unlock()
	if h.OnDisconnected != nil {
		h.OnDisconnected()
	}
}

// EmitCard fires the card-swipe callback.
func (d *Driver) EmitCard(cardNumber string) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h.OnCard != nil {
		h.OnCard(cardNumber)
	}
}

// EmitVerify fires the verify callback.
func (d *Driver) EmitVerify(userID int) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h.OnVerify != nil {
		h.OnVerify(userID)
	}
}

// Connects reports how many Connect attempts the driver has seen.
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Disconnects reports how many Disconnect calls the driver has seen.
func (d *Driver) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// Connected reports the simulated link state.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

package fleet

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/driver"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

// Status of one device connection.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Connection is the runtime state of one endpoint. Status reflects the last
// successful liveness probe, not merely a historical Connect success: the
// watchdog demotes a device whose ping fails even though the handshake once
// succeeded.
type Connection struct {
	Status       Status
	SerialNumber string
	LastSeen     time.Time
}

// Supervisor owns one device's connection lifecycle. The driver handle is
// exclusively owned by its supervisor; nothing else touches it. All state
// transitions run through Connect, Disconnect and the driver's disconnect
// callback.
type Supervisor struct {
	endpoint types.DeviceEndpoint
	logger   *log.Logger
	events   chan<- Event
	pause    time.Duration // between Disconnect and Connect in Reconnect

	mu   sync.Mutex
	drv  driver.Driver
	conn Connection
}

// NewSupervisor builds a supervisor for one endpoint. The driver itself is
// resolved from the registry on the first Connect, so a missing adapter is a
// retryable connection error rather than a construction failure.
func NewSupervisor(ep types.DeviceEndpoint, events chan<- Event, pause time.Duration, logger *log.Logger) *Supervisor {
	if pause <= 0 {
		pause = 2 * time.Second
	}
	return &Supervisor{
		endpoint: ep,
		logger:   logger,
		events:   events,
		pause:    pause,
	}
}

// SetDriver injects a pre-built driver, bypassing the registry. Dev wiring
// and tests use this to script a sim driver instance they keep a handle on.
func (s *Supervisor) SetDriver(d driver.Driver) {
	d.SetHandler(s.handler())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drv = d
}

// Endpoint returns the immutable config this supervisor was built from.
func (s *Supervisor) Endpoint() types.DeviceEndpoint { return s.endpoint }

// Connection returns a snapshot of the runtime state.
func (s *Supervisor) Connection() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Connect performs the handshake and subscribes to the device's event
// stream. Any failure, including a missing driver adapter, comes back as an
// error for the caller to log; it never takes the process down, and the
// status stays Disconnected so the watchdog retries.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn.Status == Connected {
		s.mu.Unlock()
		return nil
	}
	drv := s.drv
	s.mu.Unlock()

	if drv == nil {
		d, err := driver.New(s.endpoint.Driver, s.logger)
		if err != nil {
			return fmt.Errorf("device %s: %w", s.endpoint.Name, err)
		}
		d.SetHandler(s.handler())
		s.mu.Lock()
		s.drv = d
		s.mu.Unlock()
		drv = d
	}

	if err := drv.Connect(ctx, s.endpoint.Address, s.endpoint.Port); err != nil {
		return fmt.Errorf("device %s (%s:%d): connect: %w",
			s.endpoint.Name, s.endpoint.Address, s.endpoint.Port, err)
	}

	serial := drv.SerialNumber()
	s.mu.Lock()
	s.conn.Status = Connected
	s.conn.SerialNumber = serial
	s.conn.LastSeen = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Printf("device %s: connected serial=%s", s.endpoint.Name, serial)
	return nil
}

// Disconnect releases the driver's resources. Idempotent: calling it on an
// already-disconnected supervisor is a no-op. Must complete before a
// subsequent Connect, which the per-supervisor serialization guarantees.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	drv := s.drv
	s.conn.Status = Disconnected
	s.mu.Unlock()

	if drv != nil {
		drv.Disconnect()
	}
}

// Ping probes liveness without mutating status; the watchdog decides
// whether a failed probe warrants a reconnect.
func (s *Supervisor) Ping(ctx context.Context) bool {
	s.mu.Lock()
	drv := s.drv
	s.mu.Unlock()
	if drv == nil {
		return false
	}
	ok := drv.Ping(ctx)
	if ok {
		s.mu.Lock()
		s.conn.LastSeen = time.Now().UTC()
		s.mu.Unlock()
	}
	return ok
}

// Reconnect is the recovery unit the watchdog applies to a device whose
// ping failed: tear down, brief pause, fresh handshake.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	s.Disconnect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.pause):
	}
	return s.Connect(ctx)
}

// ReadBacklog pulls the records buffered on the device. Best-effort: a
// driver read error is logged and whatever was read before it is returned.
func (s *Supervisor) ReadBacklog(ctx context.Context) []types.RawLog {
	s.mu.Lock()
	drv := s.drv
	status := s.conn.Status
	s.mu.Unlock()
	if drv == nil || status != Connected {
		return nil
	}

	logs, err := drv.ReadBacklog(ctx)
	if err != nil {
		s.logger.Printf("device %s: backlog read stopped after %d records: %v",
			s.endpoint.Name, len(logs), err)
	}
	return logs
}

// handler adapts the driver callbacks into tagged fleet events. Callbacks
// run on the driver's goroutine; the send blocks if the aggregate channel is
// full, which only happens when the consumer has stalled.
func (s *Supervisor) handler() driver.Handler {
	return driver.Handler{
		OnAttendance: func(employeeID int, valid bool, state, verify int, ts time.Time, workCode int) {
			ev := types.AttendanceEvent{
				EmployeeID:      employeeID,
				EventTime:       ts,
				VerifyMethod:    verify,
				AttendanceState: state,
				WorkCode:        workCode,
				DeviceName:      s.endpoint.Name,
				DeviceAddress:   s.endpoint.Address,
				Valid:           valid,
			}
			s.events <- Event{Device: s.endpoint.Name, Kind: KindAttendance, Time: ts, Attendance: &ev}
		},
		OnDisconnected: func() {
			s.mu.Lock()
			s.conn.Status = Disconnected
			s.mu.Unlock()
			s.logger.Printf("device %s: connection lost", s.endpoint.Name)
			s.events <- Event{Device: s.endpoint.Name, Kind: KindLost, Time: time.Now().UTC()}
		},
		OnFingerPlaced: func() {
			s.events <- Event{Device: s.endpoint.Name, Kind: KindFingerPlaced, Time: time.Now().UTC()}
		},
		OnVerify: func(userID int) {
			s.events <- Event{Device: s.endpoint.Name, Kind: KindVerify, Time: time.Now().UTC(), UserID: userID}
		},
		OnCard: func(cardNumber string) {
			s.events <- Event{Device: s.endpoint.Name, Kind: KindCard, Time: time.Now().UTC(), CardNumber: cardNumber}
		},
		OnNewUser: func(userID int) {
			s.events <- Event{Device: s.endpoint.Name, Kind: KindNewUser, Time: time.Now().UTC(), UserID: userID}
		},
	}
}

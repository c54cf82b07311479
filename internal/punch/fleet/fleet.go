// Package fleet owns the set of device supervisors: parallel connect at
// startup, a periodic watchdog that heals dead connections, and one
// aggregated event channel for the whole fleet.
package fleet

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

// eventBuffer absorbs bursts from several devices scanning at once. The
// orchestrator hands each event off to its own goroutine, so the buffer only
// fills when consumption has stopped entirely.
const eventBuffer = 256

// Fleet holds one supervisor per enabled endpoint.
type Fleet struct {
	logger *log.Logger
	sups   []*Supervisor
	events chan Event
}

// New builds the fleet from the loaded endpoint list. Disabled endpoints are
// skipped here as well, so callers can hand the raw config list over.
// pause is the Reconnect back-off between teardown and fresh handshake.
func New(endpoints []types.DeviceEndpoint, pause time.Duration, logger *log.Logger) *Fleet {
	f := &Fleet{
		logger: logger,
		events: make(chan Event, eventBuffer),
	}
	for _, ep := range endpoints {
		if !ep.Enabled {
			continue
		}
		f.sups = append(f.sups, NewSupervisor(ep, f.events, pause, logger))
	}
	return f
}

// Events is the single subscription point for every device's callbacks.
func (f *Fleet) Events() <-chan Event { return f.events }

// Supervisors exposes the members, primarily for backlog collection during
// a resync.
func (f *Fleet) Supervisors() []*Supervisor { return f.sups }

// Size reports the number of enabled endpoints under management.
func (f *Fleet) Size() int { return len(f.sups) }

// ConnectAll attempts the initial handshake on every member in parallel.
// Failures are logged and skipped; the watchdog retries them on its next
// tick rather than immediately.
func (f *Fleet) ConnectAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range f.sups {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			if err := s.Connect(ctx); err != nil {
				f.logger.Printf("fleet: initial connect failed: %v", err)
			}
		}(s)
	}
	wg.Wait()
}

// MaintainConnections is one watchdog pass: reconnect the dead, probe the
// live, heal the unresponsive. Runs members in parallel so one unreachable
// device's timeout does not delay probing the rest. Each tick attempts at
// most one Connect per disconnected device.
func (f *Fleet) MaintainConnections(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range f.sups {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			f.maintain(ctx, s)
		}(s)
	}
	wg.Wait()
}

func (f *Fleet) maintain(ctx context.Context, s *Supervisor) {
	name := s.Endpoint().Name

	if s.Connection().Status == Disconnected {
		if err := s.Connect(ctx); err != nil {
			f.logger.Printf("fleet: watchdog connect failed device=%s: %v", name, err)
			return
		}
		f.logger.Printf("fleet: watchdog reconnected device=%s", name)
		return
	}

	if s.Ping(ctx) {
		return
	}

	f.logger.Printf("fleet: watchdog lost device=%s, reconnecting", name)
	if err := s.Reconnect(ctx); err != nil {
		f.logger.Printf("fleet: watchdog reconnect failed device=%s: %v", name, err)
		return
	}
	f.logger.Printf("fleet: watchdog recovered device=%s", name)
}

// DisconnectAll tears down every connection. Used at shutdown.
func (f *Fleet) DisconnectAll() {
	for _, s := range f.sups {
		s.Disconnect()
	}
}

// DeviceStatus is the admin-facing snapshot of one member.
type DeviceStatus struct {
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Port         int       `json:"port"`
	Status       string    `json:"status"`
	SerialNumber string    `json:"serial_number,omitempty"`
	LastSeen     time.Time `json:"last_seen,omitzero"`
}

// Status snapshots every member for the admin API.
func (f *Fleet) Status() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(f.sups))
	for _, s := range f.sups {
		ep := s.Endpoint()
		c := s.Connection()
		out = append(out, DeviceStatus{
			Name:         ep.Name,
			Address:      ep.Address,
			Port:         ep.Port,
			Status:       c.Status.String(),
			SerialNumber: c.SerialNumber,
			LastSeen:     c.LastSeen,
		})
	}
	return out
}

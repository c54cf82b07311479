// Package service wires the fleet's event stream into the store fan-out and
// the work-record derivation, and drives the connection watchdog.
package service

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/fleet"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

const (
	// DefaultWatchdogInterval is how often MaintainConnections runs.
	DefaultWatchdogInterval = 30 * time.Second

	// writeGrace bounds the store writes of one event. Writes run on a
	// context detached from shutdown so an in-flight insert finishes
	// instead of leaving a partial fan-out.
	writeGrace = 30 * time.Second

	// drainGrace is how long shutdown waits for in-flight events.
	drainGrace = 10 * time.Second
)

// Orchestrator is the long-lived supervisory component: it connects devices
// and stores at startup, processes each device event as its own unit of
// work, ticks the watchdog for process lifetime, and exposes the manual
// clear-and-resync maintenance operation.
type Orchestrator struct {
	logger           *log.Logger
	fleet            *fleet.Fleet
	fanout           *Fanout
	engine           *WorkRecordEngine
	watchdogInterval time.Duration

	// resyncMu serializes the maintenance resync against steady-state
	// event processing: handlers hold the read side, Resync the write
	// side, so ClearAll never races an Insert.
	resyncMu sync.RWMutex
	inflight sync.WaitGroup

	received     atomic.Uint64
	insertFails  atomic.Uint64
	deriveFails  atomic.Uint64
	lastEventUTC atomic.Int64
}

func NewOrchestrator(fl *fleet.Fleet, fo *Fanout, eng *WorkRecordEngine, watchdogInterval time.Duration, logger *log.Logger) *Orchestrator {
	if watchdogInterval <= 0 {
		watchdogInterval = DefaultWatchdogInterval
	}
	return &Orchestrator{
		logger:           logger,
		fleet:            fl,
		fanout:           fo,
		engine:           eng,
		watchdogInterval: watchdogInterval,
	}
}

// Run connects the fleet and processes events until ctx is cancelled, then
// drains. A run with no devices or no stores configured stays alive in idle
// mode — a misconfigured deploy should sit quietly, not crash-loop.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.fleet.Size() == 0 {
		o.logger.Printf("no enabled devices configured, running idle")
	}
	if len(o.fanout.Stores()) == 0 {
		o.logger.Printf("no active stores configured, running degraded")
	}

	o.fleet.ConnectAll(ctx)

	var watchdogDone sync.WaitGroup
	watchdogDone.Add(1)
	go func() {
		defer watchdogDone.Done()
		o.watchdog(ctx)
	}()

	events := o.fleet.Events()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-events:
			o.inflight.Add(1)
			go func(ev fleet.Event) {
				defer o.inflight.Done()
				o.handleEvent(ev)
			}(ev)
		}
	}

	watchdogDone.Wait()
	o.drain()
	o.fleet.DisconnectAll()
}

// watchdog ticks MaintainConnections for process lifetime and exits within
// one interval of shutdown.
func (o *Orchestrator) watchdog(ctx context.Context) {
	ticker := time.NewTicker(o.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.fleet.MaintainConnections(ctx)
		}
	}
}

// handleEvent processes one fleet notification. Attendance events fan out
// to replication and derivation concurrently; everything else is logged.
// The store writes run on a fresh context so a shutdown arriving mid-event
// lets them finish rather than aborting a half-replicated event.
func (o *Orchestrator) handleEvent(ev fleet.Event) {
	o.resyncMu.RLock()
	defer o.resyncMu.RUnlock()

	switch ev.Kind {
	case fleet.KindAttendance:
		o.processAttendance(*ev.Attendance)
	case fleet.KindLost:
		// Transition already logged by the supervisor; the watchdog heals it.
	default:
		o.logger.Printf("event device=%s kind=%s user=%d card=%s",
			ev.Device, ev.Kind, ev.UserID, ev.CardNumber)
	}
}

func (o *Orchestrator) processAttendance(ev types.AttendanceEvent) {
	o.received.Add(1)
	o.lastEventUTC.Store(time.Now().UTC().UnixMilli())
	o.logger.Printf("attendance device=%s employee=%d time=%s state=%d verify=%d valid=%t",
		ev.DeviceName, ev.EmployeeID, ev.EventTime.Format(time.RFC3339), ev.AttendanceState, ev.VerifyMethod, ev.Valid)

	writeCtx, cancel := context.WithTimeout(context.Background(), writeGrace)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if failed := o.fanout.Insert(writeCtx, ev); failed > 0 {
			o.insertFails.Add(uint64(failed))
		}
	}()

	if ev.Valid {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if failed := o.engine.ProcessAll(writeCtx, o.fanout.Stores(), ev); failed > 0 {
				o.deriveFails.Add(uint64(failed))
			}
		}()
	}

	wg.Wait()
}

// drain waits for in-flight event handlers, up to drainGrace.
func (o *Orchestrator) drain() {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainGrace):
		o.logger.Printf("shutdown: drain grace expired with events still in flight")
	}
}

// ResyncReport summarizes one clear-and-resync run.
type ResyncReport struct {
	Devices      int `json:"devices"`
	Events       int `json:"events"`
	InsertFails  int `json:"insert_failures"`
	DeriveFails  int `json:"derive_failures"`
	StoresActive int `json:"stores_active"`
}

// Resync is the maintenance operation: wipe every active store, pull the
// full backlog from every connected device, sort globally by event
// timestamp and replay sequentially through the same insert-and-derive
// path. Sequential replay makes the derived records match what real-time
// processing in timestamp order would have produced.
//
// Holding the resync lock blocks steady-state handlers for the duration, so
// the operational rule that ClearAll and ingestion never overlap holds by
// construction.
func (o *Orchestrator) Resync(ctx context.Context) (ResyncReport, error) {
	o.resyncMu.Lock()
	defer o.resyncMu.Unlock()

	report := ResyncReport{StoresActive: len(o.fanout.Stores())}

	if err := o.fanout.ClearAll(ctx); err != nil {
		return report, err
	}

	var all []types.AttendanceEvent
	for _, sup := range o.fleet.Supervisors() {
		if sup.Connection().Status != fleet.Connected {
			continue
		}
		report.Devices++
		ep := sup.Endpoint()
		for _, rl := range sup.ReadBacklog(ctx) {
			all = append(all, rl.Event(ep.Name, ep.Address))
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EventTime.Before(all[j].EventTime)
	})

	for _, ev := range all {
		report.Events++
		report.InsertFails += o.fanout.Insert(ctx, ev)
		if ev.Valid {
			report.DeriveFails += o.engine.ProcessAll(ctx, o.fanout.Stores(), ev)
		}
	}

	o.logger.Printf("resync complete devices=%d events=%d insert_failures=%d derive_failures=%d",
		report.Devices, report.Events, report.InsertFails, report.DeriveFails)
	return report, nil
}

// StatusReport is the admin-facing snapshot.
type StatusReport struct {
	Devices        []fleet.DeviceStatus `json:"devices"`
	Stores         []string             `json:"stores"`
	Received       uint64               `json:"events_received"`
	InsertFailures uint64               `json:"insert_failures"`
	DeriveFailures uint64               `json:"derive_failures"`
	LastEvent      time.Time            `json:"last_event,omitzero"`
}

// Status snapshots fleet state, active stores and ingest counters.
func (o *Orchestrator) Status() StatusReport {
	r := StatusReport{
		Devices:        o.fleet.Status(),
		Stores:         o.fanout.Names(),
		Received:       o.received.Load(),
		InsertFailures: o.insertFails.Load(),
		DeriveFailures: o.deriveFails.Load(),
	}
	if ms := o.lastEventUTC.Load(); ms != 0 {
		r.LastEvent = time.UnixMilli(ms).UTC()
	}
	return r
}

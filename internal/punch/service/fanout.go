package service

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/jmichalek/punchsync/internal/punch/store"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

// Fanout owns the set of active stores and replicates each event to every
// one of them independently. A store that fails its startup probe is
// excluded for the run; a store that fails a single write loses that one
// event and nothing else. Running with zero stores is degraded service, not
// an error.
type Fanout struct {
	logger *log.Logger
	stores []store.AttendanceStore
}

func NewFanout(logger *log.Logger) *Fanout {
	return &Fanout{logger: logger}
}

// Initialize probes every candidate and keeps the ones that pass both the
// connectivity test and schema setup. Failing candidates are closed and
// excluded, logged once each — there is no auto-retry for stores.
func (f *Fanout) Initialize(ctx context.Context, candidates []store.AttendanceStore) {
	for _, st := range candidates {
		if err := st.TestConnection(ctx); err != nil {
			f.logger.Printf("store %s: connectivity probe failed, excluding for this run: %v", st.Name(), err)
			_ = st.Close()
			continue
		}
		if err := st.EnsureSchema(ctx); err != nil {
			f.logger.Printf("store %s: schema setup failed, excluding for this run: %v", st.Name(), err)
			_ = st.Close()
			continue
		}
		f.stores = append(f.stores, st)
		f.logger.Printf("store %s: active", st.Name())
	}

	if len(f.stores) == 0 {
		f.logger.Printf("no active stores: events will be received but not persisted")
	}
}

// Stores returns the active handles. The work-record engine iterates these
// for its per-store derivation.
func (f *Fanout) Stores() []store.AttendanceStore { return f.stores }

// Names lists the active stores for status output.
func (f *Fanout) Names() []string {
	out := make([]string, 0, len(f.stores))
	for _, st := range f.stores {
		out = append(out, st.Name())
	}
	return out
}

// Insert writes the event to every active store in parallel. Per-store
// failures are logged and isolated; the call itself never fails, even when
// every store does. Returns the number of stores that failed, for the
// orchestrator's counters.
func (f *Fanout) Insert(ctx context.Context, ev types.AttendanceEvent) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, st := range f.stores {
		wg.Add(1)
		go func(st store.AttendanceStore) {
			defer wg.Done()
			if err := st.InsertRawEvent(ctx, ev); err != nil {
				f.logger.Printf("store %s: insert failed employee=%d device=%s: %v",
					st.Name(), ev.EmployeeID, ev.DeviceName, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(st)
	}
	wg.Wait()
	return failed
}

// ClearAll wipes the event log and work-record tables on every active
// store. Only the explicit maintenance resync calls this; it must never run
// concurrently with steady-state inserts. Per-store errors are joined so the
// caller can abort a resync whose clear was incomplete.
func (f *Fanout) ClearAll(ctx context.Context) error {
	var errs []error
	for _, st := range f.stores {
		if err := st.ClearAll(ctx); err != nil {
			f.logger.Printf("store %s: clear failed: %v", st.Name(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every active handle.
func (f *Fanout) Close() {
	for _, st := range f.stores {
		if err := st.Close(); err != nil {
			f.logger.Printf("store %s: close: %v", st.Name(), err)
		}
	}
}

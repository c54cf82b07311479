package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmichalek/punchsync/internal/punch/store"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

// Work-record boundaries, as wall-clock offsets from midnight of the
// event's day.
const (
	workdayStart = 8 * time.Hour                // default start for early arrivals
	startGrace   = 8*time.Hour + 15*time.Minute // scans before this round to 08:00
	workdayEnd   = 17 * time.Hour               // default end until a later scan moves it
)

// WorkRecordEngine derives the per-employee daily summary. It runs
// identically and independently against every active store; there is no
// cross-store merge, so stores that missed events drift until a resync.
type WorkRecordEngine struct {
	logger *log.Logger
}

func NewWorkRecordEngine(logger *log.Logger) *WorkRecordEngine {
	return &WorkRecordEngine{logger: logger}
}

// Process applies one valid event to one store.
//
// First scan of the day: workStart is 08:00 for anything before 08:15,
// otherwise the scan floored to its 15-minute boundary; workEnd defaults to
// 17:00. Every later scan moves workEnd: floored to 15 minutes before
// 17:00, unrounded at or after 17:00 (the unrounded branch is intentional;
// overtime is paid to the minute). A day whose first scan lands at or after
// 17:00 therefore starts with workEnd before workStart and negative hours,
// corrected by any later scan; flagged for product review.
//
// Unknown employees are filtered silently: the roster is the system of
// record and a scan from an enroll number it does not know is noise, not an
// error. Same-employee races are last-write-wins; correctness assumes
// per-employee events arrive in non-decreasing timestamp order.
func (e *WorkRecordEngine) Process(ctx context.Context, st store.AttendanceStore, ev types.AttendanceEvent) error {
	emp, err := st.GetEmployee(ctx, ev.EmployeeID)
	if err != nil {
		return err
	}
	if emp == nil {
		return nil
	}

	day := types.Day(ev.EventTime)
	rec, err := st.GetTodayWorkRecord(ctx, ev.EmployeeID, day)
	if err != nil {
		return err
	}

	if rec == nil {
		start := day.Add(workdayStart)
		if !ev.EventTime.Before(day.Add(startGrace)) {
			start = floorQuarter(ev.EventTime)
		}
		end := day.Add(workdayEnd)

		return st.CreateWorkRecord(ctx, types.WorkRecord{
			ID:            uuid.NewString(),
			EmployeeID:    ev.EmployeeID,
			Date:          day,
			WorkStart:     start,
			WorkEnd:       end,
			ComputedHours: end.Sub(start).Hours(),
		})
	}

	if ev.EventTime.Before(day.Add(workdayEnd)) {
		rec.WorkEnd = floorQuarter(ev.EventTime)
	} else {
		rec.WorkEnd = ev.EventTime
	}
	rec.ComputedHours = rec.WorkEnd.Sub(rec.WorkStart).Hours()

	return st.UpdateWorkRecord(ctx, *rec)
}

// ProcessAll runs Process against every active store in parallel, isolating
// per-store failures. Returns the number of stores that failed.
func (e *WorkRecordEngine) ProcessAll(ctx context.Context, stores []store.AttendanceStore, ev types.AttendanceEvent) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, st := range stores {
		wg.Add(1)
		go func(st store.AttendanceStore) {
			defer wg.Done()
			if err := e.Process(ctx, st, ev); err != nil {
				e.logger.Printf("store %s: work record update failed employee=%d: %v",
					st.Name(), ev.EmployeeID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(st)
	}
	wg.Wait()
	return failed
}

// floorQuarter floors t to the preceding 15-minute boundary in t's own
// location. Done on wall-clock components rather than Truncate, which works
// on absolute time and misrounds in zones with non-hour offsets.
func floorQuarter(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, _ := t.Clock()
	return time.Date(y, m, d, hh, mm-mm%15, 0, 0, t.Location())
}

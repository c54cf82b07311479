// Package store defines the capability every attendance store engine
// implements. One event is replicated to every active store independently;
// implementations never see each other and must not assume they are the
// only copy of the data.
package store

import (
	"context"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

// AttendanceStore is one relational store. Lookup methods return (nil, nil)
// when the row is absent; absence is an expected outcome, not an error.
//
// Implementations either serialize writes internally or open short-lived
// operations per call; callers invoke them from concurrent goroutines
// without external locking.
type AttendanceStore interface {
	// Name identifies the store in logs and status output.
	Name() string

	// TestConnection probes reachability. Run once at startup: a store
	// failing the probe is excluded for the rest of the run.
	TestConnection(ctx context.Context) error

	// EnsureSchema creates or migrates the tables. Idempotent.
	EnsureSchema(ctx context.Context) error

	// ClearAll wipes the event log and work-record tables. Maintenance
	// only; never called during steady-state ingestion.
	ClearAll(ctx context.Context) error

	// InsertRawEvent appends one attendance event.
	InsertRawEvent(ctx context.Context, ev types.AttendanceEvent) error

	// GetEmployee reads the external employee roster.
	GetEmployee(ctx context.Context, id int) (*types.Employee, error)

	// GetTodayWorkRecord fetches the live record for (employee, day).
	GetTodayWorkRecord(ctx context.Context, employeeID int, day time.Time) (*types.WorkRecord, error)

	// CreateWorkRecord inserts the first record of an employee's day.
	CreateWorkRecord(ctx context.Context, rec types.WorkRecord) error

	// UpdateWorkRecord rewrites an existing record. Last write wins; no
	// optimistic locking.
	UpdateWorkRecord(ctx context.Context, rec types.WorkRecord) error

	// Close releases the engine's resources.
	Close() error
}

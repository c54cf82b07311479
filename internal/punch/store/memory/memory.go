// Package memory is the in-process AttendanceStore used by tests and by dev
// runs that want the full pipeline without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

const dayFormat = "2006-01-02"

type recordKey struct {
	employeeID int
	day        string
}

// Store keeps everything in maps under one mutex. Error fields let tests
// inject per-operation failures to exercise the fan-out's isolation.
type Store struct {
	name string

	mu        sync.Mutex
	employees map[int]types.Employee
	events    []types.AttendanceEvent
	records   map[recordKey]types.WorkRecord

	// Injectable failures, nil by default.
	ProbeErr  error
	InsertErr error
	CreateErr error
	UpdateErr error
}

func New(name string) *Store {
	return &Store{
		name:      name,
		employees: make(map[int]types.Employee),
		records:   make(map[recordKey]types.WorkRecord),
	}
}

func (s *Store) Name() string { return s.name }

func (s *Store) TestConnection(context.Context) error { return s.ProbeErr }

func (s *Store) EnsureSchema(context.Context) error { return nil }

func (s *Store) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.records = make(map[recordKey]types.WorkRecord)
	return nil
}

func (s *Store) InsertRawEvent(_ context.Context, ev types.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) GetEmployee(_ context.Context, id int) (*types.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) GetTodayWorkRecord(_ context.Context, employeeID int, day time.Time) (*types.WorkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey{employeeID, day.Format(dayFormat)}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) CreateWorkRecord(_ context.Context, rec types.WorkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.records[recordKey{rec.EmployeeID, rec.Date.Format(dayFormat)}] = rec
	return nil
}

func (s *Store) UpdateWorkRecord(_ context.Context, rec types.WorkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.records[recordKey{rec.EmployeeID, rec.Date.Format(dayFormat)}] = rec
	return nil
}

func (s *Store) Close() error { return nil }

// ── Test helpers ─────────────────────────────────────────────────────────────

// AddEmployee seeds the roster.
func (s *Store) AddEmployee(e types.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

// Events returns a copy of the inserted raw events.
func (s *Store) Events() []types.AttendanceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AttendanceEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Records returns a copy of all live work records.
func (s *Store) Records() []types.WorkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.WorkRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// Record fetches one record without going through the interface, for
// assertions that should not care about lookup plumbing.
func (s *Store) Record(employeeID int, day time.Time) (types.WorkRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey{employeeID, day.Format(dayFormat)}]
	return rec, ok
}

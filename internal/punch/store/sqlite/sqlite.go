// Package sqlite is the AttendanceStore engine backed by an embedded SQLite
// file via modernc.org/sqlite. All writes funnel through the serialized
// transaction worker, so the store is safe to call from the fan-out's
// concurrent goroutines.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	dbpkg "github.com/jmichalek/punchsync/internal/db"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

const dayFormat = "2006-01-02"

type Store struct {
	name   string
	db     *sql.DB
	writer *dbpkg.Worker
}

// New wraps an already-open, migrated database (db.Open for the file-backed
// production path, an in-memory database in tests) and starts the write
// worker.
func New(name string, conn *sql.DB) *Store {
	return &Store{name: name, db: conn, writer: dbpkg.NewWorker(conn)}
}

func (s *Store) Name() string { return s.name }

func (s *Store) TestConnection(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema re-applies migrations. Open already migrated, so this is a
// cheap no-op unless a newer binary shipped new migration files.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return dbpkg.Migrate(ctx, s.db)
}

func (s *Store) ClearAll(ctx context.Context) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_records;`); err != nil {
			return fmt.Errorf("ClearAll work_records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_events;`); err != nil {
			return fmt.Errorf("ClearAll attendance_events: %w", err)
		}
		return nil
	})
}

func (s *Store) InsertRawEvent(ctx context.Context, ev types.AttendanceEvent) error {
	valid := 0
	if ev.Valid {
		valid = 1
	}
	receivedMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_events(
  employee_id, event_time_ms, verify_method, attendance_state,
  work_code, device_name, device_address, valid, received_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			ev.EmployeeID, ev.EventTime.UTC().UnixMilli(), ev.VerifyMethod, ev.AttendanceState,
			ev.WorkCode, ev.DeviceName, ev.DeviceAddress, valid, receivedMs,
		); err != nil {
			return fmt.Errorf("InsertRawEvent: %w", err)
		}
		return nil
	})
}

func (s *Store) GetEmployee(ctx context.Context, id int) (*types.Employee, error) {
	var e types.Employee
	err := s.db.QueryRowContext(ctx, `
SELECT id, first_name, last_name FROM employees WHERE id = ?;
`, id).Scan(&e.ID, &e.FirstName, &e.LastName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEmployee %d: %w", id, err)
	}
	return &e, nil
}

func (s *Store) GetTodayWorkRecord(ctx context.Context, employeeID int, day time.Time) (*types.WorkRecord, error) {
	var (
		rec     types.WorkRecord
		dayStr  string
		startMs int64
		endMs   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, employee_id, day, work_start_ms, work_end_ms, computed_hours
FROM work_records
WHERE employee_id = ? AND day = ?;
`, employeeID, day.Format(dayFormat)).Scan(
		&rec.ID, &rec.EmployeeID, &dayStr, &startMs, &endMs, &rec.ComputedHours,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTodayWorkRecord %d/%s: %w", employeeID, day.Format(dayFormat), err)
	}

	parsed, err := time.ParseInLocation(dayFormat, dayStr, day.Location())
	if err != nil {
		return nil, fmt.Errorf("GetTodayWorkRecord parse day %q: %w", dayStr, err)
	}
	rec.Date = parsed
	rec.WorkStart = time.UnixMilli(startMs).In(day.Location())
	rec.WorkEnd = time.UnixMilli(endMs).In(day.Location())
	return &rec, nil
}

func (s *Store) CreateWorkRecord(ctx context.Context, rec types.WorkRecord) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO work_records(
  id, employee_id, day, work_start_ms, work_end_ms, computed_hours,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.EmployeeID, rec.Date.Format(dayFormat),
			rec.WorkStart.UnixMilli(), rec.WorkEnd.UnixMilli(), rec.ComputedHours,
			nowMs, nowMs,
		); err != nil {
			return fmt.Errorf("CreateWorkRecord: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateWorkRecord(ctx context.Context, rec types.WorkRecord) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE work_records
SET work_start_ms  = ?,
    work_end_ms    = ?,
    computed_hours = ?,
    updated_at_ms  = ?
WHERE id = ?;
`,
			rec.WorkStart.UnixMilli(), rec.WorkEnd.UnixMilli(), rec.ComputedHours,
			nowMs, rec.ID,
		); err != nil {
			return fmt.Errorf("UpdateWorkRecord %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (s *Store) Close() error {
	s.writer.Close()
	return s.db.Close()
}

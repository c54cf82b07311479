// Package postgres is the AttendanceStore engine backed by PostgreSQL via
// gorm. Unlike the sqlite engine it relies on the driver's internal
// connection pool, so concurrent fan-out calls map to independent pooled
// connections.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

const dayFormat = "2006-01-02"

type Store struct {
	name string
	db   *gorm.DB
}

// Open connects with the given DSN (key=value libpq form). The connection
// is lazy in gorm; TestConnection performs the real probe.
func Open(name, dsn string) (*Store, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store %s: %w", name, err)
	}
	return &Store{name: name, db: g}, nil
}

func (s *Store) Name() string { return s.name }

func (s *Store) TestConnection(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&employeeRow{},
		&eventRow{},
		&workRecordRow{},
	)
}

func (s *Store) ClearAll(ctx context.Context) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Exec(`DELETE FROM work_records`).Error; err != nil {
		return fmt.Errorf("ClearAll work_records: %w", err)
	}
	if err := tx.Exec(`DELETE FROM attendance_events`).Error; err != nil {
		return fmt.Errorf("ClearAll attendance_events: %w", err)
	}
	return nil
}

func (s *Store) InsertRawEvent(ctx context.Context, ev types.AttendanceEvent) error {
	row := eventRow{
		EmployeeID:      ev.EmployeeID,
		EventTime:       ev.EventTime,
		VerifyMethod:    ev.VerifyMethod,
		AttendanceState: ev.AttendanceState,
		WorkCode:        ev.WorkCode,
		DeviceName:      ev.DeviceName,
		DeviceAddress:   ev.DeviceAddress,
		Valid:           ev.Valid,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("InsertRawEvent: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id int) (*types.Employee, error) {
	var row employeeRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEmployee %d: %w", id, err)
	}
	return &types.Employee{ID: row.ID, FirstName: row.FirstName, LastName: row.LastName}, nil
}

func (s *Store) GetTodayWorkRecord(ctx context.Context, employeeID int, day time.Time) (*types.WorkRecord, error) {
	var row workRecordRow
	err := s.db.WithContext(ctx).
		First(&row, "employee_id = ? AND day = ?", employeeID, day.Format(dayFormat)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTodayWorkRecord %d/%s: %w", employeeID, day.Format(dayFormat), err)
	}

	parsed, err := time.ParseInLocation(dayFormat, row.Day, day.Location())
	if err != nil {
		return nil, fmt.Errorf("GetTodayWorkRecord parse day %q: %w", row.Day, err)
	}
	return &types.WorkRecord{
		ID:            row.ID,
		EmployeeID:    row.EmployeeID,
		Date:          parsed,
		WorkStart:     row.WorkStart.In(day.Location()),
		WorkEnd:       row.WorkEnd.In(day.Location()),
		ComputedHours: row.ComputedHours,
	}, nil
}

func (s *Store) CreateWorkRecord(ctx context.Context, rec types.WorkRecord) error {
	now := time.Now().UTC()
	row := workRecordRow{
		ID:            rec.ID,
		EmployeeID:    rec.EmployeeID,
		Day:           rec.Date.Format(dayFormat),
		WorkStart:     rec.WorkStart,
		WorkEnd:       rec.WorkEnd,
		ComputedHours: rec.ComputedHours,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("CreateWorkRecord: %w", err)
	}
	return nil
}

func (s *Store) UpdateWorkRecord(ctx context.Context, rec types.WorkRecord) error {
	err := s.db.WithContext(ctx).
		Model(&workRecordRow{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"work_start":     rec.WorkStart,
			"work_end":       rec.WorkEnd,
			"computed_hours": rec.ComputedHours,
			"updated_at":     time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("UpdateWorkRecord %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package postgres

import "time"

// Row types mirror the sqlite schema. The employees table belongs to the HR
// system of record; AutoMigrate will create it in a fresh database but
// punchsync never writes rows into it.

type employeeRow struct {
	ID        int    `gorm:"column:id;primaryKey"`
	FirstName string `gorm:"column:first_name;type:varchar(100);not null"`
	LastName  string `gorm:"column:last_name;type:varchar(100);not null"`
}

func (employeeRow) TableName() string { return "employees" }

type eventRow struct {
	EventID         int64     `gorm:"column:event_id;primaryKey;autoIncrement"`
	EmployeeID      int       `gorm:"column:employee_id;not null;index:idx_events_employee"`
	EventTime       time.Time `gorm:"column:event_time;type:timestamptz;not null;index:idx_events_time"`
	VerifyMethod    int       `gorm:"column:verify_method;not null"`
	AttendanceState int       `gorm:"column:attendance_state;not null"`
	WorkCode        int       `gorm:"column:work_code;not null"`
	DeviceName      string    `gorm:"column:device_name;type:varchar(100);not null"`
	DeviceAddress   string    `gorm:"column:device_address;type:varchar(100);not null"`
	Valid           bool      `gorm:"column:valid;not null"`
	ReceivedAt      time.Time `gorm:"column:received_at;type:timestamptz;not null"`
}

func (eventRow) TableName() string { return "attendance_events" }

type workRecordRow struct {
	ID            string    `gorm:"column:id;type:varchar(36);primaryKey"`
	EmployeeID    int       `gorm:"column:employee_id;not null;uniqueIndex:idx_work_records_emp_day"`
	Day           string    `gorm:"column:day;type:varchar(10);not null;uniqueIndex:idx_work_records_emp_day"`
	WorkStart     time.Time `gorm:"column:work_start;type:timestamptz;not null"`
	WorkEnd       time.Time `gorm:"column:work_end;type:timestamptz;not null"`
	ComputedHours float64   `gorm:"column:computed_hours;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamptz;not null"`
}

func (workRecordRow) TableName() string { return "work_records" }

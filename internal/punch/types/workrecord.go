package types

import "time"

// Employee is a row in the external system of record. The core only ever
// reads employees; it never creates or mutates them.
type Employee struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// WorkRecord is the derived daily check-in/out summary for one employee.
// At most one live record exists per (employee, date) per store: the first
// valid scan of the day creates it, every later valid scan updates it, and
// the core never deletes it.
//
// WorkStart and WorkEnd sit on 15-minute boundaries, with two exceptions:
// the 08:00 early-arrival default and the unrounded end time for scans at or
// after 17:00.
type WorkRecord struct {
	ID            string    `json:"id"`
	EmployeeID    int       `json:"employee_id"`
	Date          time.Time `json:"date"`
	WorkStart     time.Time `json:"work_start"`
	WorkEnd       time.Time `json:"work_end"`
	ComputedHours float64   `json:"computed_hours"`
}

// Day returns t's calendar date at midnight in t's location. Work records
// are keyed by this value.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

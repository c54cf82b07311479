package types

import "time"

// Verify-method codes as reported by the terminals.
const (
	VerifyFingerprint = 1
	VerifyPassword    = 2
	VerifyCard        = 3
	VerifyFace        = 4
)

// Attendance-state codes as reported by the terminals.
const (
	StateCheckIn  = 0
	StateCheckOut = 1
	StateBreakOut = 2
	StateBreakIn  = 3
)

// AttendanceEvent is one scan reported by a terminal, tagged with the
// identity of the device it came from. Events are immutable: they are built
// on the driver callback, fanned out to every active store once, and never
// persisted as an object themselves.
//
// Events from one device arrive in emission order, but no ordering holds
// across devices. The work-record derivation assumes per-employee timestamps
// arrive non-decreasing; an employee scanning on two terminals at nearly the
// same instant can land out of order and skew the derived record until the
// next resync replays the backlog in global timestamp order.
type AttendanceEvent struct {
	EmployeeID      int       `json:"employee_id"`
	EventTime       time.Time `json:"event_time"`
	VerifyMethod    int       `json:"verify_method"`
	AttendanceState int       `json:"attendance_state"`
	WorkCode        int       `json:"work_code"`
	DeviceName      string    `json:"device_name"`
	DeviceAddress   string    `json:"device_address"`
	Valid           bool      `json:"valid"`
}

// RawLog is one buffered historical record pulled from a terminal during a
// backlog read. It carries no device identity; the supervisor that read it
// tags the converted event.
type RawLog struct {
	EmployeeID      int       `json:"employee_id"`
	Timestamp       time.Time `json:"timestamp"`
	VerifyMethod    int       `json:"verify_method"`
	AttendanceState int       `json:"attendance_state"`
	WorkCode        int       `json:"work_code"`
	Valid           bool      `json:"valid"`
}

// Event builds the tagged AttendanceEvent for a backlog entry read from the
// named device.
func (r RawLog) Event(deviceName, deviceAddress string) AttendanceEvent {
	return AttendanceEvent{
		EmployeeID:      r.EmployeeID,
		EventTime:       r.Timestamp,
		VerifyMethod:    r.VerifyMethod,
		AttendanceState: r.AttendanceState,
		WorkCode:        r.WorkCode,
		DeviceName:      deviceName,
		DeviceAddress:   deviceAddress,
		Valid:           r.Valid,
	}
}

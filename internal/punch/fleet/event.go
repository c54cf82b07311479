package fleet

import (
	"time"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

// Kind discriminates the notifications re-emitted on the fleet's aggregate
// event channel.
type Kind int

const (
	KindAttendance Kind = iota
	KindFingerPlaced
	KindVerify
	KindCard
	KindNewUser
	KindLost
)

func (k Kind) String() string {
	switch k {
	case KindAttendance:
		return "attendance"
	case KindFingerPlaced:
		return "finger_placed"
	case KindVerify:
		return "verify"
	case KindCard:
		return "card"
	case KindNewUser:
		return "new_user"
	case KindLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Event is one driver callback re-emitted with the identity of the device it
// came from, so consumers need a single subscription point for the whole
// fleet. Attendance is set only for KindAttendance; UserID and CardNumber
// only for their kinds.
type Event struct {
	Device     string
	Kind       Kind
	Time       time.Time
	Attendance *types.AttendanceEvent
	UserID     int
	CardNumber string
}

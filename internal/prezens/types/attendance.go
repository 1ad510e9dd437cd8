package types

import "time"

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
	StatusPending AttendanceStatus = "pending"
)

// Locked reports whether a record in this status blocks further check-ins
// for the same (meeting, user) pair.
func (s AttendanceStatus) Locked() bool {
	return s == StatusPresent || s == StatusLate
}

func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusPending:
		return true
	}
	return false
}

type VerificationMethod string

const (
	MethodGPS       VerificationMethod = "gps"
	MethodBiometric VerificationMethod = "biometric"
	MethodManual    VerificationMethod = "manual"
)

func (m VerificationMethod) Valid() bool {
	switch m {
	case MethodGPS, MethodBiometric, MethodManual:
		return true
	}
	return false
}

type AttendanceRecord struct {
	ID                 int64              `json:"id"`
	MeetingID          int64              `json:"meeting_id"`
	UserID             int64              `json:"user_id"`
	Status             AttendanceStatus   `json:"status"`
	CheckInTime        *time.Time         `json:"check_in_time,omitempty"`
	CheckInLatitude    *float64           `json:"check_in_latitude,omitempty"`
	CheckInLongitude   *float64           `json:"check_in_longitude,omitempty"`
	VerificationMethod VerificationMethod `json:"verification_method,omitempty"`
	ManualApprovalBy   *int64             `json:"manual_approval_by,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// StatusCounts tallies records by status.
type StatusCounts struct {
	Present int64 `json:"present"`
	Late    int64 `json:"late"`
	Absent  int64 `json:"absent"`
	Pending int64 `json:"pending"`
}

func (c *StatusCounts) Add(s AttendanceStatus, n int64) {
	switch s {
	case StatusPresent:
		c.Present += n
	case StatusLate:
		c.Late += n
	case StatusAbsent:
		c.Absent += n
	case StatusPending:
		c.Pending += n
	}
}

type AdminStats struct {
	ActiveMeetings int64 `json:"active_meetings"`
	PresentToday   int64 `json:"present_today"`
	LateToday      int64 `json:"late_today"`
	AbsentToday    int64 `json:"absent_today"`
	PendingToday   int64 `json:"pending_today"`
}

type UserStats struct {
	UpcomingMeetings int64 `json:"upcoming_meetings"`
	TotalPresent     int64 `json:"total_present"`
	TotalLate        int64 `json:"total_late"`
	TotalAbsent      int64 `json:"total_absent"`
	TotalPending     int64 `json:"total_pending"`
}

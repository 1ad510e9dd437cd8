package types

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type MeetingStatus string

const (
	MeetingUpcoming  MeetingStatus = "upcoming"
	MeetingActive    MeetingStatus = "active"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingUpcoming, MeetingActive, MeetingCompleted, MeetingCancelled:
		return true
	}
	return false
}

// DefaultRadiusMeters applies when a meeting is created without a radius.
const DefaultRadiusMeters = 100

type Meeting struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Date         time.Time     `json:"date"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	LocationName string        `json:"location_name"`
	Latitude     float64       `json:"latitude"`
	Longitude    float64       `json:"longitude"`
	RadiusMeters int           `json:"radius_meters"`
	CreatedBy    int64         `json:"created_by"`
	Status       MeetingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// InProgress reports whether t falls inside [StartTime, EndTime].
func (m Meeting) InProgress(t time.Time) bool {
	return !t.Before(m.StartTime) && !t.After(m.EndTime)
}

type Participant struct {
	MeetingID int64 `json:"meeting_id"`
	UserID    int64 `json:"user_id"`
	Required  bool  `json:"required"`
}

// MeetingInput is the full-replace payload for creating or updating a meeting.
// A nil Participants leaves the participant list untouched on update.
type MeetingInput struct {
	Name         string        `json:"name"`
	Date         *time.Time    `json:"date,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	LocationName string        `json:"location_name"`
	Latitude     *float64      `json:"latitude"`
	Longitude    *float64      `json:"longitude"`
	RadiusMeters int           `json:"radius_meters,omitempty"`
	Status       MeetingStatus `json:"status,omitempty"`
	Participants *[]int64      `json:"participants,omitempty"`
}

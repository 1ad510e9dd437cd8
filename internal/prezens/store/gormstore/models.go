package gormstore

import (
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// The column layout mirrors the sqlite migrations so data can move between
// backends without translation. Times are unix millis.

type meetingRow struct {
	ID           int64   `gorm:"column:meeting_id;primaryKey;autoIncrement"`
	Name         string  `gorm:"column:name;size:255;not null"`
	DateMs       int64   `gorm:"column:date_ms;not null;index:ix_meetings_date"`
	StartTimeMs  int64   `gorm:"column:start_time_ms;not null;index:ix_meetings_start"`
	EndTimeMs    int64   `gorm:"column:end_time_ms;not null"`
	LocationName string  `gorm:"column:location_name;size:255;not null;default:''"`
	Latitude     float64 `gorm:"column:latitude;not null"`
	Longitude    float64 `gorm:"column:longitude;not null"`
	RadiusMeters int     `gorm:"column:radius_meters;not null;default:100"`
	CreatedBy    int64   `gorm:"column:created_by;not null"`
	Status       string  `gorm:"column:status;size:16;not null;default:upcoming"`
	CreatedAtMs  int64   `gorm:"column:created_at_ms;not null"`
	UpdatedAtMs  int64   `gorm:"column:updated_at_ms;not null"`
}

func (meetingRow) TableName() string { return "meetings" }

// Required carries no default tag: gorm replaces a zero value with the
// default on insert, which would turn optional participants into required.
type participantRow struct {
	MeetingID int64 `gorm:"column:meeting_id;primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"column:user_id;primaryKey;autoIncrement:false;index:ix_participants_user"`
	Required  bool  `gorm:"column:required;not null"`
}

func (participantRow) TableName() string { return "meeting_participants" }

type recordRow struct {
	ID                 int64    `gorm:"column:record_id;primaryKey;autoIncrement"`
	MeetingID          int64    `gorm:"column:meeting_id;not null;index:ix_attendance_pair,priority:1"`
	UserID             int64    `gorm:"column:user_id;not null;index:ix_attendance_pair,priority:2"`
	Status             string   `gorm:"column:status;size:16;not null;index:ix_attendance_status"`
	CheckInTimeMs      *int64   `gorm:"column:check_in_time_ms"`
	CheckInLatitude    *float64 `gorm:"column:check_in_latitude"`
	CheckInLongitude   *float64 `gorm:"column:check_in_longitude"`
	VerificationMethod string   `gorm:"column:verification_method;size:16;not null"`
	ManualApprovalBy   *int64   `gorm:"column:manual_approval_by"`
	Notes              string   `gorm:"column:notes;type:text;not null"`
	CreatedAtMs        int64    `gorm:"column:created_at_ms;not null"`
}

func (recordRow) TableName() string { return "attendance_records" }

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func meetingToRow(m types.Meeting) meetingRow {
	return meetingRow{
		ID:           m.ID,
		Name:         m.Name,
		DateMs:       toMillis(m.Date),
		StartTimeMs:  toMillis(m.StartTime),
		EndTimeMs:    toMillis(m.EndTime),
		LocationName: m.LocationName,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		RadiusMeters: m.RadiusMeters,
		CreatedBy:    m.CreatedBy,
		Status:       string(m.Status),
		CreatedAtMs:  toMillis(m.CreatedAt),
	}
}

func (r meetingRow) toMeeting() types.Meeting {
	return types.Meeting{
		ID:           r.ID,
		Name:         r.Name,
		Date:         fromMillis(r.DateMs),
		StartTime:    fromMillis(r.StartTimeMs),
		EndTime:      fromMillis(r.EndTimeMs),
		LocationName: r.LocationName,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		RadiusMeters: r.RadiusMeters,
		CreatedBy:    r.CreatedBy,
		Status:       types.MeetingStatus(r.Status),
		CreatedAt:    fromMillis(r.CreatedAtMs),
	}
}

func recordToRow(rec types.AttendanceRecord) recordRow {
	row := recordRow{
		ID:                 rec.ID,
		MeetingID:          rec.MeetingID,
		UserID:             rec.UserID,
		Status:             string(rec.Status),
		CheckInLatitude:    rec.CheckInLatitude,
		CheckInLongitude:   rec.CheckInLongitude,
		VerificationMethod: string(rec.VerificationMethod),
		ManualApprovalBy:   rec.ManualApprovalBy,
		Notes:              rec.Notes,
		CreatedAtMs:        toMillis(rec.CreatedAt),
	}
	if rec.CheckInTime != nil {
		ms := toMillis(*rec.CheckInTime)
		row.CheckInTimeMs = &ms
	}
	return row
}

func (r recordRow) toRecord() types.AttendanceRecord {
	rec := types.AttendanceRecord{
		ID:                 r.ID,
		MeetingID:          r.MeetingID,
		UserID:             r.UserID,
		Status:             types.AttendanceStatus(r.Status),
		CheckInLatitude:    r.CheckInLatitude,
		CheckInLongitude:   r.CheckInLongitude,
		VerificationMethod: types.VerificationMethod(r.VerificationMethod),
		ManualApprovalBy:   r.ManualApprovalBy,
		Notes:              r.Notes,
		CreatedAt:          fromMillis(r.CreatedAtMs),
	}
	if r.CheckInTimeMs != nil {
		t := fromMillis(*r.CheckInTimeMs)
		rec.CheckInTime = &t
	}
	return rec
}

// Package store defines the persistence contracts for meetings, participants
// and attendance records. Implementations live in the memory, sqlite and
// gormstore subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

var (
	// ErrNotFound is returned when the requested meeting or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLockedRecordExists is returned by writes that would create a second
	// present/late record for the same (meeting, user) pair.
	ErrLockedRecordExists = errors.New("locked attendance record already exists")

	// ErrStatusConflict is returned by compare-and-set writes when the row is
	// no longer in the expected status.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// MeetingFilter narrows ListMeetings. Zero values mean "no constraint".
type MeetingFilter struct {
	// ParticipantID limits results to meetings the user participates in.
	ParticipantID int64
	// DateFrom/DateTo select meetings whose Date is in [DateFrom, DateTo).
	DateFrom time.Time
	DateTo   time.Time
	// ActiveAt selects meetings whose [StartTime, EndTime] contains the instant.
	ActiveAt time.Time
	// StartsAfter selects meetings with StartTime strictly after the instant.
	StartsAfter time.Time
	Statuses    []types.MeetingStatus
}

// RecordFilter narrows ListRecords and CountRecordsByStatus. A nil MeetingIDs
// matches any meeting; an empty non-nil slice matches none.
type RecordFilter struct {
	MeetingIDs []int64
	UserID     int64
	Status     types.AttendanceStatus
}

type MeetingStore interface {
	GetMeeting(ctx context.Context, id int64) (types.Meeting, error)
	ListMeetings(ctx context.Context, f MeetingFilter) ([]types.Meeting, error)
	// CreateMeeting inserts the meeting and its participants in one transaction.
	CreateMeeting(ctx context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error)
	// UpdateMeeting fully replaces the meeting row. An empty m.Status keeps the
	// stored status. A nil participants slice keeps the current list; a
	// non-nil slice replaces it.
	UpdateMeeting(ctx context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error)
	// DeleteMeeting removes the meeting, its participants and its attendance
	// records in one transaction.
	DeleteMeeting(ctx context.Context, id int64) error
	// SetMeetingStatus moves the meeting from `from` to `to`. It fails with
	// ErrStatusConflict when the stored status is no longer `from`.
	SetMeetingStatus(ctx context.Context, id int64, from, to types.MeetingStatus) error
	IsParticipant(ctx context.Context, userID, meetingID int64) (bool, error)
	ListParticipants(ctx context.Context, meetingID int64) ([]types.Participant, error)
}

type AttendanceStore interface {
	// GetLockedRecord returns the present/late record for the pair, or ErrNotFound.
	GetLockedRecord(ctx context.Context, meetingID, userID int64) (types.AttendanceRecord, error)
	// InsertRecord assigns ID and CreatedAt. Inserting a locked record while
	// another locked record exists for the pair fails with ErrLockedRecordExists.
	InsertRecord(ctx context.Context, rec types.AttendanceRecord) (types.AttendanceRecord, error)
	GetRecordByID(ctx context.Context, id int64) (types.AttendanceRecord, error)
	// UpdateRecordStatus moves the record from `from` to `to`, stamps
	// manual_approval_by and appends note to the existing notes. It fails with
	// ErrStatusConflict when the current status is not `from`, and with
	// ErrLockedRecordExists when `to` is locked and another locked record exists.
	UpdateRecordStatus(ctx context.Context, id int64, from, to types.AttendanceStatus, actorID int64, note string) (types.AttendanceRecord, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]types.AttendanceRecord, error)
	CountRecordsByStatus(ctx context.Context, f RecordFilter) (types.StatusCounts, error)
}

// Store is the full persistence surface consumed by the services.
type Store interface {
	MeetingStore
	AttendanceStore
	Ping(ctx context.Context) error
}

// AppendNote joins an audit note onto existing notes.
func AppendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + " | " + note
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/geo"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// MeetingDetail is a meeting plus its roster.
type MeetingDetail struct {
	types.Meeting
	Participants []types.Participant `json:"participants"`
}

type MeetingService struct {
	store  store.Store
	roster *Roster
	loc    *time.Location
	clock  func() time.Time
	logger *slog.Logger
	delay  time.Duration
}

func NewMeetingService(st store.Store, roster *Roster, opts Options) *MeetingService {
	opts = opts.withDefaults()
	return &MeetingService{
		store:  st,
		roster: roster,
		loc:    opts.Location,
		clock:  opts.Clock,
		logger: opts.Logger,
		delay:  opts.ReadRetryDelay,
	}
}

// ── Writes (admin only) ─────────────────────────────────────────────────────

func (s *MeetingService) Create(ctx context.Context, actor types.Actor, in types.MeetingInput) (MeetingDetail, error) {
	if !actor.IsAdmin() {
		return MeetingDetail{}, fmt.Errorf("create meeting: %w", ErrForbidden)
	}
	m, err := s.buildMeeting(in, types.MeetingUpcoming)
	if err != nil {
		return MeetingDetail{}, err
	}
	m.CreatedBy = actor.ID
	m.CreatedAt = s.clock()

	participants := normalizeParticipants(in.Participants)
	if participants == nil {
		participants = []types.Participant{}
	}
	created, err := s.store.CreateMeeting(ctx, m, participants)
	if err != nil {
		return MeetingDetail{}, storeErr("CreateMeeting", err)
	}
	s.logger.InfoContext(ctx, "meeting created", "meeting_id", created.ID, "actor_id", actor.ID, "participants", len(participants))
	return s.detail(ctx, created)
}

// Update fully replaces the meeting. An omitted status keeps the current one;
// omitted participants keep the current roster.
func (s *MeetingService) Update(ctx context.Context, actor types.Actor, id int64, in types.MeetingInput) (MeetingDetail, error) {
	if !actor.IsAdmin() {
		return MeetingDetail{}, fmt.Errorf("update meeting %d: %w", id, ErrForbidden)
	}
	cur, err := s.get(ctx, id)
	if err != nil {
		return MeetingDetail{}, err
	}
	// An omitted status is left to the store so a concurrent cancel or
	// refresh is not overwritten with the value read above.
	m, err := s.buildMeeting(in, "")
	if err != nil {
		return MeetingDetail{}, err
	}
	m.ID = cur.ID
	m.CreatedBy = cur.CreatedBy
	m.CreatedAt = cur.CreatedAt

	updated, err := s.store.UpdateMeeting(ctx, m, normalizeParticipants(in.Participants))
	if err != nil {
		return MeetingDetail{}, storeErr("UpdateMeeting", err)
	}
	s.logger.InfoContext(ctx, "meeting updated", "meeting_id", id, "actor_id", actor.ID)
	return s.detail(ctx, updated)
}

// Delete removes the meeting with its participants and attendance records.
func (s *MeetingService) Delete(ctx context.Context, actor types.Actor, id int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("delete meeting %d: %w", id, ErrForbidden)
	}
	if err := s.store.DeleteMeeting(ctx, id); err != nil {
		return storeErr("DeleteMeeting", err)
	}
	s.logger.InfoContext(ctx, "meeting deleted", "meeting_id", id, "actor_id", actor.ID)
	return nil
}

// ── Reads ───────────────────────────────────────────────────────────────────

// Get returns the meeting to admins and to its participants.
func (s *MeetingService) Get(ctx context.Context, actor types.Actor, id int64) (MeetingDetail, error) {
	m, err := s.get(ctx, id)
	if err != nil {
		return MeetingDetail{}, err
	}
	if !actor.IsAdmin() {
		ok, err := s.roster.IsParticipant(ctx, actor.ID, id)
		if err != nil {
			return MeetingDetail{}, err
		}
		if !ok {
			return MeetingDetail{}, fmt.Errorf("meeting %d: %w", id, ErrForbidden)
		}
	}
	return s.detail(ctx, m)
}

// List returns every meeting for admins and the caller's meetings otherwise.
func (s *MeetingService) List(ctx context.Context, actor types.Actor) ([]types.Meeting, error) {
	return s.list(ctx, actor, store.MeetingFilter{})
}

// Today lists the caller-visible meetings scheduled on now's calendar day.
func (s *MeetingService) Today(ctx context.Context, actor types.Actor, now time.Time) ([]types.Meeting, error) {
	from, to := DayBounds(now, s.loc)
	return s.list(ctx, actor, store.MeetingFilter{DateFrom: from, DateTo: to})
}

// Attendance lists every record of one meeting, newest first. Admin only.
func (s *MeetingService) Attendance(ctx context.Context, actor types.Actor, meetingID int64) (types.Meeting, []types.AttendanceRecord, error) {
	if !actor.IsAdmin() {
		return types.Meeting{}, nil, fmt.Errorf("meeting %d attendance: %w", meetingID, ErrForbidden)
	}
	m, err := s.get(ctx, meetingID)
	if err != nil {
		return types.Meeting{}, nil, err
	}
	recs, err := readOnce(ctx, s.delay, "ListRecords", func(ctx context.Context) ([]types.AttendanceRecord, error) {
		return s.store.ListRecords(ctx, store.RecordFilter{MeetingIDs: []int64{meetingID}})
	})
	if err != nil {
		return types.Meeting{}, nil, err
	}
	return m, recs, nil
}

func (s *MeetingService) list(ctx context.Context, actor types.Actor, f store.MeetingFilter) ([]types.Meeting, error) {
	if !actor.IsAdmin() {
		f.ParticipantID = actor.ID
	}
	return readOnce(ctx, s.delay, "ListMeetings", func(ctx context.Context) ([]types.Meeting, error) {
		return s.store.ListMeetings(ctx, f)
	})
}

func (s *MeetingService) get(ctx context.Context, id int64) (types.Meeting, error) {
	return readOnce(ctx, s.delay, "GetMeeting", func(ctx context.Context) (types.Meeting, error) {
		return s.store.GetMeeting(ctx, id)
	})
}

func (s *MeetingService) detail(ctx context.Context, m types.Meeting) (MeetingDetail, error) {
	ps, err := s.roster.Participants(ctx, m.ID)
	if err != nil {
		return MeetingDetail{}, err
	}
	return MeetingDetail{Meeting: m, Participants: ps}, nil
}

// buildMeeting validates in and fills defaults.
func (s *MeetingService) buildMeeting(in types.MeetingInput, fallbackStatus types.MeetingStatus) (types.Meeting, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.Meeting{}, validationf("name is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return types.Meeting{}, validationf("start_time and end_time are required")
	}
	if !in.EndTime.After(in.StartTime) {
		return types.Meeting{}, validationf("end_time must be after start_time")
	}
	if in.Latitude == nil || in.Longitude == nil {
		return types.Meeting{}, validationf("latitude and longitude are required")
	}
	if !geo.ValidCoordinate(*in.Latitude, *in.Longitude) {
		return types.Meeting{}, validationf("invalid coordinates")
	}
	radius := in.RadiusMeters
	if radius == 0 {
		radius = types.DefaultRadiusMeters
	}
	if radius < 0 {
		return types.Meeting{}, validationf("radius_meters must be positive")
	}
	status := in.Status
	if status == "" {
		status = fallbackStatus
	}
	if status != "" && !status.Valid() {
		return types.Meeting{}, validationf("invalid status %q", in.Status)
	}

	var date time.Time
	if in.Date != nil {
		date, _ = DayBounds(*in.Date, s.loc)
	} else {
		date, _ = DayBounds(in.StartTime, s.loc)
	}

	return types.Meeting{
		Name:         name,
		Date:         date.UTC(),
		StartTime:    in.StartTime.UTC(),
		EndTime:      in.EndTime.UTC(),
		LocationName: strings.TrimSpace(in.LocationName),
		Latitude:     *in.Latitude,
		Longitude:    *in.Longitude,
		RadiusMeters: radius,
		Status:       status,
	}, nil
}

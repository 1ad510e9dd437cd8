package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// CheckInService runs check-ins as one read-decide-write unit per
// (meeting, user) pair.
type CheckInService struct {
	meetings store.MeetingStore
	records  store.AttendanceStore
	roster   *Roster
	locks    *KeyedMutex
	clock    func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
	delay    time.Duration
}

func NewCheckInService(st store.Store, roster *Roster, locks *KeyedMutex, opts Options) *CheckInService {
	opts = opts.withDefaults()
	return &CheckInService{
		meetings: st,
		records:  st,
		roster:   roster,
		locks:    locks,
		clock:    opts.Clock,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		delay:    opts.ReadRetryDelay,
	}
}

// Submit validates req, decides it against current state and persists the
// resulting record. OutOfRange and PendingApproval are successful outcomes,
// not errors.
func (s *CheckInService) Submit(ctx context.Context, actor types.Actor, req types.CheckInRequest) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.check_in", trace.WithAttributes(
		attribute.Int64("meeting.id", req.MeetingID),
		attribute.Int64("user.id", actor.ID),
		attribute.String("verification.method", string(req.VerificationMethod)),
	))
	defer span.End()

	d, err := s.submit(ctx, actor, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, err
	}
	span.SetAttributes(
		attribute.String("check_in.outcome", string(d.Outcome)),
		attribute.String("attendance.status", string(d.Record.Status)),
	)
	s.logger.InfoContext(ctx, "check-in decided",
		"meeting_id", req.MeetingID,
		"user_id", actor.ID,
		"method", req.VerificationMethod,
		"outcome", d.Outcome,
		"status", d.Record.Status,
		"record_id", d.Record.ID,
	)
	return d, nil
}

func (s *CheckInService) submit(ctx context.Context, actor types.Actor, req types.CheckInRequest) (Decision, error) {
	if err := ValidateCheckIn(req); err != nil {
		return Decision{}, err
	}
	if actor.ID <= 0 {
		return Decision{}, fmt.Errorf("anonymous check-in: %w", ErrForbidden)
	}

	meeting, err := readOnce(ctx, s.delay, "GetMeeting", func(ctx context.Context) (types.Meeting, error) {
		return s.meetings.GetMeeting(ctx, req.MeetingID)
	})
	if errors.Is(err, ErrNotFound) {
		return Decide(req, actor.ID, nil, false, nil, s.clock())
	}
	if err != nil {
		return Decision{}, err
	}

	member, err := s.roster.IsParticipant(ctx, actor.ID, meeting.ID)
	if err != nil {
		return Decision{}, err
	}
	if !member {
		return Decide(req, actor.ID, &meeting, false, nil, s.clock())
	}

	unlock, err := s.locks.Lock(ctx, pairKey(meeting.ID, actor.ID))
	if err != nil {
		return Decision{}, storeErr("lock check-in", err)
	}
	defer unlock()

	var existing *types.AttendanceRecord
	locked, err := readOnce(ctx, s.delay, "GetLockedRecord", func(ctx context.Context) (types.AttendanceRecord, error) {
		return s.records.GetLockedRecord(ctx, meeting.ID, actor.ID)
	})
	switch {
	case err == nil:
		existing = &locked
	case errors.Is(err, ErrNotFound):
	default:
		return Decision{}, err
	}

	// Lateness is judged at decision time, inside the lock.
	d, err := Decide(req, actor.ID, &meeting, true, existing, s.clock())
	if err != nil {
		return Decision{}, err
	}

	rec, err := s.records.InsertRecord(ctx, d.Record)
	if err != nil {
		return Decision{}, storeErr("InsertRecord", err)
	}
	d.Record = rec
	return d, nil
}

// History returns the caller's own records, newest first.
func (s *CheckInService) History(ctx context.Context, actor types.Actor) ([]types.AttendanceRecord, error) {
	return readOnce(ctx, s.delay, "ListRecords", func(ctx context.Context) ([]types.AttendanceRecord, error) {
		return s.records.ListRecords(ctx, store.RecordFilter{UserID: actor.ID})
	})
}

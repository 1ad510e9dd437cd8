package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// ApprovalService moves pending records to present or absent on admin
// action. Every other transition is refused.
type ApprovalService struct {
	records store.AttendanceStore
	locks   *KeyedMutex
	logger  *slog.Logger
	tracer  trace.Tracer
	delay   time.Duration
}

func NewApprovalService(st store.AttendanceStore, locks *KeyedMutex, opts Options) *ApprovalService {
	opts = opts.withDefaults()
	return &ApprovalService{
		records: st,
		locks:   locks,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		delay:   opts.ReadRetryDelay,
	}
}

func (s *ApprovalService) Approve(ctx context.Context, actor types.Actor, recordID int64) (types.AttendanceRecord, error) {
	return s.transition(ctx, actor, recordID, types.StatusPresent, "approved")
}

func (s *ApprovalService) Reject(ctx context.Context, actor types.Actor, recordID int64) (types.AttendanceRecord, error) {
	return s.transition(ctx, actor, recordID, types.StatusAbsent, "rejected")
}

func (s *ApprovalService) transition(ctx context.Context, actor types.Actor, recordID int64, to types.AttendanceStatus, verb string) (types.AttendanceRecord, error) {
	ctx, span := s.tracer.Start(ctx, "attendance."+verb, trace.WithAttributes(
		attribute.Int64("record.id", recordID),
		attribute.Int64("actor.id", actor.ID),
	))
	defer span.End()

	rec, err := s.apply(ctx, actor, recordID, to, verb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.AttendanceRecord{}, err
	}
	s.logger.InfoContext(ctx, "attendance record "+verb,
		"record_id", rec.ID,
		"meeting_id", rec.MeetingID,
		"user_id", rec.UserID,
		"actor_id", actor.ID,
	)
	return rec, nil
}

func (s *ApprovalService) apply(ctx context.Context, actor types.Actor, recordID int64, to types.AttendanceStatus, verb string) (types.AttendanceRecord, error) {
	if !actor.IsAdmin() {
		return types.AttendanceRecord{}, fmt.Errorf("%s record %d: %w", verb, recordID, ErrForbidden)
	}

	rec, err := readOnce(ctx, s.delay, "GetRecordByID", func(ctx context.Context) (types.AttendanceRecord, error) {
		return s.records.GetRecordByID(ctx, recordID)
	})
	if err != nil {
		return types.AttendanceRecord{}, err
	}
	if rec.Status != types.StatusPending {
		return types.AttendanceRecord{}, fmt.Errorf("record %d is %s: %w", recordID, rec.Status, ErrInvalidState)
	}

	// Same key as check-in so an approval cannot race a live check-in.
	unlock, err := s.locks.Lock(ctx, pairKey(rec.MeetingID, rec.UserID))
	if err != nil {
		return types.AttendanceRecord{}, storeErr("lock approval", err)
	}
	defer unlock()

	note := fmt.Sprintf("Manually %s by %s", verb, actor.Username)
	updated, err := s.records.UpdateRecordStatus(ctx, recordID, types.StatusPending, to, actor.ID, note)
	if err != nil {
		return types.AttendanceRecord{}, storeErr("UpdateRecordStatus", err)
	}
	return updated, nil
}

// Pending lists every record awaiting a decision. Admin only.
func (s *ApprovalService) Pending(ctx context.Context, actor types.Actor) ([]types.AttendanceRecord, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("pending records: %w", ErrForbidden)
	}
	return readOnce(ctx, s.delay, "ListRecords", func(ctx context.Context) ([]types.AttendanceRecord, error) {
		return s.records.ListRecords(ctx, store.RecordFilter{Status: types.StatusPending})
	})
}

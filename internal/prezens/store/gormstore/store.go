package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

var lockedStatuses = []string{string(types.StatusPresent), string(types.StatusLate)}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ── Meetings ────────────────────────────────────────────────────────────────

func (s *Store) GetMeeting(ctx context.Context, id int64) (types.Meeting, error) {
	var row meetingRow
	err := s.db.WithContext(ctx).Where("meeting_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Meeting{}, fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.Meeting{}, fmt.Errorf("GetMeeting: %w", err)
	}
	return row.toMeeting(), nil
}

func (s *Store) ListMeetings(ctx context.Context, f store.MeetingFilter) ([]types.Meeting, error) {
	q := s.db.WithContext(ctx).Model(&meetingRow{})
	if f.ParticipantID != 0 {
		q = q.Where("meeting_id IN (?)",
			s.db.Model(&participantRow{}).Select("meeting_id").Where("user_id = ?", f.ParticipantID))
	}
	if !f.DateFrom.IsZero() {
		q = q.Where("date_ms >= ?", toMillis(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		q = q.Where("date_ms < ?", toMillis(f.DateTo))
	}
	if !f.ActiveAt.IsZero() {
		at := toMillis(f.ActiveAt)
		q = q.Where("start_time_ms <= ? AND end_time_ms >= ?", at, at)
	}
	if !f.StartsAfter.IsZero() {
		q = q.Where("start_time_ms > ?", toMillis(f.StartsAfter))
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ss[i] = string(st)
		}
		q = q.Where("status IN ?", ss)
	}

	var rows []meetingRow
	if err := q.Order("start_time_ms, meeting_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListMeetings: %w", err)
	}
	out := make([]types.Meeting, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMeeting())
	}
	return out, nil
}

func (s *Store) CreateMeeting(ctx context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	row := meetingToRow(m)
	row.UpdatedAtMs = toMillis(s.now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("CreateMeeting insert: %w", err)
		}
		return insertParticipants(tx, row.ID, participants)
	})
	if err != nil {
		return types.Meeting{}, err
	}
	return row.toMeeting(), nil
}

func (s *Store) UpdateMeeting(ctx context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error) {
	fields := map[string]any{
		"name":          m.Name,
		"date_ms":       toMillis(m.Date),
		"start_time_ms": toMillis(m.StartTime),
		"end_time_ms":   toMillis(m.EndTime),
		"location_name": m.LocationName,
		"latitude":      m.Latitude,
		"longitude":     m.Longitude,
		"radius_meters": m.RadiusMeters,
		"updated_at_ms": toMillis(s.now()),
	}
	if m.Status != "" {
		fields["status"] = string(m.Status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&meetingRow{}).Where("meeting_id = ?", m.ID).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("UpdateMeeting: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// MySQL reports zero affected rows for no-op updates.
			var n int64
			if err := tx.Model(&meetingRow{}).Where("meeting_id = ?", m.ID).Count(&n).Error; err != nil {
				return fmt.Errorf("UpdateMeeting exists: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("meeting %d: %w", m.ID, store.ErrNotFound)
			}
		}
		if participants == nil {
			return nil
		}
		if err := tx.Where("meeting_id = ?", m.ID).Delete(&participantRow{}).Error; err != nil {
			return fmt.Errorf("UpdateMeeting clear participants: %w", err)
		}
		return insertParticipants(tx, m.ID, participants)
	})
	if err != nil {
		return types.Meeting{}, err
	}
	return s.GetMeeting(ctx, m.ID)
}

func (s *Store) DeleteMeeting(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", id).Delete(&recordRow{}).Error; err != nil {
			return fmt.Errorf("DeleteMeeting records: %w", err)
		}
		if err := tx.Where("meeting_id = ?", id).Delete(&participantRow{}).Error; err != nil {
			return fmt.Errorf("DeleteMeeting participants: %w", err)
		}
		res := tx.Where("meeting_id = ?", id).Delete(&meetingRow{})
		if res.Error != nil {
			return fmt.Errorf("DeleteMeeting: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) SetMeetingStatus(ctx context.Context, id int64, from, to types.MeetingStatus) error {
	res := s.db.WithContext(ctx).Model(&meetingRow{}).
		Where("meeting_id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":        string(to),
			"updated_at_ms": toMillis(s.now()),
		})
	if res.Error != nil {
		return fmt.Errorf("SetMeetingStatus: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var cur meetingRow
	err := s.db.WithContext(ctx).Select("status").Where("meeting_id = ?", id).Take(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("SetMeetingStatus read: %w", err)
	}
	return fmt.Errorf("meeting %d is %s: %w", id, cur.Status, store.ErrStatusConflict)
}

func (s *Store) IsParticipant(ctx context.Context, userID, meetingID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("meeting_id = ? AND user_id = ?", meetingID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("IsParticipant: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListParticipants(ctx context.Context, meetingID int64) ([]types.Participant, error) {
	var rows []participantRow
	err := s.db.WithContext(ctx).Where("meeting_id = ?", meetingID).Order("user_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListParticipants: %w", err)
	}
	out := make([]types.Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Participant{MeetingID: r.MeetingID, UserID: r.UserID, Required: r.Required})
	}
	return out, nil
}

func insertParticipants(tx *gorm.DB, meetingID int64, participants []types.Participant) error {
	if len(participants) == 0 {
		return nil
	}
	// PostgreSQL rejects a batch that upserts the same key twice, so the
	// last entry per user wins before the insert.
	rows := make([]participantRow, 0, len(participants))
	seen := make(map[int64]int, len(participants))
	for _, p := range participants {
		row := participantRow{MeetingID: meetingID, UserID: p.UserID, Required: p.Required}
		if i, ok := seen[p.UserID]; ok {
			rows[i] = row
			continue
		}
		seen[p.UserID] = len(rows)
		rows = append(rows, row)
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meeting_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"required"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}
	return nil
}

// ── Attendance ──────────────────────────────────────────────────────────────

func (s *Store) GetLockedRecord(ctx context.Context, meetingID, userID int64) (types.AttendanceRecord, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND user_id = ? AND status IN ?", meetingID, userID, lockedStatuses).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AttendanceRecord{}, fmt.Errorf("locked record %d/%d: %w", meetingID, userID, store.ErrNotFound)
	}
	if err != nil {
		return types.AttendanceRecord{}, fmt.Errorf("GetLockedRecord: %w", err)
	}
	return row.toRecord(), nil
}

// lockPair takes a row lock that serializes writers for one (meeting, user)
// pair. MySQL has no partial unique indexes, so the locked-record check runs
// under this lock instead.
func lockPair(tx *gorm.DB, meetingID, userID int64) error {
	var p participantRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("meeting_id = ? AND user_id = ?", meetingID, userID).
		Take(&p).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lock participant: %w", err)
	}
	// Not on the roster: fall back to the coarser meeting lock.
	var m meetingRow
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("meeting_id = ?", meetingID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("meeting %d: %w", meetingID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock meeting: %w", err)
	}
	return nil
}

func hasOtherLocked(tx *gorm.DB, meetingID, userID, skipID int64) (bool, error) {
	var n int64
	err := tx.Model(&recordRow{}).
		Where("meeting_id = ? AND user_id = ? AND status IN ? AND record_id <> ?", meetingID, userID, lockedStatuses, skipID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("locked record check: %w", err)
	}
	return n > 0, nil
}

func (s *Store) InsertRecord(ctx context.Context, rec types.AttendanceRecord) (types.AttendanceRecord, error) {
	rec.CreatedAt = s.now()
	row := recordToRow(rec)
	row.ID = 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.Status.Locked() {
			if err := lockPair(tx, rec.MeetingID, rec.UserID); err != nil {
				return err
			}
			exists, err := hasOtherLocked(tx, rec.MeetingID, rec.UserID, 0)
			if err != nil {
				return err
			}
			if exists {
				return store.ErrLockedRecordExists
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			if isDuplicate(err) {
				return store.ErrLockedRecordExists
			}
			return fmt.Errorf("InsertRecord: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.AttendanceRecord{}, err
	}
	return row.toRecord(), nil
}

func (s *Store) GetRecordByID(ctx context.Context, id int64) (types.AttendanceRecord, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Where("record_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AttendanceRecord{}, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.AttendanceRecord{}, fmt.Errorf("GetRecordByID: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) UpdateRecordStatus(ctx context.Context, id int64, from, to types.AttendanceStatus, actorID int64, note string) (types.AttendanceRecord, error) {
	var out recordRow

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur recordRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("record_id = ?", id).Take(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("UpdateRecordStatus read: %w", err)
		}
		if cur.Status != string(from) {
			return store.ErrStatusConflict
		}
		if to.Locked() {
			if err := lockPair(tx, cur.MeetingID, cur.UserID); err != nil {
				return err
			}
			exists, err := hasOtherLocked(tx, cur.MeetingID, cur.UserID, id)
			if err != nil {
				return err
			}
			if exists {
				return store.ErrLockedRecordExists
			}
		}

		notes := store.AppendNote(cur.Notes, note)
		res := tx.Model(&recordRow{}).
			Where("record_id = ? AND status = ?", id, string(from)).
			Updates(map[string]any{
				"status":             string(to),
				"manual_approval_by": actorID,
				"notes":              notes,
			})
		if res.Error != nil {
			if isDuplicate(res.Error) {
				return store.ErrLockedRecordExists
			}
			return fmt.Errorf("UpdateRecordStatus: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrStatusConflict
		}

		approver := actorID
		cur.Status = string(to)
		cur.ManualApprovalBy = &approver
		cur.Notes = notes
		out = cur
		return nil
	})
	if err != nil {
		return types.AttendanceRecord{}, err
	}
	return out.toRecord(), nil
}

func (s *Store) recordQuery(ctx context.Context, f store.RecordFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&recordRow{})
	if len(f.MeetingIDs) > 0 {
		q = q.Where("meeting_id IN ?", f.MeetingIDs)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	return q
}

func (s *Store) ListRecords(ctx context.Context, f store.RecordFilter) ([]types.AttendanceRecord, error) {
	out := make([]types.AttendanceRecord, 0)
	if f.MeetingIDs != nil && len(f.MeetingIDs) == 0 {
		return out, nil
	}
	var rows []recordRow
	if err := s.recordQuery(ctx, f).Order("created_at_ms DESC, record_id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func (s *Store) CountRecordsByStatus(ctx context.Context, f store.RecordFilter) (types.StatusCounts, error) {
	var c types.StatusCounts
	if f.MeetingIDs != nil && len(f.MeetingIDs) == 0 {
		return c, nil
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := s.recordQuery(ctx, f).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return c, fmt.Errorf("CountRecordsByStatus: %w", err)
	}
	for _, r := range rows {
		c.Add(types.AttendanceStatus(r.Status), r.N)
	}
	return c, nil
}

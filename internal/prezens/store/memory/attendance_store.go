package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

func (s *Store) GetLockedRecord(_ context.Context, meetingID, userID int64) (types.AttendanceRecord, error) {
	if err := s.readFault(); err != nil {
		return types.AttendanceRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.lockedLocked(meetingID, userID, 0); ok {
		return cloneRecord(rec), nil
	}
	return types.AttendanceRecord{}, fmt.Errorf("locked record %d/%d: %w", meetingID, userID, store.ErrNotFound)
}

func (s *Store) InsertRecord(_ context.Context, rec types.AttendanceRecord) (types.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status.Locked() {
		if _, ok := s.lockedLocked(rec.MeetingID, rec.UserID, 0); ok {
			return types.AttendanceRecord{}, store.ErrLockedRecordExists
		}
	}

	s.nextRecordID++
	rec.ID = s.nextRecordID
	rec.CreatedAt = s.now()
	rec = cloneRecord(rec)
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return cloneRecord(rec), nil
}

func (s *Store) GetRecordByID(_ context.Context, id int64) (types.AttendanceRecord, error) {
	if err := s.readFault(); err != nil {
		return types.AttendanceRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return types.AttendanceRecord{}, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (s *Store) UpdateRecordStatus(_ context.Context, id int64, from, to types.AttendanceStatus, actorID int64, note string) (types.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return types.AttendanceRecord{}, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	if rec.Status != from {
		return types.AttendanceRecord{}, store.ErrStatusConflict
	}
	if to.Locked() {
		if _, exists := s.lockedLocked(rec.MeetingID, rec.UserID, id); exists {
			return types.AttendanceRecord{}, store.ErrLockedRecordExists
		}
	}

	rec.Status = to
	approver := actorID
	rec.ManualApprovalBy = &approver
	rec.Notes = store.AppendNote(rec.Notes, note)
	s.records[id] = rec
	return cloneRecord(rec), nil
}

func (s *Store) ListRecords(_ context.Context, f store.RecordFilter) ([]types.AttendanceRecord, error) {
	if err := s.readFault(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AttendanceRecord, 0)
	// Newest first, like the history views.
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if matches(rec, f) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *Store) CountRecordsByStatus(_ context.Context, f store.RecordFilter) (types.StatusCounts, error) {
	if err := s.readFault(); err != nil {
		return types.StatusCounts{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c types.StatusCounts
	if f.MeetingIDs != nil && len(f.MeetingIDs) == 0 {
		return c, nil
	}
	for _, rec := range s.records {
		if matches(rec, f) {
			c.Add(rec.Status, 1)
		}
	}
	return c, nil
}

// lockedLocked finds a present/late record for the pair, skipping skipID.
// Caller holds s.mu.
func (s *Store) lockedLocked(meetingID, userID, skipID int64) (types.AttendanceRecord, bool) {
	for _, id := range s.order {
		rec := s.records[id]
		if id != skipID && rec.MeetingID == meetingID && rec.UserID == userID && rec.Status.Locked() {
			return rec, true
		}
	}
	return types.AttendanceRecord{}, false
}

func matches(rec types.AttendanceRecord, f store.RecordFilter) bool {
	if f.MeetingIDs != nil && !slices.Contains(f.MeetingIDs, rec.MeetingID) {
		return false
	}
	if f.UserID != 0 && rec.UserID != f.UserID {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	return true
}

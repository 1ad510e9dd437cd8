package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

func (s *Store) GetMeeting(_ context.Context, id int64) (types.Meeting, error) {
	if err := s.readFault(); err != nil {
		return types.Meeting{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return types.Meeting{}, fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
	}
	return m, nil
}

func (s *Store) ListMeetings(_ context.Context, f store.MeetingFilter) ([]types.Meeting, error) {
	if err := s.readFault(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Meeting, 0)
	for _, m := range s.meetings {
		if f.ParticipantID != 0 {
			if _, ok := s.participants[m.ID][f.ParticipantID]; !ok {
				continue
			}
		}
		if !f.DateFrom.IsZero() && m.Date.Before(f.DateFrom) {
			continue
		}
		if !f.DateTo.IsZero() && !m.Date.Before(f.DateTo) {
			continue
		}
		if !f.ActiveAt.IsZero() && !m.InProgress(f.ActiveAt) {
			continue
		}
		if !f.StartsAfter.IsZero() && !m.StartTime.After(f.StartsAfter) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, m.Status) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (s *Store) CreateMeeting(_ context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMeetingID++
	m.ID = s.nextMeetingID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.meetings[m.ID] = m
	s.replaceParticipantsLocked(m.ID, participants)
	return m, nil
}

func (s *Store) UpdateMeeting(_ context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.meetings[m.ID]
	if !ok {
		return types.Meeting{}, fmt.Errorf("meeting %d: %w", m.ID, store.ErrNotFound)
	}
	m.CreatedAt = cur.CreatedAt
	m.CreatedBy = cur.CreatedBy
	if m.Status == "" {
		m.Status = cur.Status
	}
	s.meetings[m.ID] = m
	if participants != nil {
		s.replaceParticipantsLocked(m.ID, participants)
	}
	return m, nil
}

func (s *Store) DeleteMeeting(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[id]; !ok {
		return fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
	}
	delete(s.meetings, id)
	delete(s.participants, id)

	kept := s.order[:0]
	for _, rid := range s.order {
		if s.records[rid].MeetingID == id {
			delete(s.records, rid)
			continue
		}
		kept = append(kept, rid)
	}
	s.order = kept
	return nil
}

func (s *Store) SetMeetingStatus(_ context.Context, id int64, from, to types.MeetingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok {
		return fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
	}
	if m.Status != from {
		return fmt.Errorf("meeting %d is %s: %w", id, m.Status, store.ErrStatusConflict)
	}
	m.Status = to
	s.meetings[id] = m
	return nil
}

func (s *Store) IsParticipant(_ context.Context, userID, meetingID int64) (bool, error) {
	if err := s.readFault(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.participants[meetingID][userID]
	return ok, nil
}

func (s *Store) ListParticipants(_ context.Context, meetingID int64) ([]types.Participant, error) {
	if err := s.readFault(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Participant, 0, len(s.participants[meetingID]))
	for _, p := range s.participants[meetingID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) replaceParticipantsLocked(meetingID int64, participants []types.Participant) {
	set := make(map[int64]types.Participant, len(participants))
	for _, p := range participants {
		p.MeetingID = meetingID
		set[p.UserID] = p
	}
	s.participants[meetingID] = set
}

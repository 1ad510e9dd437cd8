// Package memory is an in-process Store used by tests and dev runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

type Store struct {
	mu sync.RWMutex

	meetings     map[int64]types.Meeting
	participants map[int64]map[int64]types.Participant // meetingID -> userID
	records      map[int64]types.AttendanceRecord
	order        []int64 // record ids in insertion order

	nextMeetingID int64
	nextRecordID  int64

	failReads int
	failErr   error
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		meetings:     make(map[int64]types.Meeting),
		participants: make(map[int64]map[int64]types.Participant),
		records:      make(map[int64]types.AttendanceRecord),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// FailNextReads makes the next n read operations return err. Test-only helper.
func (s *Store) FailNextReads(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = n
	s.failErr = err
}

// Records returns a copy of all records in insertion order. Test-only helper.
func (s *Store) Records() []types.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AttendanceRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

func (s *Store) Ping(_ context.Context) error {
	return s.readFault()
}

// readFault consumes one injected read failure, if any.
func (s *Store) readFault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads <= 0 {
		return nil
	}
	s.failReads--
	return s.failErr
}

func cloneRecord(r types.AttendanceRecord) types.AttendanceRecord {
	if r.CheckInTime != nil {
		t := *r.CheckInTime
		r.CheckInTime = &t
	}
	if r.CheckInLatitude != nil {
		v := *r.CheckInLatitude
		r.CheckInLatitude = &v
	}
	if r.CheckInLongitude != nil {
		v := *r.CheckInLongitude
		r.CheckInLongitude = &v
	}
	if r.ManualApprovalBy != nil {
		v := *r.ManualApprovalBy
		r.ManualApprovalBy = &v
	}
	return r
}

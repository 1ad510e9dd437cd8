package gormstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// newTestStore runs the store against an in-memory SQLite database through
// the pure-Go gorm dialector. One pooled connection keeps the database alive
// and serializes transactions the way row locks do on MySQL and PostgreSQL.
func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:gorm_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrate(context.Background(), db))

	s := New(db)
	s.now = func() time.Time { return clock }
	return s, db
}

var (
	day   = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	clock = day.Add(8 * time.Hour)
)

func testMeeting(name string, start time.Time) types.Meeting {
	return types.Meeting{
		Name:         name,
		Date:         time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		LocationName: "HQ",
		Latitude:     40.0,
		Longitude:    -74.0,
		RadiusMeters: 100,
		CreatedBy:    1,
		Status:       types.MeetingUpcoming,
	}
}

func seedMeeting(t *testing.T, s *Store, name string, start time.Time, userIDs ...int64) types.Meeting {
	t.Helper()
	ps := make([]types.Participant, 0, len(userIDs))
	for _, uid := range userIDs {
		ps = append(ps, types.Participant{UserID: uid, Required: true})
	}
	m, err := s.CreateMeeting(context.Background(), testMeeting(name, start), ps)
	require.NoError(t, err)
	return m
}

func presentRecord(meetingID, userID int64) types.AttendanceRecord {
	at := day.Add(9 * time.Hour)
	lat, lon := 40.0, -74.0
	return types.AttendanceRecord{
		MeetingID:          meetingID,
		UserID:             userID,
		Status:             types.StatusPresent,
		CheckInTime:        &at,
		CheckInLatitude:    &lat,
		CheckInLongitude:   &lon,
		VerificationMethod: types.MethodGPS,
	}
}

func pendingRecord(meetingID, userID int64) types.AttendanceRecord {
	return types.AttendanceRecord{
		MeetingID:          meetingID,
		UserID:             userID,
		Status:             types.StatusPending,
		VerificationMethod: types.MethodManual,
		Notes:              "badge reader down",
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

// ── Meetings ────────────────────────────────────────────────────────────────

func TestStore_CreateAndGetMeeting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, testMeeting("Standup", day.Add(9*time.Hour)), []types.Participant{
		{UserID: 10, Required: true},
		{UserID: 11, Required: false},
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)

	got, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standup", got.Name)
	assert.Equal(t, types.MeetingUpcoming, got.Status)
	assert.True(t, got.StartTime.Equal(day.Add(9*time.Hour)))
	assert.True(t, got.CreatedAt.Equal(clock))

	ps, err := s.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.True(t, ps[0].Required)
	assert.False(t, ps[1].Required, "optional participant must stay optional")

	ok, err := s.IsParticipant(ctx, 11, m.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsParticipant(ctx, 12, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetMeeting(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_RosterUpsertKeepsLastEntry(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, testMeeting("Standup", day.Add(9*time.Hour)), []types.Participant{
		{UserID: 10, Required: true},
		{UserID: 10, Required: false},
		{UserID: 11, Required: true},
	})
	require.NoError(t, err)

	ps, err := s.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, int64(10), ps[0].UserID)
	assert.False(t, ps[0].Required)
	assert.Equal(t, int64(2), countRows(t, db, &participantRow{}))
}

func TestStore_UpdateMeetingParticipants(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10, 11)

	m.Name = "Renamed"
	got, err := s.UpdateMeeting(ctx, m, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	ps, _ := s.ListParticipants(ctx, m.ID)
	assert.Len(t, ps, 2, "nil participants keeps the roster")

	_, err = s.UpdateMeeting(ctx, m, []types.Participant{{UserID: 12, Required: false}})
	require.NoError(t, err)
	ps, _ = s.ListParticipants(ctx, m.ID)
	require.Len(t, ps, 1)
	assert.Equal(t, types.Participant{MeetingID: m.ID, UserID: 12, Required: false}, ps[0])

	// Unchanged values still count as found.
	_, err = s.UpdateMeeting(ctx, m, nil)
	assert.NoError(t, err)

	m.ID = 999
	_, err = s.UpdateMeeting(ctx, m, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_UpdateMeetingWithoutStatusKeepsStored(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	require.NoError(t, s.SetMeetingStatus(ctx, m.ID, types.MeetingUpcoming, types.MeetingCancelled))

	m.Name = "Renamed"
	m.Status = ""
	got, err := s.UpdateMeeting(ctx, m, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, types.MeetingCancelled, got.Status)

	m.Status = types.MeetingUpcoming
	got, err = s.UpdateMeeting(ctx, m, nil)
	require.NoError(t, err)
	assert.Equal(t, types.MeetingUpcoming, got.Status)
}

func TestStore_SetMeetingStatusCompareAndSet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	require.NoError(t, s.SetMeetingStatus(ctx, m.ID, types.MeetingUpcoming, types.MeetingCancelled))

	err := s.SetMeetingStatus(ctx, m.ID, types.MeetingUpcoming, types.MeetingActive)
	assert.ErrorIs(t, err, store.ErrStatusConflict)
	got, _ := s.GetMeeting(ctx, m.ID)
	assert.Equal(t, types.MeetingCancelled, got.Status)

	err = s.SetMeetingStatus(ctx, 999, types.MeetingUpcoming, types.MeetingActive)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DeleteMeetingCascades(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10, 11)
	other := seedMeeting(t, s, "Retro", day.Add(15*time.Hour), 10)

	_, err := s.InsertRecord(ctx, presentRecord(m.ID, 10))
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, pendingRecord(m.ID, 11))
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, presentRecord(other.ID, 10))
	require.NoError(t, err)

	require.NoError(t, s.DeleteMeeting(ctx, m.ID))

	var n int64
	require.NoError(t, db.Model(&recordRow{}).Where("meeting_id = ?", m.ID).Count(&n).Error)
	assert.Zero(t, n, "records of the deleted meeting")
	require.NoError(t, db.Model(&participantRow{}).Where("meeting_id = ?", m.ID).Count(&n).Error)
	assert.Zero(t, n, "participants of the deleted meeting")

	assert.Equal(t, int64(1), countRows(t, db, &meetingRow{}))
	assert.Equal(t, int64(1), countRows(t, db, &recordRow{}))
	assert.Equal(t, int64(1), countRows(t, db, &participantRow{}))

	assert.ErrorIs(t, s.DeleteMeeting(ctx, m.ID), store.ErrNotFound)
}

func TestStore_ListMeetingsFilters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	morning := seedMeeting(t, s, "Morning", day.Add(9*time.Hour), 10)
	afternoon := seedMeeting(t, s, "Afternoon", day.Add(14*time.Hour), 11)
	tomorrow := seedMeeting(t, s, "Tomorrow", day.Add(33*time.Hour), 10)

	ids := func(ms []types.Meeting) []int64 {
		out := make([]int64, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	all, err := s.ListMeetings(ctx, store.MeetingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{morning.ID, afternoon.ID, tomorrow.ID}, ids(all))

	today, err := s.ListMeetings(ctx, store.MeetingFilter{DateFrom: day, DateTo: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{morning.ID, afternoon.ID}, ids(today))

	mine, err := s.ListMeetings(ctx, store.MeetingFilter{ParticipantID: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{morning.ID, tomorrow.ID}, ids(mine))

	active, err := s.ListMeetings(ctx, store.MeetingFilter{ActiveAt: day.Add(14*time.Hour + 30*time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []int64{afternoon.ID}, ids(active))

	upcoming, err := s.ListMeetings(ctx, store.MeetingFilter{StartsAfter: day.Add(14 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []int64{tomorrow.ID}, ids(upcoming))

	require.NoError(t, s.SetMeetingStatus(ctx, afternoon.ID, types.MeetingUpcoming, types.MeetingCancelled))
	cancelled, err := s.ListMeetings(ctx, store.MeetingFilter{Statuses: []types.MeetingStatus{types.MeetingCancelled}})
	require.NoError(t, err)
	assert.Equal(t, []int64{afternoon.ID}, ids(cancelled))

	combined, err := s.ListMeetings(ctx, store.MeetingFilter{
		ParticipantID: 10,
		DateFrom:      day,
		DateTo:        day.AddDate(0, 0, 1),
		Statuses:      []types.MeetingStatus{types.MeetingUpcoming},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{morning.ID}, ids(combined))
}

// ── Attendance ──────────────────────────────────────────────────────────────

func TestStore_InsertRecordRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	rec, err := s.InsertRecord(ctx, presentRecord(m.ID, 10))
	require.NoError(t, err)
	require.NotZero(t, rec.ID)

	got, err := s.GetRecordByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.True(t, got.CreatedAt.Equal(clock))

	locked, err := s.GetLockedRecord(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, locked.ID)

	_, err = s.GetLockedRecord(ctx, m.ID, 11)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetRecordByID(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SecondLockedInsertRejected(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	_, err := s.InsertRecord(ctx, presentRecord(m.ID, 10))
	require.NoError(t, err)

	late := presentRecord(m.ID, 10)
	late.Status = types.StatusLate
	_, err = s.InsertRecord(ctx, late)
	assert.ErrorIs(t, err, store.ErrLockedRecordExists)

	// Unlocked outcomes stay insertable next to a locked one.
	absent := presentRecord(m.ID, 10)
	absent.Status = types.StatusAbsent
	_, err = s.InsertRecord(ctx, absent)
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, pendingRecord(m.ID, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(3), countRows(t, db, &recordRow{}))
}

func TestStore_LockedInsertForUnrosteredUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	_, err := s.InsertRecord(ctx, presentRecord(m.ID, 42))
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, presentRecord(m.ID, 42))
	assert.ErrorIs(t, err, store.ErrLockedRecordExists)

	_, err = s.InsertRecord(ctx, presentRecord(999, 42))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ConcurrentLockedInserts(t *testing.T) {
	s, db := newTestStore(t)
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertRecord(context.Background(), presentRecord(m.ID, 10))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, store.ErrLockedRecordExists):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
	assert.Equal(t, int64(1), countRows(t, db, &recordRow{}))
}

func TestStore_UpdateRecordStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	rec, err := s.InsertRecord(ctx, pendingRecord(m.ID, 10))
	require.NoError(t, err)

	got, err := s.UpdateRecordStatus(ctx, rec.ID, types.StatusPending, types.StatusPresent, 1, "approved by admin")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPresent, got.Status)
	require.NotNil(t, got.ManualApprovalBy)
	assert.Equal(t, int64(1), *got.ManualApprovalBy)
	assert.Equal(t, "badge reader down | approved by admin", got.Notes)

	stored, err := s.GetRecordByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	_, err = s.UpdateRecordStatus(ctx, rec.ID, types.StatusPending, types.StatusAbsent, 1, "late reject")
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	_, err = s.UpdateRecordStatus(ctx, 999, types.StatusPending, types.StatusPresent, 1, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ApproveWhileLockedRecordExists(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	m := seedMeeting(t, s, "Standup", day.Add(9*time.Hour), 10)

	pending, err := s.InsertRecord(ctx, pendingRecord(m.ID, 10))
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, presentRecord(m.ID, 10))
	require.NoError(t, err)

	_, err = s.UpdateRecordStatus(ctx, pending.ID, types.StatusPending, types.StatusPresent, 1, "approved")
	assert.ErrorIs(t, err, store.ErrLockedRecordExists)

	got, err := s.GetRecordByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.ManualApprovalBy)

	// Rejecting does not lock, so it goes through.
	got, err = s.UpdateRecordStatus(ctx, pending.ID, types.StatusPending, types.StatusAbsent, 1, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAbsent, got.Status)
}

func TestStore_ListAndCountRecords(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedMeeting(t, s, "Morning", day.Add(9*time.Hour), 10, 11)
	b := seedMeeting(t, s, "Afternoon", day.Add(14*time.Hour), 10)

	first, err := s.InsertRecord(ctx, presentRecord(a.ID, 10))
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, pendingRecord(a.ID, 11))
	require.NoError(t, err)
	s.now = func() time.Time { return clock.Add(time.Minute) }
	last, err := s.InsertRecord(ctx, pendingRecord(b.ID, 10))
	require.NoError(t, err)

	all, err := s.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID, "newest first")

	mine, err := s.ListRecords(ctx, store.RecordFilter{UserID: 10})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, []int64{last.ID, first.ID}, []int64{mine[0].ID, mine[1].ID})

	pending, err := s.ListRecords(ctx, store.RecordFilter{MeetingIDs: []int64{a.ID}, Status: types.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(11), pending[0].UserID)

	none, err := s.ListRecords(ctx, store.RecordFilter{MeetingIDs: []int64{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := s.CountRecordsByStatus(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCounts{Present: 1, Pending: 2}, counts)

	counts, err = s.CountRecordsByStatus(ctx, store.RecordFilter{MeetingIDs: []int64{b.ID}})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCounts{Pending: 1}, counts)

	counts, err = s.CountRecordsByStatus(ctx, store.RecordFilter{MeetingIDs: []int64{}})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCounts{}, counts)
}

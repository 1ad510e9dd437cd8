package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/geo"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/service"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store/memory"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

var (
	meetingStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	beforeStart  = meetingStart.Add(-5 * time.Minute)
	afterStart   = meetingStart.Add(5 * time.Minute)

	admin    = types.Actor{ID: 1, Username: "admin", Role: types.RoleAdmin}
	employee = types.Actor{ID: 10, Username: "jdoe", Role: types.RoleEmployee}
	outsider = types.Actor{ID: 99, Username: "guest", Role: types.RoleEmployee}
)

const (
	hqLat = 37.0
	hqLon = -122.0
)

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store     *memory.Store
	clock     *fakeClock
	checkIn   *service.CheckInService
	approvals *service.ApprovalService
	dashboard *service.DashboardService
	meetings  *service.MeetingService
	meeting   types.Meeting
}

// newFixture wires every service over one memory store and seeds a meeting
// at (hqLat, hqLon) with a 100m radius that employee participates in.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	clock := &fakeClock{now: beforeStart}
	opts := service.Options{Clock: clock.Now, ReadRetryDelay: time.Millisecond}
	locks := service.NewKeyedMutex()
	roster := service.NewRoster(st, opts)

	f := &fixture{
		store:     st,
		clock:     clock,
		checkIn:   service.NewCheckInService(st, roster, locks, opts),
		approvals: service.NewApprovalService(st, locks, opts),
		dashboard: service.NewDashboardService(st, opts),
		meetings:  service.NewMeetingService(st, roster, opts),
	}

	m, err := st.CreateMeeting(context.Background(), types.Meeting{
		Name:         "Standup",
		Date:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:    meetingStart,
		EndTime:      meetingStart.Add(30 * time.Minute),
		Latitude:     hqLat,
		Longitude:    hqLon,
		RadiusMeters: 100,
		CreatedBy:    admin.ID,
		Status:       types.MeetingUpcoming,
	}, []types.Participant{{UserID: employee.ID, Required: true}})
	if err != nil {
		t.Fatalf("seed meeting: %v", err)
	}
	f.meeting = m
	return f
}

// gpsAt builds a gps check-in meters due north of the meeting location.
func gpsAt(meetingID int64, meters float64) types.CheckInRequest {
	lat := geo.OffsetNorth(hqLat, meters)
	lon := hqLon
	return types.CheckInRequest{
		MeetingID:          meetingID,
		Latitude:           &lat,
		Longitude:          &lon,
		VerificationMethod: types.MethodGPS,
	}
}

func f64(v float64) *float64 { return &v }

package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// DashboardService derives read-only counts. Nothing is cached and no
// locks are taken; concurrent writes may or may not be reflected.
type DashboardService struct {
	store store.Store
	loc   *time.Location
	clock func() time.Time
	delay time.Duration
}

func NewDashboardService(st store.Store, opts Options) *DashboardService {
	opts = opts.withDefaults()
	return &DashboardService{store: st, loc: opts.Location, clock: opts.Clock, delay: opts.ReadRetryDelay}
}

func (s *DashboardService) Now() time.Time { return s.clock() }

// DayBounds returns [start of day, start of next day) for t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// AdminStats counts meetings in progress at now and today's records by status.
func (s *DashboardService) AdminStats(ctx context.Context, now time.Time) (types.AdminStats, error) {
	var (
		stats  types.AdminStats
		counts types.StatusCounts
	)
	from, to := DayBounds(now, s.loc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		active, err := readOnce(gctx, s.delay, "ListMeetings active", func(ctx context.Context) ([]types.Meeting, error) {
			return s.store.ListMeetings(ctx, store.MeetingFilter{ActiveAt: now})
		})
		if err != nil {
			return err
		}
		stats.ActiveMeetings = int64(len(active))
		return nil
	})
	g.Go(func() error {
		today, err := readOnce(gctx, s.delay, "ListMeetings today", func(ctx context.Context) ([]types.Meeting, error) {
			return s.store.ListMeetings(ctx, store.MeetingFilter{DateFrom: from, DateTo: to})
		})
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(today))
		for _, m := range today {
			ids = append(ids, m.ID)
		}
		counts, err = readOnce(gctx, s.delay, "CountRecordsByStatus", func(ctx context.Context) (types.StatusCounts, error) {
			return s.store.CountRecordsByStatus(ctx, store.RecordFilter{MeetingIDs: ids})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return types.AdminStats{}, err
	}

	stats.PresentToday = counts.Present
	stats.LateToday = counts.Late
	stats.AbsentToday = counts.Absent
	stats.PendingToday = counts.Pending
	return stats, nil
}

// UserStats counts the user's upcoming meetings and lifetime record totals.
func (s *DashboardService) UserStats(ctx context.Context, userID int64, now time.Time) (types.UserStats, error) {
	var (
		stats  types.UserStats
		counts types.StatusCounts
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		upcoming, err := readOnce(gctx, s.delay, "ListMeetings upcoming", func(ctx context.Context) ([]types.Meeting, error) {
			return s.store.ListMeetings(ctx, store.MeetingFilter{ParticipantID: userID, StartsAfter: now})
		})
		if err != nil {
			return err
		}
		stats.UpcomingMeetings = int64(len(upcoming))
		return nil
	})
	g.Go(func() error {
		var err error
		counts, err = readOnce(gctx, s.delay, "CountRecordsByStatus", func(ctx context.Context) (types.StatusCounts, error) {
			return s.store.CountRecordsByStatus(ctx, store.RecordFilter{UserID: userID})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return types.UserStats{}, err
	}

	stats.TotalPresent = counts.Present
	stats.TotalLate = counts.Late
	stats.TotalAbsent = counts.Absent
	stats.TotalPending = counts.Pending
	return stats, nil
}

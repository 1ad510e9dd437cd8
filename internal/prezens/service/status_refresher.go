package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// StatusRefresher keeps Meeting.Status in line with the wall clock:
// upcoming before StartTime, active inside [StartTime, EndTime], completed
// after. Cancelled meetings are never touched.
//
// An interval of 0 disables the refresher.
type StatusRefresher struct {
	store    store.MeetingStore
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewStatusRefresher creates a refresher but does not start it.
func NewStatusRefresher(st store.MeetingStore, interval time.Duration, opts Options) *StatusRefresher {
	opts = opts.withDefaults()
	return &StatusRefresher{
		store:    st,
		interval: interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
}

// Start refreshes once immediately, then on every tick until ctx is done or
// Stop is called.
func (r *StatusRefresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("meeting status refresher disabled")
		close(r.done)
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)

	r.logger.Info("meeting status refresher started", "interval", r.interval)
}

// Stop signals the loop to exit and waits for it.
func (r *StatusRefresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *StatusRefresher) loop(ctx context.Context) {
	defer close(r.done)

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// RefreshOnce applies one pass and returns how many meetings changed.
func (r *StatusRefresher) RefreshOnce(ctx context.Context) (int, error) {
	now := r.clock()
	meetings, err := r.store.ListMeetings(ctx, store.MeetingFilter{
		Statuses: []types.MeetingStatus{types.MeetingUpcoming, types.MeetingActive},
	})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, m := range meetings {
		want := StatusAt(m, now)
		if want == m.Status {
			continue
		}
		err := r.store.SetMeetingStatus(ctx, m.ID, m.Status, want)
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrNotFound) {
			// Cancelled, edited or deleted since the read; the next pass sees it.
			r.logger.DebugContext(ctx, "meeting changed during refresh", "meeting_id", m.ID, "error", err)
			continue
		}
		if err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (r *StatusRefresher) refresh(ctx context.Context) {
	n, err := r.RefreshOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("meeting status refresh failed", "error", err)
		}
		return
	}
	if n > 0 {
		r.logger.Info("meeting statuses refreshed", "changed", n)
	}
}

// StatusAt is the clock-derived status of m at t. Cancelled is sticky.
func StatusAt(m types.Meeting, t time.Time) types.MeetingStatus {
	switch {
	case m.Status == types.MeetingCancelled:
		return types.MeetingCancelled
	case t.Before(m.StartTime):
		return types.MeetingUpcoming
	case m.InProgress(t):
		return types.MeetingActive
	default:
		return types.MeetingCompleted
	}
}

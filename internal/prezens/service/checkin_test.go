package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/service"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// ── Scenarios ───────────────────────────────────────────────────────────────

func TestSubmit_InRangeBeforeStartIsPresent(t *testing.T) {
	f := newFixture(t)

	d, err := f.checkIn.Submit(context.Background(), employee, gpsAt(f.meeting.ID, 80))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.Outcome != types.OutcomeCheckedIn || d.Record.Status != types.StatusPresent {
		t.Fatalf("expected checked_in/present, got %s/%s", d.Outcome, d.Record.Status)
	}
	if d.Record.ID == 0 {
		t.Error("expected persisted record id")
	}

	recs := f.store.Records()
	if len(recs) != 1 || recs[0].Status != types.StatusPresent || recs[0].UserID != employee.ID {
		t.Errorf("unexpected stored records: %+v", recs)
	}
}

func TestSubmit_OutOfRangePersistsAbsent(t *testing.T) {
	f := newFixture(t)

	d, err := f.checkIn.Submit(context.Background(), employee, gpsAt(f.meeting.ID, 150))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.Outcome != types.OutcomeOutOfRange {
		t.Fatalf("expected out_of_range, got %s", d.Outcome)
	}

	recs := f.store.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Status != types.StatusAbsent {
		t.Errorf("expected absent, got %s", rec.Status)
	}
	if !strings.Contains(rec.Notes, "150") || !strings.Contains(rec.Notes, "100") {
		t.Errorf("expected note with distance and radius, got %q", rec.Notes)
	}
}

func TestSubmit_LateAfterStart(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(afterStart)

	d, err := f.checkIn.Submit(context.Background(), employee, gpsAt(f.meeting.ID, 10))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.Record.Status != types.StatusLate {
		t.Errorf("expected late, got %s", d.Record.Status)
	}
}

// ── Preconditions ───────────────────────────────────────────────────────────

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.checkIn.Submit(ctx, employee, gpsAt(999, 10)); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.checkIn.Submit(ctx, outsider, gpsAt(f.meeting.ID, 10)); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.checkIn.Submit(ctx, employee, types.CheckInRequest{MeetingID: f.meeting.ID, VerificationMethod: types.MethodGPS}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if n := len(f.store.Records()); n != 0 {
		t.Errorf("rejections must not write records, got %d", n)
	}
}

func TestSubmit_AlreadyCheckedIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 10)); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 10))
	if !errors.Is(err, service.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	if n := len(f.store.Records()); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestSubmit_RetryAfterOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 500)); err != nil {
		t.Fatalf("far Submit: %v", err)
	}
	d, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 20))
	if err != nil {
		t.Fatalf("near Submit: %v", err)
	}
	if d.Record.Status != types.StatusPresent {
		t.Errorf("expected present on retry, got %s", d.Record.Status)
	}

	recs := f.store.Records()
	if len(recs) != 2 || recs[0].Status != types.StatusAbsent {
		t.Errorf("expected absent history kept, got %+v", recs)
	}
}

// ── Mutual exclusion ────────────────────────────────────────────────────────

func TestSubmit_ConcurrentCheckInsLockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 30))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrAlreadyCheckedIn):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok != 1 || rejected != n-1 {
		t.Errorf("expected 1 success and %d AlreadyCheckedIn, got %d and %d", n-1, ok, rejected)
	}
	locked := 0
	for _, r := range f.store.Records() {
		if r.Status.Locked() {
			locked++
		}
	}
	if locked != 1 {
		t.Errorf("expected exactly one locked record, got %d", locked)
	}
}

// ── Storage failures ────────────────────────────────────────────────────────

func TestSubmit_ReadRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.store.FailNextReads(1, errors.New("disk hiccup"))

	d, err := f.checkIn.Submit(context.Background(), employee, gpsAt(f.meeting.ID, 10))
	if err != nil {
		t.Fatalf("expected transparent retry, got %v", err)
	}
	if d.Record.Status != types.StatusPresent {
		t.Errorf("expected present, got %s", d.Record.Status)
	}
}

func TestSubmit_PersistentReadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailNextReads(2, errors.New("disk gone"))

	_, err := f.checkIn.Submit(context.Background(), employee, gpsAt(f.meeting.ID, 10))
	if !errors.Is(err, service.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if n := len(f.store.Records()); n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
}

func TestSubmit_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The memory store ignores ctx, so hold the pair lock to force the wait.
	locks := service.NewKeyedMutex()
	svc := service.NewCheckInService(f.store, service.NewRoster(f.store, service.Options{}), locks, service.Options{Clock: f.clock.Now})
	unlock, err := locks.Lock(context.Background(), "1:10")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	_, err = svc.Submit(ctx, employee, gpsAt(f.meeting.ID, 10))
	if !errors.Is(err, service.ErrStorageUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled storage error, got %v", err)
	}
	if n := len(f.store.Records()); n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
}

func TestHistory_OwnRecordsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 500)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.clock.Set(afterStart.Add(time.Minute))
	if _, err := f.checkIn.Submit(ctx, employee, gpsAt(f.meeting.ID, 5)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	hist, err := f.checkIn.History(ctx, employee)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].Status != types.StatusLate || hist[1].Status != types.StatusAbsent {
		t.Errorf("unexpected history: %+v", hist)
	}

	other, _ := f.checkIn.History(ctx, outsider)
	if len(other) != 0 {
		t.Errorf("expected empty history for outsider, got %d", len(other))
	}
}

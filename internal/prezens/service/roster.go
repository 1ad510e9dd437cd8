package service

import (
	"context"
	"slices"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// Roster answers who may check in to a meeting.
type Roster struct {
	store store.MeetingStore
	delay time.Duration
}

func NewRoster(st store.MeetingStore, opts Options) *Roster {
	opts = opts.withDefaults()
	return &Roster{store: st, delay: opts.ReadRetryDelay}
}

func (r *Roster) IsParticipant(ctx context.Context, userID, meetingID int64) (bool, error) {
	if userID <= 0 || meetingID <= 0 {
		return false, nil
	}
	return readOnce(ctx, r.delay, "IsParticipant", func(ctx context.Context) (bool, error) {
		return r.store.IsParticipant(ctx, userID, meetingID)
	})
}

func (r *Roster) Participants(ctx context.Context, meetingID int64) ([]types.Participant, error) {
	return readOnce(ctx, r.delay, "ListParticipants", func(ctx context.Context) ([]types.Participant, error) {
		return r.store.ListParticipants(ctx, meetingID)
	})
}

// normalizeParticipants drops non-positive ids and duplicates, keeping the
// first occurrence. A nil input stays nil so updates can leave the list alone.
func normalizeParticipants(ids *[]int64) []types.Participant {
	if ids == nil {
		return nil
	}
	out := make([]types.Participant, 0, len(*ids))
	seen := make([]int64, 0, len(*ids))
	for _, id := range *ids {
		if id <= 0 || slices.Contains(seen, id) {
			continue
		}
		seen = append(seen, id)
		out = append(out, types.Participant{UserID: id, Required: true})
	}
	return out
}

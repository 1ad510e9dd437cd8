package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
)

// DefaultReadRetryDelay is the pause before the single read retry.
const DefaultReadRetryDelay = 50 * time.Millisecond

// readOnce runs a store read, retrying it once when the backend fails.
// Writes must never go through here: a repeated insert could duplicate a
// record.
func readOnce[T any](ctx context.Context, delay time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if delay <= 0 {
		delay = DefaultReadRetryDelay
	}
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || isStoreSentinel(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(2),
	)
	return v, storeErr(op, err)
}

func isStoreSentinel(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrLockedRecordExists) ||
		errors.Is(err, store.ErrStatusConflict)
}

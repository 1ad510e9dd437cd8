package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyCheckedIn   = errors.New("already checked in")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation error")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// validationf builds an ErrValidation with a caller-facing message.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr translates a store error into the service taxonomy. Anything that
// is not a known store sentinel means the backend itself failed.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, store.ErrLockedRecordExists):
		return fmt.Errorf("%s: %w", op, ErrAlreadyCheckedIn)
	case errors.Is(err, store.ErrStatusConflict):
		return fmt.Errorf("%s: %w", op, ErrInvalidState)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
}

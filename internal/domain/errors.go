package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced in JSON responses and internal results.
var (
	ErrNotFound      = errors.New("ERR_NOT_FOUND")
	ErrInvariant     = errors.New("ERR_INVARIANT")
	ErrInUse         = errors.New("ERR_IN_USE")
	ErrNotLockHolder = errors.New("ERR_NOT_LOCK_HOLDER")
	ErrStore         = errors.New("ERR_STORE")
	ErrUpstream      = errors.New("ERR_UPSTREAM")
	ErrTimeout       = errors.New("ERR_TIMEOUT")
	ErrBadRequest    = errors.New("ERR_BAD_REQUEST")
	ErrUnauthorized  = errors.New("ERR_UNAUTHORIZED")
)

// Kind returns the error-kind token for err, or ERR_STORE for unknown errors.
func Kind(err error) string {
	for _, kind := range []error{
		ErrNotFound, ErrInvariant, ErrInUse, ErrNotLockHolder,
		ErrStore, ErrUpstream, ErrTimeout, ErrBadRequest, ErrUnauthorized,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ErrStore.Error()
}

// Invariantf wraps ErrInvariant with the violated invariant's description.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrSyncInProgress: a PENDING or IN_PROGRESS job already exists for
	// the source.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrDuplicate: an insert lost a (source, external_id) race; the
	// pre-existing row is authoritative.
	ErrDuplicate = errors.New("duplicate row")
)

// RateLimitedError rejects a MANUAL trigger inside the rolling cooldown
// window. RetryAfter is the remaining wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("manual sync rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

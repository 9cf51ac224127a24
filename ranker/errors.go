package ranker

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeadlineExceeded marks a run that hit its maximum execution time.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	// ErrRunCancelled marks a run stopped by its caller.
	ErrRunCancelled = errors.New("cancelled")
)

// ErrIntegrity indicates the scheduler produced outcomes that do not match
// the submitted tasks one to one. It always signals a bug.
type ErrIntegrity struct {
	Reason string
}

func (e ErrIntegrity) Error() string {
	return fmt.Sprintf("integrity violation: %s", e.Reason)
}

// interruption maps a done context to ErrDeadlineExceeded or ErrRunCancelled.
func interruption(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrDeadlineExceeded) || errors.Is(cause, context.DeadlineExceeded) {
		return ErrDeadlineExceeded
	}
	return ErrRunCancelled
}

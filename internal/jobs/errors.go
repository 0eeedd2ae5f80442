package jobs

import (
	"errors"

	"github.com/haasonsaas/warden/internal/tools"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: the dispatcher fails the job after
// the first attempt instead of applying the retry policy. Validation
// failures and policy refusals are the usual candidates; the input is wrong,
// not the moment.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried. Argument validation
// failures are permanent regardless of wrapping.
func IsPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, tools.ErrInvalidArguments)
}

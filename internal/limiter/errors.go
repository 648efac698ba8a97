package limiter

import (
	"errors"
	"fmt"
)

// ErrFetchFailed matches every FetchFailedError via errors.Is.
var ErrFetchFailed = errors.New("fetch failed")

// FetchFailedError reports a call whose retry budget ran out.
type FetchFailedError struct {
	Op       string
	Attempts int
	// Throttled is set when the last failure was a rate-limit response.
	Throttled bool
	Cause     error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("%s: fetch failed after %d attempts: %v", e.Op, e.Attempts, e.Cause)
}

func (e *FetchFailedError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrFetchFailed) match any FetchFailedError.
func (e *FetchFailedError) Is(target error) bool {
	return target == ErrFetchFailed
}

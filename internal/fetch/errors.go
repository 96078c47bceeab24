package fetch

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError captures an unexpected status code and the response body.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// ErrRefetchFailed matches every *RefetchFailedError with errors.Is.
var ErrRefetchFailed = errors.New("refetch of stale cache entry failed")

// RefetchFailedError is returned when a stale entry could not be refreshed.
// The stale payload is still available to callers that prefer it over failing.
type RefetchFailedError struct {
	URL        string
	Stale      []byte
	StaleSince time.Time
	Err        error
}

func (e *RefetchFailedError) Error() string {
	return fmt.Sprintf("refetch %s (cached since %s): %v", e.URL, e.StaleSince.Format(time.RFC3339), e.Err)
}

func (e *RefetchFailedError) Unwrap() error {
	return e.Err
}

func (e *RefetchFailedError) Is(target error) bool {
	return target == ErrRefetchFailed
}

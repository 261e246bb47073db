package youtube

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrVideoNotFound       = errors.New("youtube: video not found")
	ErrUnplayable          = errors.New("youtube: video not playable")
	ErrUpstreamUnavailable = errors.New("youtube: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("youtube: upstream error")
	ErrBadResponse         = errors.New("youtube: invalid response format or malformed data")
	ErrTimeout             = errors.New("youtube: request timed out")
)

// APIError wraps the sentinel errors with request context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Reason    string
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("youtube: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

package adapter

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidResponse marks a response body missing the fields the wire
// format requires. Wrapped with detail at each parse site.
var ErrInvalidResponse = errors.New("invalid response format")

// ErrContentBlocked marks a completion refused by an upstream safety
// filter, distinct from a parse failure.
var ErrContentBlocked = errors.New("content blocked by safety filter")

// StatusError carries a non-2xx upstream status and a truncated body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// TimeoutError marks a transport deadline exceeded.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timeout after %s", e.Timeout)
}

func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

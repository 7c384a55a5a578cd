package resolver

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrMalformedInput means the raw target could not be made into a URI.
	ErrMalformedInput = errors.New("malformed input")
	// ErrRedirectWithoutLocation is a 3xx response with no Location header.
	ErrRedirectWithoutLocation = errors.New("redirect without location")
	// ErrUnclassifiedStatus is any status outside the success and redirect sets.
	ErrUnclassifiedStatus = errors.New("unclassified status")
	// ErrHopLimitExceeded is the only failure that produces a message.
	ErrHopLimitExceeded = errors.New("hop limit exceeded")
	// ErrCancelled is returned when cancellation is seen at a hop boundary.
	ErrCancelled = errors.New("resolution cancelled")
)

// Stages reported by TransportError.
const (
	StageProbe = "probe"
	StageFetch = "fetch"
	StageBody  = "body"
)

// TransportError wraps a network or stream failure at a given stage.
type TransportError struct {
	Stage string
	URL   string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HopLimitError carries the URI the resolver stopped at.
type HopLimitError struct {
	Last *url.URL
	Hops int
}

func (e *HopLimitError) Error() string {
	return fmt.Sprintf("unresolved after %d hops at %s", e.Hops, e.Last)
}

func (e *HopLimitError) Is(target error) bool {
	return target == ErrHopLimitExceeded
}

// Reason maps an error to a short label for logs and metrics.
func Reason(err error) string {
	var transportErr *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrRedirectWithoutLocation):
		return "redirect_without_location"
	case errors.Is(err, ErrUnclassifiedStatus):
		return "unclassified_status"
	case errors.Is(err, ErrHopLimitExceeded):
		return "hop_limit"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "unknown"
	}
}

package resolver

import (
	"fmt"
	"net/url"
	"regexp"
)

var schemePattern = regexp.MustCompile(`^https?://.+$`)

// Normalize turns a raw, possibly scheme-less string into an absolute URI.
// Anything not already starting with http:// or https:// gets http:// prepended.
func Normalize(raw string) (*url.URL, error) {
	if !schemePattern.MatchString(raw) {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no host in %q", ErrMalformedInput, raw)
	}
	return u, nil
}

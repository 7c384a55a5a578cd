// Package resolver follows a link through its redirects, classifies what it
// finds and turns that into a one-line summary for a chat destination.
package resolver

import "time"

const (
	// DefaultTimeout bounds connect and each read of every call.
	DefaultTimeout = 2000 * time.Millisecond
	// DefaultMaxHops is the number of redirects followed before giving up.
	DefaultMaxHops = 5
	// DefaultUserAgent is sent with every probe and fetch.
	DefaultUserAgent = "LinkResolver/1.0 (+https://github.com/link-resolver)"
)

// Config holds the fixed knobs of a resolution.
type Config struct {
	Timeout   time.Duration
	MaxHops   int
	UserAgent string
}

// DefaultConfig returns the 2s / 5 hop configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultTimeout,
		MaxHops:   DefaultMaxHops,
		UserAgent: DefaultUserAgent,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultMaxHops
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

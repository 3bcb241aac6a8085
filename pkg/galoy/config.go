package galoy

import (
	"errors"
	"time"
)

// Config contains the configuration required to initialize the wallet
// backend client.
type Config struct {
	// URL is the GraphQL endpoint of the wallet backend. This should be the
	// internal endpoint, not the public one.
	URL string

	// Timeout bounds each GraphQL operation. Zero means the 30s default.
	Timeout time.Duration
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.URL == "" {
		return errors.New("url is required")
	}
	return nil
}

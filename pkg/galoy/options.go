package galoy

import (
	"net/http"

	"go.uber.org/zap"
)

type settings struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// Option configures the wallet backend client.
type Option func(*settings)

// WithLogger sets a custom logger for the client.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithHTTPClient overrides the underlying http.Client, taking precedence
// over the configured timeout. Used in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

func applyOptions(opts []Option) settings {
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

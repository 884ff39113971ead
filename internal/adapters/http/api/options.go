package api

import "github.com/okian/besttime/pkg/logger"

// Default server configuration constants.
const (
	defaultMaxPageLimit = 100
	defaultPageLimit    = 10
	defaultSubmitRate   = 5.0
	defaultSubmitBurst  = 10
	maxBodyBytes        = 1 << 16
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxPageLimit caps the limit query parameter of the ranks page.
func WithMaxPageLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPageLimit = n
		}
	}
}

// WithAdminToken enables the admin routes behind the X-Admin-Token header.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

// WithSubmitRate sets the per-player submission rate and burst.
// A non-positive rate disables throttling.
func WithSubmitRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.throttle = newThrottle(perSecond, burst)
	}
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = append([]string(nil), origins...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

package live

import (
	"time"

	"github.com/okian/besttime/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithChannel sets the transport channel the hub listens on.
func WithChannel(channel string) Option {
	return func(h *Hub) {
		if channel != "" {
			h.channel = channel
		}
	}
}

// WithSnapshotSource sends each new client the current top rows on connect.
func WithSnapshotSource(src SnapshotSource, window int) Option {
	return func(h *Hub) {
		h.source = src
		if window > 0 {
			h.window = window
		}
	}
}

// WithSendBuffer sets how many snapshots may queue per client before it is
// treated as too slow and disconnected.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPingInterval sets the keepalive ping period. The read deadline is
// derived from it.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// Empty means any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.origins = make(map[string]struct{}, len(origins))
		for _, o := range origins {
			h.origins[o] = struct{}{}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and BESTTIME_ env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import "time"

// Transport kinds for the ranking broadcast.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MinClearTimeMS is the plausibility floor; faster submissions are rejected.
	MinClearTimeMS int64 `koanf:"min_clear_time_ms"`
	// BroadcastWindow is the top-K window eligible for live broadcast.
	BroadcastWindow int `koanf:"broadcast_window"`
	// BroadcastQueueSize bounds the outbound broadcast queue.
	BroadcastQueueSize int `koanf:"broadcast_queue_size"`
	// NameResolveTimeoutMS bounds directory lookups while building a snapshot.
	NameResolveTimeoutMS int `koanf:"name_resolve_timeout_ms"`
	// MaxPageLimit caps GET /ranks?limit.
	MaxPageLimit int `koanf:"max_page_limit"`

	// DatabasePath is the SQLite file backing players and play history.
	DatabasePath string `koanf:"database_path"`
	// RebuildOnStart reloads the score index from play history at startup.
	RebuildOnStart bool `koanf:"rebuild_on_start"`

	// JWTSecret signs access tokens.
	JWTSecret string `koanf:"jwt_secret"`
	// TokenTTLMinutes is the access token lifetime.
	TokenTTLMinutes int `koanf:"token_ttl_minutes"`
	// AdminToken guards administrative endpoints; empty disables them.
	AdminToken string `koanf:"admin_token"`

	// Transport is "memory" or "nats".
	Transport string `koanf:"transport"`
	// NATSURL is used when Transport is "nats".
	NATSURL string `koanf:"nats_url"`
	// RankingChannel is the logical channel ranking snapshots are published on.
	RankingChannel string `koanf:"ranking_channel"`

	// SubmitRatePerSec and SubmitBurst throttle submissions per player.
	SubmitRatePerSec float64 `koanf:"submit_rate_per_sec"`
	SubmitBurst      int     `koanf:"submit_burst"`
	// DedupeSize bounds the Idempotency-Key window.
	DedupeSize int `koanf:"dedupe_size"`

	// HiddenMessages are revealed to the rank-1 player.
	HiddenMessages []string `koanf:"hidden_messages"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		MinClearTimeMS:       2000,
		BroadcastWindow:      10,
		BroadcastQueueSize:   1024,
		NameResolveTimeoutMS: 200,
		MaxPageLimit:         100,
		DatabasePath:         "data/besttime.db",
		RebuildOnStart:       true,
		JWTSecret:            "change-me-in-production",
		TokenTTLMinutes:      60 * 24,
		Transport:            TransportMemory,
		NATSURL:              "nats://127.0.0.1:4222",
		RankingChannel:       "ranking_update",
		SubmitRatePerSec:     5,
		SubmitBurst:          10,
		DedupeSize:           50_000,
		HiddenMessages: []string{
			"You hold the best time. Keep it.",
		},
	}
}

// TokenTTL returns the access token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// NameResolveTimeout returns the directory lookup budget per snapshot.
func (c *Config) NameResolveTimeout() time.Duration {
	return time.Duration(c.NameResolveTimeoutMS) * time.Millisecond
}

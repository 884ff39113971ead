package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "BESTTIME_"

// listKeys are split on commas when they arrive through the environment.
var listKeys = map[string]bool{ //nolint:gochecknoglobals // read-only lookup table
	"hidden_messages": true,
	"cors_origins":    true,
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BESTTIME_CONFIG is set
//  3. env (prefix BESTTIME_)
func Load(_ context.Context) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BESTTIME_MIN_CLEAR_TIME_MS -> min_clear_time_ms (flat keys, underscores kept).
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if key == "config" {
			return "", nil
		}
		if listKeys[key] {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return key, out
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the service relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MinClearTimeMS < 0:
		return fmt.Errorf("%w: min_clear_time_ms must not be negative", ErrInvalidConfig)
	case c.BroadcastWindow < 1:
		return fmt.Errorf("%w: broadcast_window must be at least 1", ErrInvalidConfig)
	case c.BroadcastQueueSize < 1:
		return fmt.Errorf("%w: broadcast_queue_size must be at least 1", ErrInvalidConfig)
	case c.MaxPageLimit < 1:
		return fmt.Errorf("%w: max_page_limit must be at least 1", ErrInvalidConfig)
	case c.DatabasePath == "":
		return fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	case c.JWTSecret == "":
		return fmt.Errorf("%w: jwt_secret must not be empty", ErrInvalidConfig)
	case c.Transport != TransportMemory && c.Transport != TransportNATS:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	case c.Transport == TransportNATS && c.NATSURL == "":
		return fmt.Errorf("%w: nats_url is required for the nats transport", ErrInvalidConfig)
	case c.RankingChannel == "":
		return fmt.Errorf("%w: ranking_channel must not be empty", ErrInvalidConfig)
	}
	return nil
}

package leaderboard

import (
	"time"

	"github.com/okian/besttime/internal/domain/dedupe"
	"github.com/okian/besttime/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDirectory sets the identity directory used to resolve display names.
func WithDirectory(d Directory) Option {
	return func(s *Service) {
		if d != nil {
			s.directory = d
		}
	}
}

// WithHistory sets the play history store.
func WithHistory(h History) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

// WithBroadcasts sets the outbound queue broadcast jobs are handed to.
func WithBroadcasts(b Broadcasts) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcasts = b
		}
	}
}

// WithDeduper sets the idempotency-key window used by SubmitOnce.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.dedupe = d
		}
	}
}

// WithMinClearTime sets the plausibility floor in milliseconds.
func WithMinClearTime(ms int64) Option {
	return func(s *Service) {
		if ms >= 0 {
			s.floorMs = ms
		}
	}
}

// WithBroadcastWindow sets K: only improvements landing in the top K are broadcast.
func WithBroadcastWindow(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.window = k
		}
	}
}

// WithNameResolveTimeout bounds directory and history lookups while rendering rows.
func WithNameResolveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resolveTimeout = d
		}
	}
}

// WithHiddenMessages sets the messages revealed to the rank-1 player.
func WithHiddenMessages(msgs []string) Option {
	return func(s *Service) {
		s.hiddenMessages = append([]string(nil), msgs...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source for play timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

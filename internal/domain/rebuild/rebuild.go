// Package rebuild reconstructs the score index from the durable play history.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/besttime/internal/adapters/repository"
	"github.com/okian/besttime/pkg/logger"
	"github.com/okian/besttime/pkg/metrics"
)

// ErrSourceUnavailable means the history could not be read; the index was left untouched.
var ErrSourceUnavailable = errors.New("rebuild source unavailable")

// Source yields each player's best clear time.
type Source interface {
	BestTimes(ctx context.Context) ([]repository.Entry, error)
}

// Target is the index being replaced. Version is read before the scan so
// LoadSince can keep submissions that land while the scan runs.
type Target interface {
	Version(ctx context.Context) uint64
	LoadSince(ctx context.Context, entries []repository.Entry, version uint64) int
}

// Result describes a completed rebuild.
type Result struct {
	Players  int
	Duration time.Duration
}

// Run reads every best time from source and swaps them into target in one step.
// Readers keep seeing the previous index until the swap, and writes made
// during the scan survive it.
func Run(ctx context.Context, source Source, target Target) (Result, error) {
	log := logger.Get().Named("rebuild")
	start := time.Now()
	version := target.Version(ctx)

	entries, err := source.BestTimes(ctx)
	if err != nil {
		metrics.RecordRebuildFailure()
		log.Error(ctx, "reading best times failed", logger.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordRebuildFailure()
		return Result{}, fmt.Errorf("rebuild cancelled: %w", err)
	}

	n := target.LoadSince(ctx, entries, version)
	res := Result{Players: n, Duration: time.Since(start)}
	metrics.RecordRebuild(res.Duration, res.Players)

	log.Info(ctx, "score index rebuilt",
		logger.Int("players", res.Players),
		logger.Duration("took", res.Duration),
	)
	return res, nil
}

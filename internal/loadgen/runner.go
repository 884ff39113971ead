// Package loadgen drives a running besttime service with concurrent players
// and verifies that the leaderboard it serves agrees with what was submitted.
package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/besttime/pkg/logger"
)

const (
	directoryPermission = 0750
	reportPermission    = 0600
	progressInterval    = time.Second
)

// Run executes the complete load test: health check, sign-in, concurrent
// submissions, then verification of pages and per-player ranks.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting besttime load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("submissions_per_player", cfg.Submissions),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Sign in players
	players := generatePlayers(cfg.Players)
	if err := signInPlayers(ctx, client, cfg.Workers, players); err != nil {
		return stats, err
	}
	stats.PlayersSignedIn = len(players)

	// Step 3: Submit clear times concurrently
	subs := generateSubmissions(ctx, cfg, len(players))
	submit(ctx, client, cfg, players, subs, stats)

	// Step 4: Verify
	withRecord := 0
	for _, p := range players {
		if p.BestMs > 0 {
			withRecord++
		}
	}
	problems := verifyPages(ctx, client, withRecord, stats)
	problems = append(problems, verifyPlayers(ctx, client, players, stats)...)
	stats.Mismatches = len(problems)
	reportProblems(ctx, problems, cfg.Verbose)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.SubmissionsPerSec = float64(stats.Submitted) / secs
	}
	printStats(ctx, stats)

	// Step 5: Save report
	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, cfg, stats, players); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}

	if len(problems) > 0 {
		return stats, fmt.Errorf("%w: %d mismatches", ErrVerification, len(problems))
	}
	return stats, nil
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("base url is required")
	case c.Players < 1:
		return errors.New("players must be at least 1")
	case c.Submissions < 1:
		return errors.New("submissions must be at least 1")
	case c.MinMs < 1 || c.MaxMs < c.MinMs:
		return fmt.Errorf("invalid clear time range [%d, %d]", c.MinMs, c.MaxMs)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return nil
}

func signInPlayers(ctx context.Context, client *HTTPClient, workers int, players []*Player) error {
	jobs := make(chan *Player)
	errs := make(chan error, len(players))
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if err := client.SignIn(ctx, p); err != nil {
					errs <- err
				}
			}
		}()
	}
	for _, p := range players {
		jobs <- p
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return fmt.Errorf("signing in players: %w", err)
	}
	logger.Get().Info(ctx, "players signed in", logger.Int("count", len(players)))
	return nil
}

// submit runs the worker pool. Players' best times are tracked under a
// mutex since several workers may submit for the same player.
func submit(ctx context.Context, client *HTTPClient, cfg *Config, players []*Player, subs []Submission, stats *Stats) {
	log := logger.Get().Named("loadgen")
	var (
		submitted, accepted, rejected, throttled, failed int64
		bestMu                                           sync.Mutex
		wg                                               sync.WaitGroup
		lastReport                                       atomic.Int64
	)

	jobs := make(chan Submission, cfg.Workers*2)
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				if ctx.Err() != nil {
					continue
				}
				p := players[sub.Player]
				status, err := client.Record(ctx, p, sub.ClearTimeMs, sub.Key)
				atomic.AddInt64(&submitted, 1)

				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					log.Debug(ctx, "submission failed", logger.String("player", p.Name), logger.Error(err))
				case status == http.StatusCreated || status == http.StatusOK:
					atomic.AddInt64(&accepted, 1)
					bestMu.Lock()
					if p.BestMs == 0 || sub.ClearTimeMs < p.BestMs {
						p.BestMs = sub.ClearTimeMs
					}
					bestMu.Unlock()
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&throttled, 1)
				case status == http.StatusBadRequest:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
					log.Debug(ctx, "unexpected status", logger.String("player", p.Name), logger.Int("status", status))
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int64("submitted", atomic.LoadInt64(&submitted)),
						logger.Int("total", len(subs)),
						logger.Int64("accepted", atomic.LoadInt64(&accepted)),
						logger.Int64("throttled", atomic.LoadInt64(&throttled)),
						logger.Int64("failed", atomic.LoadInt64(&failed)),
					)
				}
			}
		}()
	}

	for _, sub := range subs {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	stats.Submitted = int(submitted)
	stats.Accepted = int(accepted)
	stats.Rejected = int(rejected)
	stats.Throttled = int(throttled)
	stats.Failed = int(failed)
}

func printStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "load test finished",
		logger.Int("players", stats.PlayersSignedIn),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("throttled", stats.Throttled),
		logger.Int("failed", stats.Failed),
		logger.Int("pages_read", stats.PagesRead),
		logger.Int("ranks_checked", stats.RanksChecked),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissions_per_sec", stats.SubmissionsPerSec),
	)
}

func saveReport(path string, cfg *Config, stats *Stats, players []*Player) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(struct {
		Config  *Config   `json:"config"`
		Stats   *Stats    `json:"stats"`
		Players []*Player `json:"players"`
	}{cfg, stats, players}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return os.WriteFile(path, data, reportPermission)
}

// Package leaderboard orchestrates submissions against the score index:
// it validates clear times, applies improvements, answers rank and page
// queries and decides when live viewers need a fresh snapshot.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/besttime/internal/adapters/repository"
	"github.com/okian/besttime/internal/domain/dedupe"
	"github.com/okian/besttime/internal/domain/masking"
	"github.com/okian/besttime/internal/domain/model"
	"github.com/okian/besttime/internal/domain/types"
	"github.com/okian/besttime/pkg/logger"
	"github.com/okian/besttime/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultFloorMs        = 2000
	defaultWindow         = 10
	defaultResolveTimeout = 200 * time.Millisecond
)

// Directory resolves player ids to display names.
type Directory interface {
	Resolve(ctx context.Context, playerID string) (string, error)
}

// History is the append-only play log.
type History interface {
	Record(ctx context.Context, playerID string, ms int64, at time.Time) error
	LastPlayed(ctx context.Context, playerID string) (time.Time, error)
}

// Profiles is a batch lookup a Directory may also offer. When it does, a
// page of rows costs one round trip instead of two per row.
type Profiles interface {
	Profiles(ctx context.Context, ids []string) (map[string]model.Profile, error)
}

// Broadcasts accepts broadcast jobs without blocking.
type Broadcasts interface {
	Enqueue(ctx context.Context, job model.BroadcastJob) bool
}

// SubmitResult is the outcome of an accepted submission.
// Rank is the player's current rank, which reflects the best time so far
// and not necessarily this submission.
type SubmitResult struct {
	Accepted  bool
	Rank      int
	BestMs    int64
	Improved  bool
	Duplicate bool
}

// Service is the leaderboard engine. It owns no ranking state itself; the
// index is injected so tests can run against a small in-memory instance.
type Service struct {
	index      repository.Store
	directory  Directory
	history    History
	broadcasts Broadcasts
	dedupe     dedupe.Deduper

	floorMs        int64
	window         int
	resolveTimeout time.Duration
	hiddenMessages []string

	now    func() time.Time
	logger logger.Logger
}

// NewService creates a leaderboard service over index.
func NewService(index repository.Store, opts ...Option) *Service {
	s := &Service{
		index:          index,
		directory:      noDirectory{},
		history:        noHistory{},
		broadcasts:     noBroadcasts{},
		floorMs:        defaultFloorMs,
		window:         defaultWindow,
		resolveTimeout: defaultResolveTimeout,
		now:            time.Now,
		logger:         logger.Get().Named("leaderboard"),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates ms and applies it to the index. Times below the floor
// fail with ErrInvalidInput and change nothing. Once validation passes the
// mutation runs detached from ctx cancellation so it is never half applied.
func (s *Service) Submit(ctx context.Context, playerID string, ms int64) (SubmitResult, error) {
	if err := s.validate(ctx, playerID, ms); err != nil {
		return SubmitResult{}, err
	}
	return s.apply(context.WithoutCancel(ctx), playerID, ms)
}

func (s *Service) validate(ctx context.Context, playerID string, ms int64) error {
	if playerID == "" {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return fmt.Errorf("%w: missing player id", ErrInvalidInput)
	}
	if ms < s.floorMs {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		s.logger.Warn(ctx, "clear time below plausibility floor",
			logger.String("player_id", playerID),
			logger.Int64("clear_time_ms", ms),
			logger.Int64("floor_ms", s.floorMs),
		)
		return fmt.Errorf("%w: clear time %dms is below the %dms floor", ErrInvalidInput, ms, s.floorMs)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, playerID string, ms int64) (SubmitResult, error) {

	// The index is authoritative for ranking; a lost history row only
	// weakens the next rebuild, so it must not fail the submission.
	if err := s.history.Record(ctx, playerID, ms, s.now()); err != nil {
		metrics.RecordErrorByComponent("leaderboard", "history_record")
		s.logger.Warn(ctx, "history record failed",
			logger.String("player_id", playerID),
			logger.Error(err),
		)
	}

	changed, err := s.index.UpsertIfBetter(ctx, playerID, ms)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("updating index: %w", err)
	}
	rank, err := s.index.RankOf(ctx, playerID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reading rank: %w", err)
	}
	best, err := s.index.ScoreOf(ctx, playerID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reading best time: %w", err)
	}

	if changed {
		metrics.RecordSubmission(metrics.OutcomeImproved)
	} else {
		metrics.RecordSubmission(metrics.OutcomeAccepted)
	}

	if changed && rank <= s.window {
		s.enqueueBroadcast(ctx, model.BroadcastJob{
			Reason:      model.ReasonImprovement,
			TriggeredBy: playerID,
			Rank:        rank,
			EnqueuedAt:  s.now(),
		})
	}

	return SubmitResult{Accepted: true, Rank: rank, BestMs: best, Improved: changed}, nil
}

// SubmitOnce is Submit guarded by a per-player idempotency key. A repeated
// key returns the player's current standing without recording anything;
// an implausible time is rejected whether or not its key was seen.
// An empty key behaves like Submit.
func (s *Service) SubmitOnce(ctx context.Context, playerID string, ms int64, key string) (SubmitResult, error) {
	if key == "" || s.dedupe == nil {
		return s.Submit(ctx, playerID, ms)
	}
	if err := s.validate(ctx, playerID, ms); err != nil {
		return SubmitResult{}, err
	}

	scoped := playerID + ":" + key
	if s.dedupe.SeenAndRecord(ctx, scoped) {
		metrics.RecordSubmission(metrics.OutcomeDuplicate)
		res := SubmitResult{Accepted: true, Duplicate: true}
		if rank, err := s.index.RankOf(ctx, playerID); err == nil {
			res.Rank = rank
			res.BestMs, _ = s.index.ScoreOf(ctx, playerID)
		}
		return res, nil
	}

	res, err := s.apply(context.WithoutCancel(ctx), playerID, ms)
	if err != nil {
		// Let the client retry the same key after fixing the request.
		s.dedupe.Unrecord(ctx, scoped)
	}
	return res, err
}

// MyRank returns the player's rank and formatted best time, or
// {0, "0.00"} when the player has no record yet.
func (s *Service) MyRank(ctx context.Context, playerID string) types.MyRank {
	rank, err := s.index.RankOf(ctx, playerID)
	if err != nil {
		return types.MyRank{Rank: 0, Record: NoRecord}
	}
	ms, err := s.index.ScoreOf(ctx, playerID)
	if err != nil {
		return types.MyRank{Rank: 0, Record: NoRecord}
	}
	return types.MyRank{Rank: rank, Record: FormatRecord(ms)}
}

// Page returns count rows starting at the 0-based offset and the current
// number of ranked players. Rows carry masked names and no player ids.
func (s *Service) Page(ctx context.Context, offset, count int) (types.Page, error) {
	if offset < 0 || count < 1 {
		return types.Page{}, fmt.Errorf("%w: offset must be >= 0 and count >= 1", ErrInvalidInput)
	}
	entries, err := s.index.Top(ctx, offset, count)
	if err != nil {
		return types.Page{}, fmt.Errorf("reading page: %w", err)
	}
	return types.Page{
		Items: s.render(ctx, entries, false),
		Total: s.index.Size(ctx),
	}, nil
}

// Snapshot returns the top k rows with player ids, as sent to live viewers.
func (s *Service) Snapshot(ctx context.Context, k int) ([]types.RankingRow, error) {
	if k < 1 {
		k = s.window
	}
	entries, err := s.index.Top(ctx, 0, k)
	if err != nil {
		return nil, fmt.Errorf("reading top %d: %w", k, err)
	}
	return s.render(ctx, entries, true), nil
}

// HiddenUnlockCheck reports whether playerID holds rank 1 right now.
func (s *Service) HiddenUnlockCheck(ctx context.Context, playerID string) bool {
	rank, err := s.index.RankOf(ctx, playerID)
	return err == nil && rank == 1
}

// HiddenMessages returns the configured messages for the rank-1 player
// and ErrLocked for everyone else.
func (s *Service) HiddenMessages(ctx context.Context, playerID string) ([]string, error) {
	if !s.HiddenUnlockCheck(ctx, playerID) {
		return nil, ErrLocked
	}
	return append([]string{}, s.hiddenMessages...), nil
}

// NotifyRebuilt asks live viewers to refresh after the index was reloaded.
func (s *Service) NotifyRebuilt(ctx context.Context) {
	s.enqueueBroadcast(ctx, model.BroadcastJob{Reason: model.ReasonRebuild, EnqueuedAt: s.now()})
}

func (s *Service) enqueueBroadcast(ctx context.Context, job model.BroadcastJob) {
	if s.broadcasts.Enqueue(ctx, job) {
		return
	}
	metrics.RecordBroadcastDropped()
	s.logger.Warn(ctx, "broadcast queue full, dropping job",
		logger.String("reason", job.Reason),
		logger.String("triggered_by", job.TriggeredBy),
		logger.Int("rank", job.Rank),
	)
}

// render resolves names and play dates for entries. Lookups share one
// deadline; anything not resolved in time degrades to a placeholder name
// or an empty date rather than failing the read.
func (s *Service) render(ctx context.Context, entries []repository.Entry, withID bool) []types.RankingRow {
	rows := make([]types.RankingRow, 0, len(entries))
	if len(entries) == 0 {
		return rows
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()

	profiles := s.lookupProfiles(lookupCtx, entries)
	for _, e := range entries {
		p, ok := profiles[e.PlayerID]
		if !ok {
			p = s.lookupProfile(lookupCtx, e.PlayerID)
		}
		row := types.RankingRow{
			Rank:   e.Rank,
			Name:   masking.Mask(p.Name),
			Record: FormatRecord(e.BestMs),
			Date:   FormatDate(p.LastPlayed),
		}
		if withID {
			row.PlayerID = e.PlayerID
		}
		rows = append(rows, row)
	}
	return rows
}

// lookupProfiles reads all entries in one call when the directory batches.
// Players it does not return are looked up one by one.
func (s *Service) lookupProfiles(ctx context.Context, entries []repository.Entry) map[string]model.Profile {
	batch, ok := s.directory.(Profiles)
	if !ok {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}
	profiles, err := batch.Profiles(ctx, ids)
	if err != nil {
		metrics.RecordErrorByComponent("leaderboard", "profiles")
		s.logger.Warn(ctx, "batch profile lookup failed", logger.Int("players", len(ids)), logger.Error(err))
		return nil
	}
	for id, p := range profiles {
		if p.Name == "" {
			delete(profiles, id)
		}
	}
	return profiles
}

func (s *Service) lookupProfile(ctx context.Context, playerID string) model.Profile {
	p := model.Profile{Name: s.resolveName(ctx, playerID)}
	if at, err := s.history.LastPlayed(ctx, playerID); err == nil {
		p.LastPlayed = at
	}
	return p
}

func (s *Service) resolveName(ctx context.Context, playerID string) string {
	name, err := s.directory.Resolve(ctx, playerID)
	if err == nil && name != "" {
		return name
	}
	metrics.RecordNameResolutionFallback()
	s.logger.Warn(ctx, "name resolution failed, using placeholder",
		logger.String("player_id", playerID),
		logger.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
		logger.Error(err),
	)
	return UnknownName
}

type noDirectory struct{}

func (noDirectory) Resolve(context.Context, string) (string, error) {
	return "", errors.New("no directory configured")
}

type noHistory struct{}

func (noHistory) Record(context.Context, string, int64, time.Time) error { return nil }
func (noHistory) LastPlayed(context.Context, string) (time.Time, error) {
	return time.Time{}, errors.New("no history configured")
}

type noBroadcasts struct{}

func (noBroadcasts) Enqueue(context.Context, model.BroadcastJob) bool { return true }

// Package service assembles the leaderboard engine, its collaborators and
// the HTTP surface into one runnable unit.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/besttime/internal/adapters/auth"
	"github.com/okian/besttime/internal/adapters/http/api"
	"github.com/okian/besttime/internal/adapters/http/live"
	"github.com/okian/besttime/internal/adapters/http/swagger"
	"github.com/okian/besttime/internal/adapters/mq/queue"
	"github.com/okian/besttime/internal/adapters/mq/worker"
	"github.com/okian/besttime/internal/adapters/pubsub"
	"github.com/okian/besttime/internal/adapters/repository"
	"github.com/okian/besttime/internal/adapters/storage"
	"github.com/okian/besttime/internal/config"
	"github.com/okian/besttime/internal/domain/dedupe"
	"github.com/okian/besttime/internal/domain/leaderboard"
	"github.com/okian/besttime/internal/domain/rebuild"
	"github.com/okian/besttime/pkg/logger"
	"github.com/okian/besttime/pkg/metrics"
)

// LiveRoute is where websocket clients connect for ranking snapshots.
const LiveRoute = "/socket/ranking"

const dispatcherShutdownTimeout = 5 * time.Second

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service owns every long-lived component.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	store      *storage.Store
	index      *repository.TreapStore
	queue      *queue.InMemoryQueue
	transport  pubsub.Transport
	dispatcher *worker.Dispatcher
	hub        *live.Hub
	board      *leaderboard.Service
	tokens     *auth.Service
	deduper    dedupe.Deduper

	// injected transport is owned by the caller
	ownsTransport bool

	started     bool
	startedAt   time.Time
	lastRebuild rebuild.Result
	rebuiltAt   time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTransport uses t for broadcasts instead of building one from config.
// The caller keeps ownership and closes it.
func WithTransport(t pubsub.Transport) Option {
	return func(s *Service) {
		s.transport = t
	}
}

// New constructs a Service from cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage, builds the index and starts the broadcast pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting besttime service...")

	store, err := storage.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	s.store = store

	if s.transport == nil {
		t, err := newTransport(cfg)
		if err != nil {
			_ = store.Close()
			return err
		}
		s.transport = t
		s.ownsTransport = true
	}

	s.index = repository.NewTreapStore(ctx)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.BroadcastQueueSize))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.tokens = auth.NewService(cfg.JWTSecret, cfg.TokenTTL())

	s.board = leaderboard.NewService(s.index,
		leaderboard.WithDirectory(store),
		leaderboard.WithHistory(store),
		leaderboard.WithBroadcasts(s.queue),
		leaderboard.WithDeduper(s.deduper),
		leaderboard.WithMinClearTime(cfg.MinClearTimeMS),
		leaderboard.WithBroadcastWindow(cfg.BroadcastWindow),
		leaderboard.WithNameResolveTimeout(cfg.NameResolveTimeout()),
		leaderboard.WithHiddenMessages(cfg.HiddenMessages),
	)

	if cfg.RebuildOnStart {
		res, err := rebuild.Run(ctx, store, s.index)
		if err != nil {
			s.abortStart()
			return fmt.Errorf("initial rebuild: %w", err)
		}
		s.lastRebuild, s.rebuiltAt = res, time.Now()
	}

	s.hub = live.NewHub(s.transport,
		live.WithChannel(cfg.RankingChannel),
		live.WithSnapshotSource(s.board, cfg.BroadcastWindow),
		live.WithAllowedOrigins(cfg.CORSOrigins),
	)
	if err := s.hub.Start(ctx); err != nil {
		s.abortStart()
		return fmt.Errorf("starting live hub: %w", err)
	}

	s.dispatcher = worker.NewDispatcher(s.queue, s.board, s.transport,
		worker.WithChannel(cfg.RankingChannel),
		worker.WithWindow(cfg.BroadcastWindow),
	)
	go s.dispatcher.Run(context.WithoutCancel(ctx))

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "besttime service started",
		logger.Int("players", s.index.Size(ctx)),
		logger.String("transport", cfg.Transport),
		logger.String("database", cfg.DatabasePath),
		logger.Int("broadcast_window", cfg.BroadcastWindow),
	)
	return nil
}

func newTransport(cfg *config.Config) (pubsub.Transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		t, err := pubsub.NewNATS(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connecting transport: %w", err)
		}
		return t, nil
	default:
		return pubsub.NewMemory(), nil
	}
}

// abortStart releases what Start opened so far. Callers hold s.mu.
func (s *Service) abortStart() {
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.index != nil {
		_ = s.index.Close()
	}
	if s.ownsTransport && s.transport != nil {
		_ = s.transport.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// Stop drains the broadcast pipeline and closes every component.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping besttime service...")

	// Closing the queue lets the dispatcher publish what is left and exit.
	_ = s.queue.Close()
	select {
	case <-s.dispatcher.Done():
	case <-time.After(dispatcherShutdownTimeout):
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := s.dispatcher.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "dispatcher did not drain in time", logger.Error(err))
		}
		cancel()
	}

	s.hub.Stop()
	if s.ownsTransport {
		if err := s.transport.Close(); err != nil {
			s.logger.Warn(ctx, "closing transport", logger.Error(err))
		}
	}
	_ = s.index.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing storage", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "besttime service stopped")
}

// Rebuild reloads the index from play history and refreshes live viewers.
func (s *Service) Rebuild(ctx context.Context) (rebuild.Result, error) {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return rebuild.Result{}, ErrNotStarted
	}
	store, index, board := s.store, s.index, s.board
	s.mu.RUnlock()

	res, err := rebuild.Run(ctx, store, index)
	if err != nil {
		return rebuild.Result{}, err
	}
	board.NotifyRebuilt(ctx)

	s.mu.Lock()
	s.lastRebuild, s.rebuiltAt = res, time.Now()
	s.mu.Unlock()
	return res, nil
}

// Leaderboard exposes the engine, mainly for tests and tooling.
func (s *Service) Leaderboard() *leaderboard.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board
}

// Handler returns the complete HTTP surface. Start must have succeeded.
func (s *Service) Handler() (http.Handler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}

	cfg := s.cfg
	server := api.NewServer(api.Dependencies{
		Leaderboard: s.board,
		Players:     s.store,
		Tokens:      s.tokens,
		Rebuilder:   s,
		Stats:       s,
		Health:      s.store,
	},
		api.WithMaxPageLimit(cfg.MaxPageLimit),
		api.WithAdminToken(cfg.AdminToken),
		api.WithSubmitRate(cfg.SubmitRatePerSec, cfg.SubmitBurst),
		api.WithCORSOrigins(cfg.CORSOrigins),
	)

	mux := http.NewServeMux()
	server.Register(mux)
	swagger.Register(mux)
	mux.Handle("GET "+LiveRoute, s.hub)
	return server.Handler(mux), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"transport":        s.cfg.Transport,
		"broadcastWindow":  s.cfg.BroadcastWindow,
		"minClearTimeMs":   s.cfg.MinClearTimeMS,
		"queueCapacity":    s.cfg.BroadcastQueueSize,
		"dedupeCapacity":   s.cfg.DedupeSize,
		"rebuildOnStart":   s.cfg.RebuildOnStart,
		"lastRebuildCount": s.lastRebuild.Players,
	}

	if s.started {
		ctx := context.Background()
		players := s.index.Size(ctx)
		queueLen := s.queue.Len(ctx)

		stats["players"] = players
		stats["queueLength"] = queueLen
		stats["dedupeKeys"] = s.deduper.Size()
		stats["liveClients"] = s.hub.Clients()
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		if !s.rebuiltAt.IsZero() {
			stats["lastRebuildAt"] = s.rebuiltAt.UTC().Format(time.RFC3339)
			stats["lastRebuildMs"] = s.lastRebuild.Duration.Milliseconds()
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateIndexSize(players)
	}

	return stats
}

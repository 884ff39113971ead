// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/besttime/internal/adapters/auth"
	"github.com/okian/besttime/internal/domain/leaderboard"
	"github.com/okian/besttime/internal/domain/model"
	"github.com/okian/besttime/internal/domain/rebuild"
	"github.com/okian/besttime/internal/domain/types"
	"github.com/okian/besttime/pkg/logger"
)

// Prefix is the versioned path every business route lives under.
const Prefix = "/api/v1"

// Leaderboard is the engine surface the handlers read and write.
type Leaderboard interface {
	SubmitOnce(ctx context.Context, playerID string, ms int64, key string) (leaderboard.SubmitResult, error)
	MyRank(ctx context.Context, playerID string) types.MyRank
	Page(ctx context.Context, offset, count int) (types.Page, error)
	HiddenMessages(ctx context.Context, playerID string) ([]string, error)
}

// Players signs players in, creating them on first use.
type Players interface {
	SignIn(ctx context.Context, name, phone string) (model.Player, bool, error)
}

// Tokens issues and checks bearer tokens.
type Tokens interface {
	Issue(playerID, name string) (string, time.Time, error)
	Validate(token string) (*auth.Claims, error)
}

// Rebuilder reloads the score index from history.
type Rebuilder interface {
	Rebuild(ctx context.Context) (rebuild.Result, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies required by HTTP handlers. Stats and Health may be nil.
type Dependencies struct {
	Leaderboard Leaderboard
	Players     Players
	Tokens      Tokens
	Rebuilder   Rebuilder
	Stats       StatsProvider
	Health      Pinger
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps Dependencies

	maxPageLimit int
	adminToken   string
	corsOrigins  []string
	throttle     *throttle

	healthHandler *HealthHandler
	statsHandler  *StatsHandler

	logger logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		maxPageLimit: defaultMaxPageLimit,
		logger:       logger.Get().Named("http"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.throttle == nil {
		s.throttle = newThrottle(defaultSubmitRate, defaultSubmitBurst)
	}
	s.healthHandler = NewHealthHandler(deps.Health)
	s.statsHandler = NewStatsHandler(deps.Stats)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleMetrics, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST "+Prefix+"/auth/signin", MetricsMiddleware(s.handleSignIn, "signin"))
	mux.HandleFunc("POST "+Prefix+"/games/record", MetricsMiddleware(s.requireAuth(s.handleRecord), "record"))
	mux.HandleFunc("GET "+Prefix+"/games/hidden-message", MetricsMiddleware(s.requireAuth(s.handleHiddenMessage), "hidden_message"))
	mux.HandleFunc("GET "+Prefix+"/ranks/my", MetricsMiddleware(s.requireAuth(s.handleMyRank), "my_rank"))
	mux.HandleFunc("GET "+Prefix+"/ranks", MetricsMiddleware(s.handlePage, "ranks"))
	mux.HandleFunc("POST "+Prefix+"/admin/rebuild", MetricsMiddleware(s.handleRebuild, "rebuild"))
}

// Handler wraps h with the cross-cutting middleware: CORS and request logging.
func (s *Server) Handler(h http.Handler) http.Handler {
	return CORSMiddleware(LoggingMiddleware(h, s.logger), s.corsOrigins)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail classifies err and writes it. Server errors are logged since their
// message never reaches the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

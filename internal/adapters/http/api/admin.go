package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/okian/besttime/pkg/logger"
)

// AdminTokenHeader carries the shared admin secret.
const AdminTokenHeader = "X-Admin-Token"

type rebuildResponse struct {
	Players    int   `json:"players"`
	DurationMs int64 `json:"duration_ms"`
}

// handleRebuild handles POST /api/v1/admin/rebuild. The route is reported as
// missing while no admin token is configured.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.rebuild"
	if s.adminToken == "" || s.deps.Rebuilder == nil {
		s.fail(w, r, NewKind(op, ErrNotFound))
		return
	}
	got := r.Header.Get(AdminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
		s.fail(w, r, NewKind(op, ErrForbidden))
		return
	}

	res, err := s.deps.Rebuilder.Rebuild(r.Context())
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrUnavailable, err))
		return
	}
	s.logger.Info(r.Context(), "rebuild triggered by admin",
		logger.Int("players", res.Players),
		logger.Duration("took", res.Duration),
	)
	writeJSON(w, http.StatusOK, rebuildResponse{Players: res.Players, DurationMs: res.Duration.Milliseconds()})
}

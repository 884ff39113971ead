package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/besttime/internal/adapters/auth"
)

// handleMyRank handles GET /api/v1/ranks/my.
func (s *Server) handleMyRank(w http.ResponseWriter, r *http.Request) {
	playerID, _ := auth.PlayerID(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Leaderboard.MyRank(r.Context(), playerID))
}

// handlePage handles GET /api/v1/ranks?offset=0&limit=10.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	const op = "api.ranks"
	q := r.URL.Query()

	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errors.New("offset must be a non-negative integer")))
		return
	}
	limit, err := queryInt(q.Get("limit"), defaultPageLimit)
	if err != nil || limit < 1 {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
		return
	}
	if limit > s.maxPageLimit {
		limit = s.maxPageLimit
	}

	page, err := s.deps.Leaderboard.Page(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

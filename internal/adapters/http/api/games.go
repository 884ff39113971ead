package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/besttime/internal/adapters/auth"
	"github.com/okian/besttime/internal/domain/leaderboard"
	"github.com/okian/besttime/pkg/metrics"
)

// IdempotencyKeyHeader lets clients retry a submission safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// recordRequest mirrors the OpenAPI schema for POST /games/record.
type recordRequest struct {
	ClearTimeMs *int64 `json:"clearTimeMs"`
}

type recordResponse struct {
	Success   bool   `json:"success"`
	Rank      int    `json:"rank"`
	Record    string `json:"record"`
	Improved  bool   `json:"improved"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type hiddenMessageResponse struct {
	Messages []string `json:"messages"`
}

// handleRecord handles POST /api/v1/games/record.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.record"
	playerID, _ := auth.PlayerID(r.Context())

	if !s.throttle.allow(playerID) {
		metrics.RecordSubmission(metrics.OutcomeThrottled)
		s.fail(w, r, NewKind(op, ErrThrottled))
		return
	}

	var req recordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.ClearTimeMs == nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errors.New("missing clearTimeMs")))
		return
	}

	res, err := s.deps.Leaderboard.SubmitOnce(r.Context(), playerID, *req.ClearTimeMs, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, recordResponse{
		Success:   res.Accepted,
		Rank:      res.Rank,
		Record:    leaderboard.FormatRecord(res.BestMs),
		Improved:  res.Improved,
		Duplicate: res.Duplicate,
	})
}

// handleHiddenMessage handles GET /api/v1/games/hidden-message; only the
// current rank-1 player gets an answer.
func (s *Server) handleHiddenMessage(w http.ResponseWriter, r *http.Request) {
	const op = "api.hidden_message"
	playerID, _ := auth.PlayerID(r.Context())

	msgs, err := s.deps.Leaderboard.HiddenMessages(r.Context(), playerID)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, hiddenMessageResponse{Messages: msgs})
}

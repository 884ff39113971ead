package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/okian/besttime/pkg/logger"
)

// signInRequest mirrors the OpenAPI schema for POST /auth/signin.
type signInRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type signInResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

// handleSignIn handles POST /api/v1/auth/signin. The phone number is the
// identity; the first sign-in creates the player.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	const op = "api.signin"
	var req signInRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		s.fail(w, r, NewKind(op, ErrBadRequest))
		return
	}

	player, created, err := s.deps.Players.SignIn(r.Context(), req.Name, req.Phone)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	token, exp, err := s.deps.Tokens.Issue(player.ID, player.Name)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if created {
		s.logger.Info(r.Context(), "player registered", logger.String("player_id", player.ID))
	}

	writeJSON(w, http.StatusOK, signInResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp.UTC(),
		User: userResponse{
			ID:        player.ID,
			Name:      player.Name,
			CreatedAt: player.CreatedAt.UTC(),
		},
	})
}

package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/besttime/pkg/logger"
)

// generatePlayers creates players with unique phone numbers so repeated runs
// against the same database never collide.
func generatePlayers(n int) []*Player {
	run := uuid.New().String()[:8]
	players := make([]*Player, n)
	for i := range players {
		players[i] = &Player{
			Name:  fmt.Sprintf("load-%s-%d", run, i),
			Phone: fmt.Sprintf("%s-%06d", run, i),
		}
	}
	return players
}

// generateSubmissions creates cfg.Submissions clear times per player,
// interleaved so consecutive jobs belong to different players.
func generateSubmissions(ctx context.Context, cfg *Config, players int) []Submission {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	span := cfg.MaxMs - cfg.MinMs + 1

	out := make([]Submission, 0, players*cfg.Submissions)
	for round := 0; round < cfg.Submissions; round++ {
		for p := 0; p < players; p++ {
			out = append(out, Submission{
				Player:      p,
				ClearTimeMs: cfg.MinMs + rng.Int64N(span),
				Key:         uuid.New().String(),
			})
		}
	}

	logger.Get().Info(ctx, "generated submissions",
		logger.Int("count", len(out)),
		logger.Int64("min_ms", cfg.MinMs),
		logger.Int64("max_ms", cfg.MaxMs),
	)
	return out
}

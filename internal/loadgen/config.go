package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Players     int           // Number of players to sign in
	Submissions int           // Clear times submitted per player
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	MinMs       int64         // Fastest generated clear time
	MaxMs       int64         // Slowest generated clear time
	Seed        uint64        // Generator seed; 0 picks a random one
	OutputFile  string        // Optional JSON report path
	Verbose     bool          // Log every verification mismatch
}

// Player is a signed-in load player and the best time it has submitted.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Token  string `json:"-"`
	BestMs int64  `json:"best_ms"`
}

// Submission is one generated clear time.
type Submission struct {
	Player      int    `json:"player"`
	ClearTimeMs int64  `json:"clear_time_ms"`
	Key         string `json:"idempotency_key"`
}

// Stats holds run statistics.
type Stats struct {
	PlayersSignedIn   int           `json:"players_signed_in"`
	Submitted         int           `json:"submitted"`
	Accepted          int           `json:"accepted"`
	Rejected          int           `json:"rejected"`
	Throttled         int           `json:"throttled"`
	Failed            int           `json:"failed"`
	PagesRead         int           `json:"pages_read"`
	RanksChecked      int           `json:"ranks_checked"`
	Mismatches        int           `json:"mismatches"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Duration          time.Duration `json:"duration"`
	SubmissionsPerSec float64       `json:"submissions_per_sec"`
}

package leaderboard

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrInvalidInput = errors.New("invalid record")
	ErrLocked       = errors.New("hidden message locked")
)

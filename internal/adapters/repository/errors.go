package repository

import "errors"

// Sentinel kinds for score index errors.
var (
	ErrNotFound        = errors.New("player not ranked")
	ErrInvalidScore    = errors.New("invalid clear time")
	ErrInvalidPlayerID = errors.New("invalid player id")
)

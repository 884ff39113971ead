package live

import "errors"

// Sentinel kinds for live hub errors.
var (
	ErrAlreadyStarted = errors.New("live hub already started")
	ErrSubscribe      = errors.New("live hub subscribe failed")
)

package pubsub

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrClosed  = errors.New("transport closed")
	ErrConnect = errors.New("transport connect failed")
)

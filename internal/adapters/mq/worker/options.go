package worker

import (
	"time"

	"github.com/okian/besttime/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithName sets the dispatcher name for identification and logging.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.name = name
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithChannel sets the channel snapshots are published on.
func WithChannel(channel string) Option {
	return func(d *Dispatcher) {
		if channel != "" {
			d.channel = channel
		}
	}
}

// WithWindow sets K, the number of top rows in each snapshot.
func WithWindow(k int) Option {
	return func(d *Dispatcher) {
		if k > 0 {
			d.window = k
		}
	}
}

// WithPublishTimeout bounds a single publish call.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.publishTimeout = timeout
		}
	}
}

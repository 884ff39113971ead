package pubsub

import "github.com/okian/besttime/pkg/logger"

// Option applies a configuration option to a Transport.
type Option func(*options)

type options struct {
	outputBuffer int
	logger       logger.Logger
	clientName   string
}

func defaultOptions() options {
	return options{
		outputBuffer: 256,
		clientName:   "besttime",
	}
}

// WithOutputBuffer sets the per-subscription buffer of undelivered payloads.
func WithOutputBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outputBuffer = n
		}
	}
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClientName names the NATS connection.
func WithClientName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.clientName = name
		}
	}
}

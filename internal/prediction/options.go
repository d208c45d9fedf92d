package prediction

import "github.com/okian/tapsense/pkg/logger"

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger for the coordinator.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithErrorSink receives feed and decode errors instead of the default log sink.
func WithErrorSink(sink func(error)) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.onError = sink
		}
	}
}

package eventbus

import "github.com/okian/tapsense/pkg/logger"

// Option configures a Bus.
type Option func(*Bus)

// WithChannels pre-seeds the channel table.
func WithChannels(names ...string) Option {
	return func(b *Bus) {
		for _, name := range names {
			if name != "" {
				b.ensureLocked(name)
			}
		}
	}
}

// WithLogger sets a custom logger for the bus.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

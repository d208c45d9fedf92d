package service

import (
	"time"

	"github.com/okian/tapsense/internal/adapters/device"
	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/eventbus"
	"github.com/okian/tapsense/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the store facade. The service closes it on Stop when it
// implements io.Closer.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithBus sets the event bus shared with downstream consumers.
func WithBus(b *eventbus.Bus) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithProvider sets the device provider sampled by the service.
func WithProvider(p device.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithSession sets the session id. A random one is generated when empty.
func WithSession(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.session = id
		}
	}
}

// WithStrategy selects the upload strategy by name: batch or release.
func WithStrategy(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.strategyName = name
		}
	}
}

// WithThreshold sets the batch flush threshold.
func WithThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithAlsoWriteSingles writes each sample individually before its batch.
func WithAlsoWriteSingles(enabled bool) Option {
	return func(s *Service) { s.alsoWriteSingles = enabled }
}

// WithFlushResidueOnClose uploads the short tail of a batch window on release.
func WithFlushResidueOnClose(enabled bool) Option {
	return func(s *Service) { s.flushResidue = enabled }
}

// WithPredictionTimeout bounds the wait for a classification.
func WithPredictionTimeout(d time.Duration) Option {
	return func(s *Service) { s.predictionTimeout = d }
}

// WithWriteTimeout bounds a single flush write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithTickInterval sets the grip polling period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithSampleRate sets the controller sampling rate in Hz.
func WithSampleRate(hz int) Option {
	return func(s *Service) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// WithQueueSize sets the capacity of the sample queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithBackgroundLoops controls whether Start spawns the sampler and tick
// goroutines. Without them the caller drives Tick.
func WithBackgroundLoops(enabled bool) Option {
	return func(s *Service) { s.loops = enabled }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

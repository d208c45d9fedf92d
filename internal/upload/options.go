package upload

import (
	"time"

	"github.com/okian/tapsense/pkg/logger"
)

// Defaults shared by both strategies.
const (
	DefaultThreshold         = 100
	DefaultPredictionTimeout = 50 * time.Millisecond
	DefaultWriteTimeout      = 5 * time.Second
)

// FlushResult describes a completed flush.
type FlushResult struct {
	Strategy string
	Samples  int
	Batches  int
	Sent     int
	Duration time.Duration
	Err      error
}

type options struct {
	logger            logger.Logger
	alsoWriteSingles  bool
	writeTimeout      time.Duration
	threshold         int
	flushResidue      bool
	predictionTimeout time.Duration
	onFlush           func(FlushResult)
}

func defaultOptions() options {
	return options{
		writeTimeout:      DefaultWriteTimeout,
		threshold:         DefaultThreshold,
		predictionTimeout: DefaultPredictionTimeout,
	}
}

// Option configures a strategy.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAlsoWriteSingles writes each sample individually before its batch.
func WithAlsoWriteSingles(enabled bool) Option {
	return func(o *options) { o.alsoWriteSingles = enabled }
}

// WithWriteTimeout bounds the store writes of one flush.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithThreshold sets the batch size of the batch strategy.
func WithThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// WithFlushResidueOnClose makes the batch strategy upload the tail of a
// window as a short batch instead of discarding it.
func WithFlushResidueOnClose(enabled bool) Option {
	return func(o *options) { o.flushResidue = enabled }
}

// WithPredictionTimeout sets how long the release strategy waits for a
// prediction before publishing a synthetic no-tap. Non-positive values are
// floored to one millisecond when the wait starts.
func WithPredictionTimeout(d time.Duration) Option {
	return func(o *options) { o.predictionTimeout = d }
}

// WithOnFlush registers an observer called after every flush completes.
func WithOnFlush(fn func(FlushResult)) Option {
	return func(o *options) { o.onFlush = fn }
}

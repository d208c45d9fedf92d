// Package store defines the remote store facade used by the telemetry pipeline
// and an in-process implementation of it.
package store

import (
	"context"

	"github.com/okian/tapsense/internal/domain/model"
)

// Subscription is a cancellable realtime feed. Close is idempotent.
type Subscription interface {
	Close() error
}

// Writer accepts flushed telemetry.
type Writer interface {
	// WriteSample stores one sample under {root}/{session}/samples/{autoKey}.
	WriteSample(ctx context.Context, session string, s model.Sample) error
	// WriteBatch stores one batch under {root}/{session}/batches/{timestampMs}.
	WriteBatch(ctx context.Context, session string, b model.Batch) error
}

// Reader serves recent history.
type Reader interface {
	// ReadRecent returns at most limit samples, ascending by timestamp.
	// A limit below 1 is treated as 1.
	ReadRecent(ctx context.Context, session string, limit int) ([]model.Sample, error)
}

// SampleFeed streams samples written to a session.
type SampleFeed interface {
	// SubscribeNewSamples delivers every existing sample once, then live appends.
	SubscribeNewSamples(ctx context.Context, session string, onSample func(model.Sample), onError func(error)) (Subscription, error)
}

// PredictionFeed streams overwrites of the latest-prediction record.
type PredictionFeed interface {
	// SubscribeLatestPrediction delivers the raw JSON of each overwrite.
	// The current value, if any, is replayed on attach.
	SubscribeLatestPrediction(ctx context.Context, onPrediction func(raw []byte), onError func(error)) (Subscription, error)
}

// Store is the full facade consumed by the pipeline.
type Store interface {
	Writer
	Reader
	SampleFeed
	PredictionFeed
}

// Readiness is implemented by stores that connect asynchronously.
type Readiness interface {
	Ready() bool
	// OnReady registers fn to run once the store is ready; it runs immediately
	// when the store is already ready.
	OnReady(fn func())
}

// NopSubscription is returned for feeds requested before the backend is ready.
type NopSubscription struct{}

// Close implements Subscription.
func (NopSubscription) Close() error { return nil }

// ClampLimit applies the "at least one" rule to recent-history reads.
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

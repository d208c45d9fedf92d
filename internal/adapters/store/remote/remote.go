// Package remote composes the durable store and the realtime feed into the
// store facade used by the pipeline.
//
// The facade is not ready until both backends are reachable. Until then every
// operation is a logged no-op, so a tick never fails on a slow connect.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/logger"
)

// Durable is the history backend.
type Durable interface {
	store.Writer
	store.Reader
	Ping(ctx context.Context) error
	Close() error
}

// Realtime is the feed backend.
type Realtime interface {
	store.SampleFeed
	store.PredictionFeed
	Connect(ctx context.Context) error
	PublishSample(ctx context.Context, session, key string, s model.Sample) error
	PublishPrediction(ctx context.Context, raw []byte) error
	Close() error
}

// DefaultRetryInterval is the delay between connect attempts.
const DefaultRetryInterval = 2 * time.Second

// Store is the remote facade.
type Store struct {
	durable  Durable
	realtime Realtime
	retry    time.Duration
	logger   logger.Logger

	mu    sync.Mutex
	ready bool
	hooks []func()
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetryInterval sets the delay between connect attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retry = d
		}
	}
}

// New creates a facade over durable and realtime.
func New(durable Durable, realtime Realtime, opts ...Option) *Store {
	s := &Store{
		durable:  durable,
		realtime: realtime,
		retry:    DefaultRetryInterval,
		logger:   logger.Get().Named("store.remote"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect makes one attempt to reach both backends and marks the store ready
// on success.
func (s *Store) Connect(ctx context.Context) error {
	if s.Ready() {
		return nil
	}
	if err := s.durable.Ping(ctx); err != nil {
		return fmt.Errorf("%w: durable: %w", store.ErrNotReady, err)
	}
	if err := s.realtime.Connect(ctx); err != nil {
		return fmt.Errorf("%w: realtime: %w", store.ErrNotReady, err)
	}
	s.markReady(ctx)
	return nil
}

// ConnectAsync retries Connect in the background until it succeeds or ctx ends.
func (s *Store) ConnectAsync(ctx context.Context) {
	go func() {
		for {
			err := s.Connect(ctx)
			if err == nil {
				return
			}
			s.logger.Warn(ctx, "remote store connect failed",
				logger.Error(err),
				logger.Duration("retry_in", s.retry))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry):
			}
		}
	}()
}

func (s *Store) markReady(ctx context.Context) {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	s.logger.Info(ctx, "remote store ready")
	for _, fn := range hooks {
		fn()
	}
}

// Ready implements store.Readiness.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// OnReady implements store.Readiness.
func (s *Store) OnReady(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if !s.ready {
		s.hooks = append(s.hooks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

func (s *Store) gate(ctx context.Context, op string) bool {
	if s.Ready() {
		return true
	}
	s.logger.Warn(ctx, "store operation before ready",
		logger.String("op", op),
		logger.Error(store.ErrNotReady))
	return false
}

// WriteSample stores s durably and retains it on the realtime feed.
func (s *Store) WriteSample(ctx context.Context, session string, smp model.Sample) error {
	if !s.gate(ctx, "write_sample") {
		return nil
	}
	err := s.durable.WriteSample(ctx, session, smp)
	if errors.Is(err, store.ErrInvalidSession) {
		return err
	}
	return errors.Join(err, s.realtime.PublishSample(ctx, session, store.NewSampleKey(), smp))
}

// WriteBatch implements store.Writer.
func (s *Store) WriteBatch(ctx context.Context, session string, b model.Batch) error {
	if !s.gate(ctx, "write_batch") {
		return nil
	}
	return s.durable.WriteBatch(ctx, session, b)
}

// ReadRecent implements store.Reader.
func (s *Store) ReadRecent(ctx context.Context, session string, limit int) ([]model.Sample, error) {
	if !s.gate(ctx, "read_recent") {
		return []model.Sample{}, nil
	}
	return s.durable.ReadRecent(ctx, session, limit)
}

// SubscribeNewSamples implements store.SampleFeed.
func (s *Store) SubscribeNewSamples(ctx context.Context, session string, onSample func(model.Sample), onError func(error)) (store.Subscription, error) {
	if !s.gate(ctx, "subscribe_samples") {
		return store.NopSubscription{}, nil
	}
	return s.realtime.SubscribeNewSamples(ctx, session, onSample, onError)
}

// SubscribeLatestPrediction implements store.PredictionFeed.
func (s *Store) SubscribeLatestPrediction(ctx context.Context, onPrediction func(raw []byte), onError func(error)) (store.Subscription, error) {
	if !s.gate(ctx, "subscribe_prediction") {
		return store.NopSubscription{}, nil
	}
	return s.realtime.SubscribeLatestPrediction(ctx, onPrediction, onError)
}

// PublishPrediction overwrites the latest-prediction record.
func (s *Store) PublishPrediction(ctx context.Context, raw []byte) error {
	if !s.gate(ctx, "publish_prediction") {
		return nil
	}
	return s.realtime.PublishPrediction(ctx, raw)
}

// Close releases both backends.
func (s *Store) Close() error {
	return errors.Join(s.realtime.Close(), s.durable.Close())
}

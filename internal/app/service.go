// Package service wires the telemetry pipeline: sampler, strategy, store,
// prediction coordinator and event bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tapsense/internal/adapters/device"
	"github.com/okian/tapsense/internal/adapters/mq/queue"
	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/channels"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/internal/eventbus"
	"github.com/okian/tapsense/internal/prediction"
	"github.com/okian/tapsense/internal/upload"
	"github.com/okian/tapsense/pkg/logger"
)

// Strategy names accepted by WithStrategy.
const (
	StrategyBatch   = upload.NameBatch
	StrategyRelease = upload.NameRelease
)

// ErrUnknownStrategy is returned by Start for an unsupported strategy name.
var ErrUnknownStrategy = errors.New("unknown upload strategy")

// Service runs the pipeline for one session.
type Service struct {
	mu sync.RWMutex

	// Core components
	bus         *eventbus.Bus
	store       store.Store
	provider    device.Provider
	tracker     *device.Tracker
	sampler     *device.Sampler
	samples     *queue.InMemoryQueue
	strategy    upload.Strategy
	coordinator *prediction.Coordinator

	// Configuration
	session           string
	strategyName      string
	threshold         int
	alsoWriteSingles  bool
	flushResidue      bool
	predictionTimeout time.Duration
	writeTimeout      time.Duration
	tickInterval      time.Duration
	sampleRate        int
	queueSize         int
	loops             bool

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ticks   atomic.Uint64
	flushes atomic.Uint64
	failed  atomic.Uint64

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		strategyName:      StrategyRelease,
		threshold:         upload.DefaultThreshold,
		predictionTimeout: upload.DefaultPredictionTimeout,
		writeTimeout:      upload.DefaultWriteTimeout,
		tickInterval:      time.Second / 90,
		sampleRate:        device.DefaultSampleRate,
		queueSize:         1024,
		loops:             true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.session == "" {
		s.session = store.NewSessionID()
	}
	if s.bus == nil {
		s.bus = eventbus.New(eventbus.WithChannels(channels.Known()...))
	}
	if s.store == nil {
		s.store = store.NewMemory(store.WithReady())
	}
	if s.provider == nil {
		s.provider = device.NewSimProvider()
	}
	return s
}

func (s *Service) buildStrategy() (upload.Strategy, error) {
	opts := []upload.Option{
		upload.WithLogger(s.logger.Named(s.strategyName)),
		upload.WithAlsoWriteSingles(s.alsoWriteSingles),
		upload.WithWriteTimeout(s.writeTimeout),
		upload.WithOnFlush(s.onFlush),
	}
	switch s.strategyName {
	case StrategyBatch:
		opts = append(opts,
			upload.WithThreshold(s.threshold),
			upload.WithFlushResidueOnClose(s.flushResidue),
		)
		return upload.NewBatchStrategy(s.store, s.session, opts...), nil
	case StrategyRelease:
		opts = append(opts, upload.WithPredictionTimeout(s.predictionTimeout))
		return upload.NewReleaseStrategy(s.store, s.bus, s.session, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s.strategyName)
	}
}

func (s *Service) onFlush(r upload.FlushResult) {
	s.flushes.Add(1)
	if r.Err != nil {
		s.failed.Add(1)
	}
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting telemetry service...",
		logger.String("session", s.session),
		logger.String("strategy", s.strategyName))

	strategy, err := s.buildStrategy()
	if err != nil {
		return err
	}
	if err := strategy.Start(ctx); err != nil {
		return fmt.Errorf("start strategy: %w", err)
	}
	s.strategy = strategy

	s.tracker = device.NewTracker(s.provider)
	s.sampler = device.NewSampler(s.tracker, device.WithRate(s.sampleRate))
	s.samples = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.coordinator = prediction.NewCoordinator(s.store, s.bus,
		prediction.WithLogger(s.logger.Named("prediction")))
	coordinator := s.coordinator
	startCoordinator := func() {
		if runCtx.Err() != nil {
			return
		}
		if err := coordinator.Start(runCtx); err != nil {
			s.logger.Error(runCtx, "prediction coordinator failed to start", logger.Error(err))
		}
	}
	if r, ok := s.store.(store.Readiness); ok {
		r.OnReady(startCoordinator)
	} else {
		startCoordinator()
	}

	if s.loops {
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.sampler.Run(runCtx, func(smp model.Sample) {
				s.samples.Enqueue(runCtx, smp)
			})
		}()
		go func() {
			defer s.wg.Done()
			s.tickLoop(runCtx)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "telemetry service started",
		logger.Int("sampleRateHz", s.sampleRate),
		logger.Duration("tickInterval", s.tickInterval),
		logger.Int("queueSize", s.queueSize))
	return nil
}

func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one control step: grip state, queued samples, then the strategy
// poll hook.
func (s *Service) Tick(ctx context.Context) {
	s.mu.RLock()
	strategy, tracker, samples := s.strategy, s.tracker, s.samples
	s.mu.RUnlock()
	if strategy == nil {
		return
	}

	tracker.Reacquire()
	strategy.OnGripState(ctx, device.ReadGrip(tracker.Controllers()))
	samples.DrainInto(func(smp model.Sample) {
		strategy.OnSample(ctx, smp)
	})
	strategy.Tick(ctx)
	s.ticks.Add(1)
}

// PollDevices samples the controllers once and queues the readings. It is a
// no-op while the background loops run, since the sampler loop owns polling.
func (s *Service) PollDevices(ctx context.Context) int {
	if s.loops {
		return 0
	}
	s.mu.RLock()
	sampler, samples := s.sampler, s.samples
	s.mu.RUnlock()
	if sampler == nil {
		return 0
	}
	n := 0
	for _, smp := range sampler.Poll() {
		if samples.Enqueue(ctx, smp) {
			n++
		}
	}
	return n
}

// EnqueueSample queues a sample from an external source.
func (s *Service) EnqueueSample(ctx context.Context, smp model.Sample) bool {
	s.mu.RLock()
	samples := s.samples
	s.mu.RUnlock()
	if samples == nil {
		return false
	}
	return samples.Enqueue(ctx, smp)
}

// Stop gracefully shuts down the service. In-flight flushes get up to the
// write timeout to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping telemetry service...")

	// The loops take the read lock in Tick, so wait for them unlocked.
	cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategy.Stop()
	drainCtx, cancelDrain := context.WithTimeout(ctx, s.writeTimeout)
	if err := s.strategy.Drain(drainCtx); err != nil {
		s.logger.Warn(ctx, "flush still in flight at shutdown", logger.Error(err))
	}
	cancelDrain()

	s.coordinator.Stop()
	_ = s.samples.Close()

	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn(ctx, "closing store", logger.Error(err))
		}
	}

	s.logger.Info(ctx, "telemetry service stopped")
}

// Session returns the session id.
func (s *Service) Session() string { return s.session }

// Bus returns the event bus.
func (s *Service) Bus() *eventbus.Bus { return s.bus }

// Store returns the store facade.
func (s *Service) Store() store.Store { return s.store }

// Strategy returns the running strategy, or nil before Start.
func (s *Service) Strategy() upload.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy
}

// LoadRecent returns the most recent samples of the current session.
func (s *Service) LoadRecent(ctx context.Context, limit int) ([]model.Sample, error) {
	return s.ReadRecent(ctx, s.session, limit)
}

// ReadRecent returns the most recent samples of any session.
func (s *Service) ReadRecent(ctx context.Context, session string, limit int) ([]model.Sample, error) {
	out, err := s.store.ReadRecent(ctx, session, limit)
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	return out, nil
}

// SubscribeLiveSamples follows the samples written to the current session.
func (s *Service) SubscribeLiveSamples(ctx context.Context, onSample func(model.Sample), onError func(error)) (store.Subscription, error) {
	sub, err := s.store.SubscribeNewSamples(ctx, s.session, onSample, onError)
	if err != nil {
		return nil, fmt.Errorf("subscribe live samples: %w", err)
	}
	return sub, nil
}

// Publish raises a named event on the bus. It reports false for names that
// are not registered channels.
func (s *Service) Publish(name string) bool {
	if !s.bus.HasChannel(name) {
		return false
	}
	s.bus.Publish(name)
	return true
}

// Ready reports whether the store accepts operations.
func (s *Service) Ready() bool {
	if r, ok := s.store.(store.Readiness); ok {
		return r.Ready()
	}
	return true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"session":    s.session,
		"strategy":   s.strategyName,
		"storeReady": s.Ready(),
		"ticks":      s.ticks.Load(),
		"flushes":    s.flushes.Load(),
		"failed":     s.failed.Load(),
		"bus":        s.bus.Stats(),
	}

	if s.started {
		stats["pipeline"] = s.strategy.Stats()
		stats["predictions"] = s.coordinator.Stats()
		stats["queueLength"] = s.samples.Len()
		stats["queueCapacity"] = s.samples.Capacity()
	}

	return stats
}

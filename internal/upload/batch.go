package upload

import (
	"context"
	"sync"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

// BatchStrategy uploads full batches of threshold samples while exactly one
// grip is held. On release the un-flushed tail is discarded unless
// WithFlushResidueOnClose is set.
type BatchStrategy struct {
	opts    options
	flusher *flusher
	logger  logger.Logger

	mu         sync.Mutex
	buf        []model.Sample
	prev       model.GripState
	open       bool
	activeHand model.Hand
}

// NewBatchStrategy creates a BatchStrategy writing to w under session.
func NewBatchStrategy(w store.Writer, session string, opts ...Option) *BatchStrategy {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("upload.batch")
	}
	return &BatchStrategy{
		opts:       o,
		flusher:    newFlusher(NameBatch, w, session, o, o.logger),
		logger:     o.logger,
		activeHand: model.HandNone,
	}
}

// Name implements Strategy.
func (s *BatchStrategy) Name() string { return NameBatch }

// Start implements Strategy.
func (s *BatchStrategy) Start(context.Context) error { return nil }

// Stop implements Strategy.
func (s *BatchStrategy) Stop() {}

// OnGripState implements Strategy.
func (s *BatchStrategy) OnGripState(ctx context.Context, grip model.GripState) {
	g := grip.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	exactlyOne := g.ExactlyOne()
	if exactlyOne && !s.open {
		s.activeHand = g.Hand()
		metrics.RecordWindowOpened(NameBatch, s.activeHand.String())
	}
	s.open = exactlyOne

	if s.prev.ExactlyOne() && !exactlyOne {
		s.closeWindowLocked(ctx)
	}
	s.prev = g

	if len(s.buf) >= s.opts.threshold {
		s.flushLocked(ctx, s.opts.threshold, s.opts.threshold)
	}
	metrics.UpdateBufferSize(NameBatch, len(s.buf))
}

func (s *BatchStrategy) closeWindowLocked(ctx context.Context) {
	switch {
	case s.opts.flushResidue && len(s.buf) > 0:
		s.flushLocked(ctx, len(s.buf), s.opts.threshold)
	case len(s.buf) >= s.opts.threshold:
		s.flushLocked(ctx, s.opts.threshold, s.opts.threshold)
	}
	if n := len(s.buf); n > 0 {
		metrics.RecordSamplesDiscarded(NameBatch, "residue", n)
		s.logger.Debug(ctx, "discarding window residue", logger.Int("samples", n))
	}
	s.buf = nil
	s.activeHand = model.HandNone
}

// flushLocked snapshots the first n samples, removes them from the buffer and
// hands them to the flusher, split into batches of chunk samples.
func (s *BatchStrategy) flushLocked(ctx context.Context, n, chunk int) {
	if n > len(s.buf) {
		n = len(s.buf)
	}
	if n == 0 || !s.flusher.begin() {
		return
	}
	snapshot := cloneSamples(s.buf[:n])
	s.buf = cloneSamples(s.buf[n:])
	s.flusher.run(ctx, snapshot, s.activeHand, chunk, s.restore)
}

func (s *BatchStrategy) restore(samples []model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = prepend(samples, s.buf)
	metrics.UpdateBufferSize(NameBatch, len(s.buf))
}

// OnSample implements Strategy.
func (s *BatchStrategy) OnSample(_ context.Context, sample model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.buf = append(s.buf, sample)
	metrics.RecordSampleBuffered(NameBatch)
}

// Tick implements Strategy.
func (s *BatchStrategy) Tick(context.Context) {
	s.mu.Lock()
	n := len(s.buf)
	s.mu.Unlock()
	metrics.UpdateBufferSize(NameBatch, n)
}

// Drain implements Strategy.
func (s *BatchStrategy) Drain(ctx context.Context) error {
	return s.flusher.drain(ctx)
}

// Buffered implements Strategy.
func (s *BatchStrategy) Buffered() []model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSamples(s.buf)
}

// Stats implements Strategy.
func (s *BatchStrategy) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Strategy:   NameBatch,
		Buffered:   len(s.buf),
		WindowOpen: s.open,
		ActiveHand: s.activeHand.String(),
		Flushing:   s.flusher.busy(),
	}
}

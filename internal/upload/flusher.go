package upload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

// flusher runs at most one asynchronous write at a time for a strategy.
type flusher struct {
	name    string
	writer  store.Writer
	session string
	opts    options
	logger  logger.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

func newFlusher(name string, w store.Writer, session string, opts options, l logger.Logger) *flusher {
	return &flusher{name: name, writer: w, session: session, opts: opts, logger: l}
}

// begin claims the single flush slot. A request that finds it taken is dropped.
func (f *flusher) begin() bool {
	if f.inFlight.CompareAndSwap(false, true) {
		return true
	}
	metrics.RecordFlush(f.name, metrics.FlushDropped)
	return false
}

// release gives the slot back without writing.
func (f *flusher) release() {
	f.inFlight.Store(false)
}

func (f *flusher) busy() bool {
	return f.inFlight.Load()
}

// run writes samples in chunks of at most chunk samples on its own goroutine.
// The caller must hold the slot. On failure restore receives every sample
// that was not part of a successfully written batch, in original order.
// The slot is released only after restore returns.
func (f *flusher) run(ctx context.Context, samples []model.Sample, hand model.Hand, chunk int, restore func([]model.Sample)) {
	if chunk <= 0 || chunk > len(samples) {
		chunk = len(samples)
	}
	metrics.RecordFlush(f.name, metrics.FlushStarted)
	metrics.RecordFlushSize(f.name, len(samples))

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.inFlight.Store(false)

		// The write outlives the tick that triggered it.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.writeTimeout)
		defer cancel()

		start := time.Now()
		sent, batches, err := f.write(wctx, samples, hand, chunk)
		took := time.Since(start)

		outcome := metrics.FlushSucceeded
		if err != nil {
			outcome = metrics.FlushFailed
			restore(samples[sent:])
			f.logger.Warn(wctx, "flush failed, samples restored to buffer",
				logger.Int("samples", len(samples)),
				logger.Int("restored", len(samples)-sent),
				logger.Error(err))
		} else {
			f.logger.Debug(wctx, "flushed",
				logger.Int("samples", len(samples)),
				logger.Int("batches", batches),
				logger.String("hand", hand.String()),
				logger.Duration("took", took))
		}
		metrics.RecordFlush(f.name, outcome)
		metrics.RecordFlushDuration(f.name, outcome, float64(took.Microseconds())/1000)

		if f.opts.onFlush != nil {
			f.opts.onFlush(FlushResult{
				Strategy: f.name,
				Samples:  len(samples),
				Batches:  batches,
				Sent:     sent,
				Duration: took,
				Err:      err,
			})
		}
	}()
}

func (f *flusher) write(ctx context.Context, samples []model.Sample, hand model.Hand, chunk int) (sent, batches int, err error) {
	for sent < len(samples) {
		end := min(sent+chunk, len(samples))
		part := samples[sent:end]

		if f.opts.alsoWriteSingles {
			for _, s := range part {
				if err := f.writer.WriteSample(ctx, f.session, s); err != nil {
					return sent, batches, fmt.Errorf("%w: write sample: %w", ErrFlush, err)
				}
			}
		}
		if err := f.writer.WriteBatch(ctx, f.session, model.NewBatch(f.session, part, hand)); err != nil {
			return sent, batches, fmt.Errorf("%w: write batch: %w", ErrFlush, err)
		}
		sent = end
		batches++
	}
	return sent, batches, nil
}

// drain waits for the in-flight write, if any.
func (f *flusher) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
	}
}

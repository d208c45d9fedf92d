package upload_test

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/tapsense/internal/domain/model"
)

var errWrite = errors.New("backend unavailable")

// fakeWriter records writes and can fail or block on demand.
type fakeWriter struct {
	mu          sync.Mutex
	batches     []model.Batch
	singles     []model.Sample
	failBatches int
	gate        chan struct{}
}

func (w *fakeWriter) WriteSample(_ context.Context, _ string, s model.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.singles = append(w.singles, s)
	return nil
}

func (w *fakeWriter) WriteBatch(ctx context.Context, _ string, b model.Batch) error {
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failBatches > 0 {
		w.failBatches--
		return errWrite
	}
	w.batches = append(w.batches, b)
	return nil
}

func (w *fakeWriter) Batches() []model.Batch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.Batch(nil), w.batches...)
}

func (w *fakeWriter) Singles() []model.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.Sample(nil), w.singles...)
}

func makeSamples(start, n int) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = model.Sample{
			TimestampMs: int64(start + i),
			DeviceID:    model.DeviceLeftController,
			Velocity:    1,
		}
	}
	return out
}

var (
	gripNone  = model.GripState{}
	gripLeft  = model.GripState{LeftHeld: true}
	gripRight = model.GripState{RightHeld: true}
	gripBoth  = model.GripState{LeftHeld: true, RightHeld: true}
)

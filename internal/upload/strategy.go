// Package upload buffers motion samples into grip-gated recording windows and
// flushes them to the store.
//
// Two strategies share one contract: BatchStrategy uploads fixed-size batches
// while a window is open, ReleaseStrategy uploads the whole window when the
// grip is released and then waits a bounded time for a prediction.
package upload

import (
	"context"

	"github.com/okian/tapsense/internal/domain/model"
)

// Strategy names.
const (
	NameBatch   = "batch"
	NameRelease = "release"
)

// Strategy is driven by the tick loop.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string
	// Start attaches the strategy to its collaborators.
	Start(ctx context.Context) error
	// Stop detaches the strategy. In-flight flushes keep running; use Drain.
	Stop()
	// OnGripState is called once per tick and drives window transitions.
	OnGripState(ctx context.Context, grip model.GripState)
	// OnSample offers a sample; it is retained only while a window is open.
	OnSample(ctx context.Context, s model.Sample)
	// Tick is the optional per-tick hook.
	Tick(ctx context.Context)
	// Drain waits for the in-flight flush to complete.
	Drain(ctx context.Context) error
	// Buffered returns a copy of the current buffer.
	Buffered() []model.Sample
	// Stats returns a snapshot of strategy state.
	Stats() Stats
}

// Stats is a point-in-time view of a strategy.
type Stats struct {
	Strategy   string `json:"strategy"`
	Buffered   int    `json:"buffered"`
	WindowOpen bool   `json:"window_open"`
	ActiveHand string `json:"active_hand"`
	Flushing   bool   `json:"flushing"`
	Waiting    bool   `json:"waiting_for_prediction"`
}

// prepend returns restored followed by buf, in a fresh slice.
func prepend(restored, buf []model.Sample) []model.Sample {
	out := make([]model.Sample, 0, len(restored)+len(buf))
	out = append(out, restored...)
	return append(out, buf...)
}

func cloneSamples(in []model.Sample) []model.Sample {
	out := make([]model.Sample, len(in))
	copy(out, in)
	return out
}

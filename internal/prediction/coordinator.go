// Package prediction turns latest-prediction feed messages into bus events.
package prediction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/channels"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/internal/eventbus"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

// Stats counts feed messages by outcome.
type Stats struct {
	Received  uint64 `json:"received"`
	Stale     uint64 `json:"stale"`
	Published uint64 `json:"published"`
	Unmapped  uint64 `json:"unmapped"`
	Malformed uint64 `json:"malformed"`
}

// feedState belongs to one subscription; resubscribing re-arms the stale rule.
type feedState struct {
	seenFirst atomic.Bool
	stopped   atomic.Bool
}

// Coordinator subscribes once to the latest-prediction feed and republishes
// each classification on the bus. The first delivery after subscribing is
// a replay of the stored value and is always dropped.
type Coordinator struct {
	feed    store.PredictionFeed
	bus     *eventbus.Bus
	logger  logger.Logger
	onError func(error)

	mu    sync.Mutex
	sub   store.Subscription
	state *feedState

	received  atomic.Uint64
	stale     atomic.Uint64
	published atomic.Uint64
	unmapped  atomic.Uint64
	malformed atomic.Uint64
}

// NewCoordinator creates a Coordinator reading from feed and publishing on bus.
func NewCoordinator(feed store.PredictionFeed, bus *eventbus.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		feed:   feed,
		bus:    bus,
		logger: logger.Get().Named("prediction"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.onError == nil {
		c.onError = func(err error) {
			c.logger.Error(context.Background(), "prediction error", logger.Error(err))
		}
	}
	return c
}

// Start subscribes to the feed. Calling Start while subscribed is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}

	state := &feedState{}
	sub, err := c.feed.SubscribeLatestPrediction(ctx,
		func(raw []byte) { c.handle(ctx, state, raw) },
		func(err error) { c.onError(fmt.Errorf("%w: %w", ErrFeed, err)) },
	)
	if err != nil {
		return fmt.Errorf("subscribe latest prediction: %w", err)
	}
	c.sub = sub
	c.state = state
	c.logger.Info(ctx, "prediction coordinator subscribed")
	return nil
}

// Stop cancels the subscription. A later Start resubscribes.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return
	}
	c.state.stopped.Store(true)
	if err := c.sub.Close(); err != nil {
		c.logger.Warn(context.Background(), "closing prediction subscription", logger.Error(err))
	}
	c.sub = nil
	c.state = nil
}

// Running reports whether the coordinator holds a subscription.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub != nil
}

// Stats returns a snapshot of message counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Stale:     c.stale.Load(),
		Published: c.published.Load(),
		Unmapped:  c.unmapped.Load(),
		Malformed: c.malformed.Load(),
	}
}

func (c *Coordinator) handle(ctx context.Context, state *feedState, raw []byte) {
	if state.stopped.Load() {
		return
	}
	if !state.seenFirst.Swap(true) {
		c.stale.Add(1)
		metrics.RecordPrediction(metrics.PredictionStale)
		c.logger.Debug(ctx, "dropping replayed prediction")
		return
	}

	c.received.Add(1)
	metrics.RecordPrediction(metrics.PredictionReceived)

	msg, err := Decode(raw)
	if err != nil {
		c.malformed.Add(1)
		metrics.RecordPrediction(metrics.PredictionMalformed)
		c.onError(err)
		return
	}
	c.dispatch(ctx, msg)
}

func (c *Coordinator) dispatch(ctx context.Context, msg model.PredictionMessage) {
	name := channels.NoTap
	if msg.IsTap() {
		var ok bool
		name, ok = channels.TapChannel(msg.Hand, msg.Position)
		if !ok {
			c.unmapped.Add(1)
			metrics.RecordPrediction(metrics.PredictionUnmapped)
			c.logger.Debug(ctx, "unmapped prediction",
				logger.Int("hand", int(msg.Hand)),
				logger.Int("position", int(msg.Position)))
			return
		}
	}

	c.published.Add(1)
	metrics.RecordPrediction(metrics.PredictionPublished)
	c.bus.PublishPayload(name, msg)
}

package upload

import (
	"context"
	"sync"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/channels"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/internal/eventbus"
	"github.com/okian/tapsense/internal/prediction/wait"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

// BeginTap announces a new recording window with the hand that opened it.
var BeginTap = eventbus.NewTopic[model.Hand](channels.BeginTap) //nolint:gochecknoglobals // typed channel descriptor

// ReleaseStrategy records a whole window while exactly one grip is held and
// uploads it on release. After each release it waits for a prediction event
// and publishes a synthetic NO_TAPP if none arrives in time.
//
// States: idle -> recording -> flushing+waiting -> idle.
type ReleaseStrategy struct {
	opts    options
	flusher *flusher
	bus     *eventbus.Bus
	waiter  *wait.Waiter
	logger  logger.Logger

	mu           sync.Mutex
	buf          []model.Sample
	prev         model.GripState
	recording    bool
	activeHand   model.Hand
	restoredHand model.Hand
	subs         []*eventbus.Subscription
}

// NewReleaseStrategy creates a ReleaseStrategy writing to w under session and
// coordinating prediction waits over bus.
func NewReleaseStrategy(w store.Writer, bus *eventbus.Bus, session string, opts ...Option) *ReleaseStrategy {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("upload.release")
	}
	s := &ReleaseStrategy{
		opts:         o,
		flusher:      newFlusher(NameRelease, w, session, o, o.logger),
		bus:          bus,
		logger:       o.logger,
		activeHand:   model.HandNone,
		restoredHand: model.HandNone,
	}
	s.waiter = wait.New(s.onTimeout)
	return s
}

// Name implements Strategy.
func (s *ReleaseStrategy) Name() string { return NameRelease }

// Start subscribes once to every prediction channel. Calling it again is a no-op.
func (s *ReleaseStrategy) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs != nil {
		return nil
	}
	for _, name := range channels.PredictionChannels() {
		s.subs = append(s.subs, s.bus.Subscribe(name, s.onPrediction))
	}
	return nil
}

// Stop unsubscribes from the prediction channels and cancels a pending wait.
func (s *ReleaseStrategy) Stop() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.bus.Unsubscribe(sub.Channel(), sub)
	}
	s.waiter.Cancel()
}

// OnGripState implements Strategy.
func (s *ReleaseStrategy) OnGripState(ctx context.Context, grip model.GripState) {
	g := grip.Normalize()
	exactlyOne := g.ExactlyOne()

	s.mu.Lock()
	opened, closed := false, false
	var hand model.Hand

	if exactlyOne && !s.recording {
		s.openWindowLocked(ctx, g.Hand())
		opened, hand = true, s.activeHand
	}
	if s.prev.ExactlyOne() && !exactlyOne {
		s.flushLocked(ctx, s.activeHand)
		if len(s.buf) > 0 {
			// The flush slot was busy; the window stays buffered under its own hand.
			s.restoredHand = s.activeHand
		}
		s.recording = false
		s.activeHand = model.HandNone
		closed = true
	}
	s.prev = g
	n := len(s.buf)
	s.mu.Unlock()

	metrics.UpdateBufferSize(NameRelease, n)

	// Bus and timer work happens outside the lock; handlers may call back in.
	if opened {
		s.waiter.Cancel()
		BeginTap.Publish(s.bus, hand)
	}
	if closed {
		s.waiter.Start(s.opts.predictionTimeout)
	}
}

func (s *ReleaseStrategy) openWindowLocked(ctx context.Context, hand model.Hand) {
	// Samples restored by a failed flush belong to an earlier window; retry
	// them under their own hand before the new window starts.
	if len(s.buf) > 0 {
		s.flushLocked(ctx, s.restoredHand)
	}
	if n := len(s.buf); n > 0 {
		metrics.RecordSamplesDiscarded(NameRelease, "window_reset", n)
		s.logger.Warn(ctx, "discarding samples left from a previous window", logger.Int("samples", n))
	}
	s.buf = nil
	s.recording = true
	s.activeHand = hand
	metrics.RecordWindowOpened(NameRelease, hand.String())
}

func (s *ReleaseStrategy) flushLocked(ctx context.Context, hand model.Hand) {
	if len(s.buf) == 0 || !s.flusher.begin() {
		return
	}
	snapshot := cloneSamples(s.buf)
	s.buf = nil
	s.flusher.run(ctx, snapshot, hand, 0, func(restored []model.Sample) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.buf = prepend(restored, s.buf)
		s.restoredHand = hand
		metrics.UpdateBufferSize(NameRelease, len(s.buf))
	})
}

// onPrediction ends the pending wait, if any.
func (s *ReleaseStrategy) onPrediction() {
	s.waiter.Ack()
}

// onTimeout runs on the timer goroutine once a wait expires un-acked. The
// waiter clears its pending flag first, so this NO_TAPP does not ack itself.
func (s *ReleaseStrategy) onTimeout() {
	s.logger.Debug(context.Background(), "prediction wait timed out, publishing no-tap")
	s.bus.Publish(channels.NoTap)
}

// OnSample implements Strategy.
func (s *ReleaseStrategy) OnSample(_ context.Context, sample model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return
	}
	s.buf = append(s.buf, sample)
	metrics.RecordSampleBuffered(NameRelease)
}

// Tick implements Strategy.
func (s *ReleaseStrategy) Tick(context.Context) {
	s.mu.Lock()
	n := len(s.buf)
	s.mu.Unlock()
	metrics.UpdateBufferSize(NameRelease, n)
}

// Drain implements Strategy.
func (s *ReleaseStrategy) Drain(ctx context.Context) error {
	return s.flusher.drain(ctx)
}

// Buffered implements Strategy.
func (s *ReleaseStrategy) Buffered() []model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSamples(s.buf)
}

// WaitingForPrediction reports whether a prediction wait is pending.
func (s *ReleaseStrategy) WaitingForPrediction() bool {
	return s.waiter.Pending()
}

// Stats implements Strategy.
func (s *ReleaseStrategy) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Strategy:   NameRelease,
		Buffered:   len(s.buf),
		WindowOpen: s.recording,
		ActiveHand: s.activeHand.String(),
		Flushing:   s.flusher.busy(),
		Waiting:    s.waiter.Pending(),
	}
}

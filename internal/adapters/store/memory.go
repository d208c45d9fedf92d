package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

const memoryBackend = "memory"

type storedSample struct {
	key    string
	sample model.Sample
}

type sampleKey struct {
	device string
	ts     int64
}

// Memory is an in-process Store. It keeps the same path layout and feed
// semantics as the remote backends and is used by the simulator and tests.
type Memory struct {
	mu    sync.RWMutex
	paths Paths
	ready bool
	hooks []func()

	samples    map[string][]storedSample        // session -> insertion order
	batches    map[string]map[int64]model.Batch // session -> batch ts -> batch
	prediction []byte                           // latest prediction record
	sampleSubs map[string]map[uint64]*memorySub // session -> subscribers
	predSubs   map[uint64]*memorySub

	nextID uint64
	now    func() time.Time
	logger logger.Logger
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithRoot sets the storage root.
func WithRoot(root string) MemoryOption {
	return func(m *Memory) { m.paths = NewPaths(root) }
}

// WithClock overrides the clock used for batch keys.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReady marks the store ready at construction.
func WithReady() MemoryOption {
	return func(m *Memory) { m.ready = true }
}

// NewMemory creates a Memory store. It is not ready until Connect is called
// unless WithReady is given.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		paths:      NewPaths(DefaultRoot),
		samples:    make(map[string][]storedSample),
		batches:    make(map[string]map[int64]model.Batch),
		sampleSubs: make(map[string]map[uint64]*memorySub),
		predSubs:   make(map[uint64]*memorySub),
		now:        time.Now,
		logger:     logger.Get().Named("store.memory"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Paths returns the path layout of the store.
func (m *Memory) Paths() Paths { return m.paths }

// Connect marks the store ready and runs OnReady hooks.
func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	if m.ready {
		m.mu.Unlock()
		return nil
	}
	m.ready = true
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Ready implements Readiness.
func (m *Memory) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// OnReady implements Readiness.
func (m *Memory) OnReady(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	if !m.ready {
		m.hooks = append(m.hooks, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn()
}

// Close drops every live subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleSubs = make(map[string]map[uint64]*memorySub)
	m.predSubs = make(map[uint64]*memorySub)
	return nil
}

func (m *Memory) notReady(ctx context.Context, op string) {
	m.logger.Warn(ctx, "store operation before ready",
		logger.String("op", op),
		logger.Error(ErrNotReady))
}

// WriteSample implements Writer.
func (m *Memory) WriteSample(ctx context.Context, session string, s model.Sample) (err error) {
	start := time.Now()
	defer func() { observe(memoryBackend, "write_sample", start, err) }()

	if !ValidSession(session) {
		return fmt.Errorf("write sample %q: %w", session, ErrInvalidSession)
	}

	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		m.notReady(ctx, "write_sample")
		return nil
	}
	m.samples[session] = append(m.samples[session], storedSample{key: NewSampleKey(), sample: s})
	subs := snapshotSubs(m.sampleSubs[session])
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliverSample(s)
	}
	return nil
}

// WriteBatch implements Writer. Batches written within the same millisecond get
// consecutive keys.
func (m *Memory) WriteBatch(ctx context.Context, session string, b model.Batch) (err error) {
	start := time.Now()
	defer func() { observe(memoryBackend, "write_batch", start, err) }()

	if !ValidSession(session) {
		return fmt.Errorf("write batch %q: %w", session, ErrInvalidSession)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		m.notReady(ctx, "write_batch")
		return nil
	}
	byTS, ok := m.batches[session]
	if !ok {
		byTS = make(map[int64]model.Batch)
		m.batches[session] = byTS
	}
	ts := m.now().UnixMilli()
	for {
		if _, taken := byTS[ts]; !taken {
			break
		}
		ts++
	}
	byTS[ts] = model.NewBatch(b.SessionID, b.Samples, b.TappingHand)
	return nil
}

// ReadRecent implements Reader. Samples written individually and inside
// batches are merged; a reading is identified by device and timestamp.
func (m *Memory) ReadRecent(ctx context.Context, session string, limit int) (out []model.Sample, err error) {
	start := time.Now()
	defer func() { observe(memoryBackend, "read_recent", start, err) }()

	limit = ClampLimit(limit)

	m.mu.RLock()
	if !m.ready {
		m.mu.RUnlock()
		m.notReady(ctx, "read_recent")
		return []model.Sample{}, nil
	}
	seen := make(map[sampleKey]struct{})
	all := make([]model.Sample, 0, len(m.samples[session]))
	add := func(s model.Sample) {
		k := sampleKey{device: s.DeviceID, ts: s.TimestampMs}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		all = append(all, s)
	}
	for _, rec := range m.samples[session] {
		add(rec.sample)
	}
	batchKeys := make([]int64, 0, len(m.batches[session]))
	for ts := range m.batches[session] {
		batchKeys = append(batchKeys, ts)
	}
	sort.Slice(batchKeys, func(i, j int) bool { return batchKeys[i] < batchKeys[j] })
	for _, ts := range batchKeys {
		for _, s := range m.batches[session][ts].Samples {
			add(s)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].TimestampMs < all[j].TimestampMs })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Batches returns the batches of a session ordered by key.
func (m *Memory) Batches(session string) []model.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]int64, 0, len(m.batches[session]))
	for ts := range m.batches[session] {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]model.Batch, 0, len(keys))
	for _, ts := range keys {
		out = append(out, m.batches[session][ts])
	}
	return out
}

// PublishPrediction overwrites the latest-prediction record and notifies subscribers.
func (m *Memory) PublishPrediction(ctx context.Context, raw []byte) (err error) {
	start := time.Now()
	defer func() { observe(memoryBackend, "publish_prediction", start, err) }()

	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		m.notReady(ctx, "publish_prediction")
		return nil
	}
	m.prediction = append([]byte(nil), raw...)
	subs := snapshotSubs(m.predSubs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliverPrediction(raw)
	}
	return nil
}

// SubscribeNewSamples implements SampleFeed.
func (m *Memory) SubscribeNewSamples(ctx context.Context, session string, onSample func(model.Sample), _ func(error)) (Subscription, error) {
	if !ValidSession(session) {
		return nil, fmt.Errorf("subscribe samples %q: %w", session, ErrInvalidSession)
	}
	if onSample == nil {
		return NopSubscription{}, nil
	}

	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		m.notReady(ctx, "subscribe_samples")
		return NopSubscription{}, nil
	}
	m.nextID++
	sub := &memorySub{id: m.nextID, onSample: onSample}
	sub.detach = func() {
		m.mu.Lock()
		delete(m.sampleSubs[session], sub.id)
		m.mu.Unlock()
	}
	if m.sampleSubs[session] == nil {
		m.sampleSubs[session] = make(map[uint64]*memorySub)
	}
	m.sampleSubs[session][sub.id] = sub
	existing := make([]model.Sample, len(m.samples[session]))
	for i, rec := range m.samples[session] {
		existing[i] = rec.sample
	}
	// Hold the delivery lock before releasing the store lock so live appends
	// queue behind the catch-up.
	sub.mu.Lock()
	m.mu.Unlock()

	for _, s := range existing {
		sub.onSample(s)
	}
	sub.mu.Unlock()
	return sub, nil
}

// SubscribeLatestPrediction implements PredictionFeed.
func (m *Memory) SubscribeLatestPrediction(ctx context.Context, onPrediction func(raw []byte), _ func(error)) (Subscription, error) {
	if onPrediction == nil {
		return NopSubscription{}, nil
	}

	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		m.notReady(ctx, "subscribe_prediction")
		return NopSubscription{}, nil
	}
	m.nextID++
	sub := &memorySub{id: m.nextID, onPrediction: onPrediction}
	sub.detach = func() {
		m.mu.Lock()
		delete(m.predSubs, sub.id)
		m.mu.Unlock()
	}
	m.predSubs[sub.id] = sub
	current := m.prediction
	sub.mu.Lock()
	m.mu.Unlock()

	if current != nil {
		sub.onPrediction(append([]byte(nil), current...))
	}
	sub.mu.Unlock()
	return sub, nil
}

// memorySub serializes deliveries through mu so catch-up and live appends
// arrive in order.
type memorySub struct {
	id           uint64
	mu           sync.Mutex
	closed       atomic.Bool
	onSample     func(model.Sample)
	onPrediction func([]byte)
	detach       func()
	closeOnce    sync.Once
}

func (s *memorySub) deliverSample(sample model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.Load() {
		s.onSample(sample)
	}
}

func (s *memorySub) deliverPrediction(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.Load() {
		s.onPrediction(append([]byte(nil), raw...))
	}
}

// Close implements Subscription.
func (s *memorySub) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.detach()
	})
	return nil
}

func snapshotSubs(subs map[uint64]*memorySub) []*memorySub {
	out := make([]*memorySub, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreOp(backend, op, float64(time.Since(start).Microseconds())/1000, err)
}

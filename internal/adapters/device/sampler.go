package device

import (
	"context"
	"time"

	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/metrics"
)

// Sample rate bounds in Hz.
const (
	MinSampleRate     = 5
	MaxSampleRate     = 120
	DefaultSampleRate = 100
)

// minAccelDelta floors the time step used for acceleration.
const minAccelDelta = time.Millisecond

type motionState struct {
	velocity model.Vec3
	at       int64
}

// Sampler turns controller readings into samples at a fixed rate.
type Sampler struct {
	tracker  *Tracker
	interval time.Duration
	now      func() time.Time
	prev     map[string]motionState
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithRate sets the sampling rate, clamped to [MinSampleRate, MaxSampleRate].
func WithRate(hz int) SamplerOption {
	return func(s *Sampler) {
		hz = max(MinSampleRate, min(MaxSampleRate, hz))
		s.interval = time.Second / time.Duration(hz)
	}
}

// WithClock overrides the sample clock.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSampler creates a Sampler reading from tracker.
func NewSampler(tracker *Tracker, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		tracker:  tracker,
		interval: time.Second / DefaultSampleRate,
		now:      time.Now,
		prev:     make(map[string]motionState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the sampling period.
func (s *Sampler) Interval() time.Duration { return s.interval }

// Poll reads every valid controller once. It is not safe for concurrent use.
func (s *Sampler) Poll() []model.Sample {
	s.tracker.Reacquire()
	left, right := s.tracker.Controllers()

	out := make([]model.Sample, 0, 2)
	if smp, ok := s.read(left, model.DeviceLeftController); ok {
		out = append(out, smp)
	}
	if smp, ok := s.read(right, model.DeviceRightController); ok {
		out = append(out, smp)
	}
	return out
}

func (s *Sampler) read(d DeviceReader, id string) (model.Sample, bool) {
	if !valid(d) {
		return model.Sample{}, false
	}
	now := s.now().UnixMilli()
	pos, _ := d.TryReadVec3(FeaturePosition)
	vel, _ := d.TryReadVec3(FeatureVelocity)

	accel := 0.0
	if p, ok := s.prev[id]; ok {
		dt := max(time.Duration(now-p.at)*time.Millisecond, minAccelDelta)
		accel = vel.Sub(p.velocity).Scale(1 / dt.Seconds()).Magnitude()
	}
	s.prev[id] = motionState{velocity: vel, at: now}

	metrics.RecordSampleSeen()
	return model.Sample{
		TimestampMs:  now,
		DeviceID:     id,
		Position:     pos,
		Velocity:     vel.Magnitude(),
		Acceleration: accel,
	}, true
}

// Run polls at the configured rate and hands each sample to emit until ctx is done.
func (s *Sampler) Run(ctx context.Context, emit func(model.Sample)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, smp := range s.Poll() {
				emit(smp)
			}
		}
	}
}

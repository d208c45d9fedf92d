// Package simulate drives the telemetry pipeline end to end with scripted
// controllers and a synthetic classifier, all in process.
package simulate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/tapsense/internal/adapters/device"
	"github.com/okian/tapsense/internal/adapters/store"
	app "github.com/okian/tapsense/internal/app"
	"github.com/okian/tapsense/internal/domain/channels"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/internal/eventbus"
	"github.com/okian/tapsense/pkg/logger"
)

// eventCounter tallies bus events; timeouts fire from timer goroutines.
type eventCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (e *eventCounter) attach(bus *eventbus.Bus) {
	for _, name := range channels.Known() {
		name := name
		bus.Subscribe(name, func() {
			e.mu.Lock()
			e.counts[name]++
			e.mu.Unlock()
		})
	}
}

func (e *eventCounter) snapshot() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}

// Run plays cfg.Gestures through a freshly built pipeline.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	log := logger.Get().Named("simulate")
	if cfg.Session == "" {
		cfg.Session = store.NewSessionID()
	}
	if !store.ValidSession(cfg.Session) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidSession, cfg.Session)
	}

	report := &Report{
		Session:   cfg.Session,
		Strategy:  cfg.Strategy,
		StartTime: time.Now(),
	}

	mem := store.NewMemory(store.WithReady())
	bus := eventbus.New(eventbus.WithChannels(channels.Known()...))
	defer bus.Close()
	events := &eventCounter{counts: make(map[string]int)}
	events.attach(bus)

	left, right := device.NewSimDevice(), device.NewSimDevice()
	provider := device.NewSimProvider()
	provider.Attach(device.NodeLeftHand, left)
	provider.Attach(device.NodeRightHand, right)

	classifier := NewClassifier(mem)
	if err := classifier.Prime(ctx); err != nil {
		return nil, err
	}

	svc := app.New(
		app.WithStore(mem),
		app.WithBus(bus),
		app.WithProvider(provider),
		app.WithSession(cfg.Session),
		app.WithStrategy(cfg.Strategy),
		app.WithThreshold(cfg.Threshold),
		app.WithAlsoWriteSingles(cfg.AlsoWriteSingles),
		app.WithPredictionTimeout(cfg.PredictionTimeout),
		app.WithBackgroundLoops(false),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	defer svc.Stop()

	log.Info(ctx, "starting simulation",
		logger.String("session", cfg.Session),
		logger.String("strategy", cfg.Strategy),
		logger.Int("gestures", len(cfg.Gestures)))

	for i, g := range cfg.Gestures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dev := right
		if g.Hand == model.HandLeft {
			dev = left
		}

		seen := len(mem.Batches(cfg.Session))
		play(ctx, svc, dev, g, cfg.StepDelay)
		if err := svc.Strategy().Drain(ctx); err != nil {
			return nil, fmt.Errorf("gesture %d: %w", i, err)
		}

		var recorded []model.Sample
		for _, b := range mem.Batches(cfg.Session)[seen:] {
			recorded = append(recorded, b.Samples...)
		}
		if len(recorded) == 0 {
			log.Debug(ctx, "gesture produced no batch", logger.Int("gesture", i))
			continue
		}

		msg := classifier.Classify(g.Hand, recorded)
		if err := classifier.Publish(ctx, msg); err != nil {
			return nil, fmt.Errorf("gesture %d: %w", i, err)
		}
		report.Predictions = append(report.Predictions, msg)
		svc.Tick(ctx)
		report.Gestures++
	}

	report.Batches = len(mem.Batches(cfg.Session))
	recent, err := mem.ReadRecent(ctx, cfg.Session, math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("read back: %w", err)
	}
	report.Samples = len(recent)
	report.Events = events.snapshot()
	report.Duration = time.Since(report.StartTime)

	logReport(ctx, log, report)
	return report, nil
}

// play holds the grip for g.Steps samples along a half-sine speed profile,
// then releases it.
func play(ctx context.Context, svc *app.Service, dev *device.SimDevice, g Gesture, delay time.Duration) {
	dev.SetGripButton(true)
	pos := model.Vec3{}
	for i := 0; i < g.Steps; i++ {
		phase := 1.0
		if g.Steps > 1 {
			phase = float64(i) / float64(g.Steps-1)
		}
		speed := g.Peak * math.Sin(math.Pi*phase)
		vel := model.Vec3{X: speed}
		pos = pos.Add(vel.Scale(delay.Seconds()))
		dev.SetMotion(pos, vel)

		svc.PollDevices(ctx)
		svc.Tick(ctx)
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	dev.SetMotion(pos, model.Vec3{})
	dev.SetGripButton(false)
	svc.Tick(ctx)
}

func logReport(ctx context.Context, log logger.Logger, r *Report) {
	fields := []logger.Field{
		logger.String("session", r.Session),
		logger.String("strategy", r.Strategy),
		logger.Int("gestures", r.Gestures),
		logger.Int("batches", r.Batches),
		logger.Int("samples", r.Samples),
		logger.Int("predictions", len(r.Predictions)),
		logger.String("duration", r.Duration.String()),
	}
	for _, name := range channels.Known() {
		if n := r.Events[name]; n > 0 {
			fields = append(fields, logger.Int(name, n))
		}
	}
	log.Info(ctx, "simulation finished", fields...)
}

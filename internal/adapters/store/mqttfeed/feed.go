// Package mqttfeed carries the realtime sample and prediction feeds over MQTT.
//
// Both feeds use retained messages: a sample is retained on its own topic so a
// wildcard subscription replays the session before live appends, and the
// prediction topic retains its last value, which is replayed on attach.
package mqttfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

const (
	backend            = "mqtt"
	resubscribeTimeout = 10 * time.Second
)

// ClientConfig holds MQTT client configuration.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// OnConnect runs after every successful (re)connect.
	OnConnect func()
	// OnConnectionLost runs when an established connection drops.
	OnConnectionLost func(error)
}

// Open builds a client and a Feed on it, wired so the feed restores its
// subscriptions after a reconnect and reports connection loss to them.
// Nothing is connected yet.
func Open(cfg ClientConfig, paths store.Paths, opts ...Option) *Feed {
	var f *Feed
	cfg.OnConnect = func() {
		ctx, cancel := context.WithTimeout(context.Background(), resubscribeTimeout)
		defer cancel()
		f.Resubscribe(ctx)
	}
	cfg.OnConnectionLost = func(err error) { f.ConnectionLost(err) }
	f = New(NewClient(cfg), paths, opts...)
	return f
}

// NewClient builds an auto-reconnecting client without connecting it.
func NewClient(cfg ClientConfig) mqtt.Client {
	log := logger.Get().Named("store.mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info(context.Background(), "mqtt connection established", logger.String("broker", cfg.Broker))
		if cfg.OnConnect != nil {
			cfg.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn(context.Background(), "mqtt connection lost", logger.Error(err))
		if cfg.OnConnectionLost != nil {
			cfg.OnConnectionLost(err)
		}
	})
	return mqtt.NewClient(opts)
}

// Feed publishes and subscribes to the realtime topics.
type Feed struct {
	client mqtt.Client
	paths  store.Paths
	qos    byte
	logger logger.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// Option configures a Feed.
type Option func(*Feed)

// WithQoS sets the QoS used for publishes and subscriptions.
func WithQoS(qos byte) Option {
	return func(f *Feed) {
		if qos <= 2 {
			f.qos = qos
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Feed on client.
func New(client mqtt.Client, paths store.Paths, opts ...Option) *Feed {
	f := &Feed{
		client: client,
		paths:  paths,
		qos:    1,
		logger: logger.Get().Named("store.mqtt"),
		subs:   make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect connects the client and waits for the broker to accept.
func (f *Feed) Connect(ctx context.Context) error {
	if f.client.IsConnected() {
		return nil
	}
	if err := wait(ctx, f.client.Connect()); err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	return nil
}

// Connected reports whether the client is connected.
func (f *Feed) Connected() bool {
	return f.client.IsConnected()
}

// Close disconnects the client.
func (f *Feed) Close() error {
	f.client.Disconnect(250)
	return nil
}

// PublishSample retains s on its own topic.
func (f *Feed) PublishSample(ctx context.Context, session, key string, s model.Sample) (err error) {
	start := time.Now()
	defer func() { observe("publish_sample", start, err) }()

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	topic := SampleTopic(f.paths, session, key)
	if err := wait(ctx, f.client.Publish(topic, f.qos, true, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishPrediction overwrites the retained prediction record.
func (f *Feed) PublishPrediction(ctx context.Context, raw []byte) (err error) {
	start := time.Now()
	defer func() { observe("publish_prediction", start, err) }()

	topic := PredictionTopic(f.paths)
	if err := wait(ctx, f.client.Publish(topic, f.qos, true, raw)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SubscribeNewSamples implements store.SampleFeed.
//
// After a reconnect the broker replays the whole session again; samples whose
// topic was already delivered are skipped.
func (f *Feed) SubscribeNewSamples(ctx context.Context, session string, onSample func(model.Sample), onError func(error)) (store.Subscription, error) {
	if !store.ValidSession(session) {
		return nil, fmt.Errorf("subscribe samples %q: %w", session, store.ErrInvalidSession)
	}
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	return f.subscribe(ctx, SampleFilter(f.paths, session), onError, func(msg mqtt.Message, replay bool) {
		mu.Lock()
		_, dup := seen[msg.Topic()]
		seen[msg.Topic()] = struct{}{}
		mu.Unlock()
		if replay && dup {
			return
		}
		var s model.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			if onError != nil {
				onError(fmt.Errorf("%w: %s: %w", store.ErrDecode, msg.Topic(), err))
			}
			return
		}
		onSample(s)
	})
}

// SubscribeLatestPrediction implements store.PredictionFeed.
//
// The retained record replayed after a reconnect predates it and is dropped.
func (f *Feed) SubscribeLatestPrediction(ctx context.Context, onPrediction func(raw []byte), onError func(error)) (store.Subscription, error) {
	return f.subscribe(ctx, PredictionTopic(f.paths), onError, func(msg mqtt.Message, replay bool) {
		if replay {
			return
		}
		onPrediction(append([]byte(nil), msg.Payload()...))
	})
}

func (f *Feed) subscribe(ctx context.Context, filter string, onError func(error), deliver func(msg mqtt.Message, replay bool)) (store.Subscription, error) {
	sub := &subscription{feed: f, filter: filter, onError: onError}
	sub.handler = func(_ mqtt.Client, msg mqtt.Message) {
		if !sub.closed.Load() {
			deliver(msg, msg.Retained() && sub.resumed.Load())
		}
	}
	if err := wait(ctx, f.client.Subscribe(filter, f.qos, sub.handler)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", filter, err)
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	f.logger.Debug(ctx, "subscribed", logger.String("filter", filter))
	return sub, nil
}

func (f *Feed) live() []*subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*subscription, 0, len(f.subs))
	for sub := range f.subs {
		if !sub.closed.Load() {
			out = append(out, sub)
		}
	}
	return out
}

// Resubscribe restores every open subscription on the current connection.
// It returns the number restored; failures go to the subscription's error
// callback.
func (f *Feed) Resubscribe(ctx context.Context) int {
	restored := 0
	for _, sub := range f.live() {
		sub.resumed.Store(true)
		if err := wait(ctx, f.client.Subscribe(sub.filter, f.qos, sub.handler)); err != nil {
			f.logger.Warn(ctx, "mqtt resubscribe failed",
				logger.String("filter", sub.filter),
				logger.Error(err))
			sub.report(fmt.Errorf("resubscribe %s: %w", sub.filter, err))
			continue
		}
		restored++
	}
	if restored > 0 {
		f.logger.Info(ctx, "mqtt subscriptions restored", logger.Int("count", restored))
	}
	return restored
}

// ConnectionLost reports err to every open subscription.
func (f *Feed) ConnectionLost(err error) {
	for _, sub := range f.live() {
		sub.report(fmt.Errorf("%w: %w", store.ErrDisconnected, err))
	}
}

type subscription struct {
	feed    *Feed
	filter  string
	handler mqtt.MessageHandler
	onError func(error)
	resumed atomic.Bool
	closed  atomic.Bool
	once    sync.Once
}

func (s *subscription) report(err error) {
	if s.onError != nil && !s.closed.Load() {
		s.onError(err)
	}
}

// Close stops delivery at once. The broker unsubscribe completes in the
// background because Close may run inside a message handler.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		tok := s.feed.client.Unsubscribe(s.filter)
		go func() {
			<-tok.Done()
			if err := tok.Error(); err != nil {
				s.feed.logger.Warn(context.Background(), "mqtt unsubscribe failed",
					logger.String("filter", s.filter),
					logger.Error(err))
			}
		}()
	})
	return nil
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOp(backend, op, float64(time.Since(start).Microseconds())/1000, err)
}

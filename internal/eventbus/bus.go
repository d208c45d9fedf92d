// Package eventbus provides a string-keyed publish/subscribe bus.
//
// Handlers run synchronously on the publishing goroutine, in subscription
// order. The channel table is guarded by a mutex, but handlers are invoked
// outside of it on a snapshot, so a handler may subscribe or unsubscribe
// re-entrantly without deadlocking.
//
// Basic usage:
//
//	bus := eventbus.New(eventbus.WithChannels(channels.Known()...))
//	defer bus.Close()
//
//	sub := bus.Subscribe(channels.NoTap, func() { ... })
//	bus.Publish(channels.NoTap)
//	bus.Unsubscribe(channels.NoTap, sub)
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

// deliverFunc receives a publish; it returns false when the payload was skipped.
type deliverFunc func(payload any, hasPayload bool) bool

// Subscription is the handle returned by Subscribe. Its identity is what
// Unsubscribe removes, since Go function values are not comparable.
type Subscription struct {
	id      uint64
	channel string
	deliver deliverFunc
	bus     *Bus
}

// Channel returns the channel the subscription is attached to.
func (s *Subscription) Channel() string { return s.channel }

// Cancel detaches the subscription from its bus. Safe to call repeatedly.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Unsubscribe(s.channel, s)
}

// Stats is a point-in-time view of bus activity.
type Stats struct {
	Channels    int    `json:"channels"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Skipped     uint64 `json:"skipped"`
}

// Bus is a process-wide event bus owned by the composition root.
type Bus struct {
	mu       sync.RWMutex
	channels map[string][]*Subscription
	closed   bool

	nextID    atomic.Uint64
	published atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64

	logger logger.Logger
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		channels: make(map[string][]*Subscription),
		logger:   logger.Get().Named("eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnsureChannel creates the channel if it does not exist yet. Blank names are ignored.
func (b *Bus) EnsureChannel(name string) {
	if name == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureLocked(name)
}

func (b *Bus) ensureLocked(name string) {
	if b.closed {
		return
	}
	if _, ok := b.channels[name]; !ok {
		b.channels[name] = nil
	}
}

// HasChannel reports whether name is present in the channel table.
func (b *Bus) HasChannel(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.channels[name]
	return ok
}

// Subscribe attaches a payload-less handler. It is invoked for every publish on
// the channel, with or without payload. A nil handler yields a nil subscription.
func (b *Bus) Subscribe(name string, fn func()) *Subscription {
	if fn == nil {
		return nil
	}
	return b.add(name, func(any, bool) bool {
		fn()
		return true
	})
}

// SubscribeTyped attaches a handler that only receives payloads of type T.
// Publishes without a payload, or with a payload of another type, skip it.
func SubscribeTyped[T any](b *Bus, name string, fn func(T)) *Subscription {
	if fn == nil {
		return nil
	}
	return b.add(name, func(payload any, hasPayload bool) bool {
		if !hasPayload {
			return false
		}
		v, ok := payload.(T)
		if !ok {
			return false
		}
		fn(v)
		return true
	})
}

func (b *Bus) add(name string, deliver deliverFunc) *Subscription {
	sub := &Subscription{
		id:      b.nextID.Add(1),
		channel: name,
		deliver: deliver,
		bus:     b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.bus = nil
		return sub
	}
	// Copy-on-write keeps snapshots taken by in-progress publishes intact.
	current := b.channels[name]
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	b.channels[name] = append(next, sub)
	return sub
}

// Unsubscribe removes exactly the given subscription from the channel.
// Unknown, already removed, or nil subscriptions are a no-op.
func (b *Bus) Unsubscribe(name string, sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.channels[name]
	if !ok {
		return
	}
	for i, s := range current {
		if s != sub {
			continue
		}
		next := make([]*Subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		b.channels[name] = next
		return
	}
}

// Publish invokes every handler subscribed to name without a payload.
// Publishing to an unknown channel is a silent no-op.
func (b *Bus) Publish(name string) {
	b.publish(name, nil, false)
}

// PublishPayload invokes every handler subscribed to name with payload.
// Typed handlers whose type does not match are skipped.
func (b *Bus) PublishPayload(name string, payload any) {
	b.publish(name, payload, true)
}

func (b *Bus) publish(name string, payload any, hasPayload bool) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	snapshot, ok := b.channels[name]
	b.mu.RUnlock()

	if !ok {
		b.logger.Debug(context.Background(), "publish to unknown channel", logger.String("channel", name))
		return
	}

	b.published.Add(1)
	delivered := 0
	for _, sub := range snapshot {
		if sub.deliver(payload, hasPayload) {
			delivered++
			continue
		}
		b.skipped.Add(1)
		metrics.RecordBusSkipped(name)
	}
	b.delivered.Add(uint64(delivered))
	metrics.RecordBusPublish(name, delivered)
}

// Subscribers returns the number of handlers currently on name.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[name])
}

// Channels returns the names in the channel table.
func (b *Bus) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.channels))
	for name := range b.channels {
		out = append(out, name)
	}
	return out
}

// Clear drops every channel and handler. The bus stays usable.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = make(map[string][]*Subscription)
}

// Close disposes the bus. Later publishes and subscribes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.channels = make(map[string][]*Subscription)
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	channels := len(b.channels)
	subscribers := 0
	for _, subs := range b.channels {
		subscribers += len(subs)
	}
	b.mu.RUnlock()

	return Stats{
		Channels:    channels,
		Subscribers: subscribers,
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Skipped:     b.skipped.Load(),
	}
}

package eventbus

// Topic binds a channel name to the payload type it carries, so call sites
// that know the type never rely on dynamic filtering.
type Topic[T any] struct {
	name string
}

// NewTopic declares a typed topic on the named channel.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// Name returns the underlying channel name.
func (t Topic[T]) Name() string { return t.name }

// Subscribe attaches a typed handler to the topic.
func (t Topic[T]) Subscribe(b *Bus, fn func(T)) *Subscription {
	return SubscribeTyped(b, t.name, fn)
}

// Publish sends v to the topic. Payload-less subscribers on the same channel fire too.
func (t Topic[T]) Publish(b *Bus, v T) {
	b.PublishPayload(t.name, v)
}

package mqttfeed

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is an already completed token.
type doneToken struct {
	mqtt.Token
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	mqtt.Message
	topic    string
	payload  []byte
	retained bool
}

func (m message) Topic() string   { return m.topic }
func (m message) Payload() []byte { return m.payload }
func (m message) Retained() bool  { return m.retained }

// broker is an in-process MQTT client that keeps retained messages and
// delivers synchronously.
type broker struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	retained  map[string][]byte
	order     []string
	handlers  map[string]mqtt.MessageHandler
	failSub   error
	failPub   error
}

func newBroker() *broker {
	return &broker{
		retained: make(map[string][]byte),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (b *broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *broker) Connect() mqtt.Token {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return doneToken{}
}

func (b *broker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *broker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	if b.failPub != nil {
		return doneToken{err: b.failPub}
	}
	raw := payload.([]byte)
	b.mu.Lock()
	if retained {
		if _, ok := b.retained[topic]; !ok {
			b.order = append(b.order, topic)
		}
		b.retained[topic] = raw
	}
	var hs []mqtt.MessageHandler
	for filter, h := range b.handlers {
		if matches(filter, topic) {
			hs = append(hs, h)
		}
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(b, message{topic: topic, payload: raw})
	}
	return doneToken{}
}

func (b *broker) Subscribe(filter string, _ byte, h mqtt.MessageHandler) mqtt.Token {
	if b.failSub != nil {
		return doneToken{err: b.failSub}
	}
	b.mu.Lock()
	b.handlers[filter] = h
	var replay []message
	for _, topic := range b.order {
		if matches(filter, topic) {
			replay = append(replay, message{topic: topic, payload: b.retained[topic], retained: true})
		}
	}
	b.mu.Unlock()

	for _, m := range replay {
		h(b, m)
	}
	return doneToken{}
}

func (b *broker) Unsubscribe(filters ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range filters {
		delete(b.handlers, f)
	}
	return doneToken{}
}

// restart drops every subscription, as a broker does for a clean session
// after the connection is lost.
func (b *broker) restart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]mqtt.MessageHandler)
}

func (b *broker) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// matches reports whether topic matches an MQTT filter with + and # wildcards.
func matches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, seg := range f {
		if seg == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if seg != "+" && seg != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

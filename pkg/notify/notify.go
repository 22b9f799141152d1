// Package notify carries small change announcements between writers and live
// readers, either inside one process or across instances.
package notify

import (
	"context"
	"sync"
)

// Handler receives a published payload. Handlers must not block.
type Handler func(payload []byte)

// Notifier publishes payloads on a topic and fans them out to listeners.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Listen registers fn for topic. The returned cancel func is idempotent and
	// guarantees fn is not invoked once it returns; it must not be called from fn.
	Listen(ctx context.Context, topic string, fn Handler) (cancel func(), err error)
}

// Local is an in-process Notifier.
type Local struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler

	// inflight is read-held while handlers run so cancel can wait them out.
	inflight sync.RWMutex
}

// NewLocal returns an empty in-process hub.
func NewLocal() *Local {
	return &Local{subs: make(map[string]map[uint64]Handler)}
}

// Publish delivers payload synchronously to every listener of topic.
func (l *Local) Publish(_ context.Context, topic string, payload []byte) error {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.subs[topic]))
	for id := range l.subs[topic] {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	l.inflight.RLock()
	defer l.inflight.RUnlock()
	for _, id := range ids {
		if fn := l.handler(topic, id); fn != nil {
			fn(payload)
		}
	}
	return nil
}

// Listen registers fn on topic.
func (l *Local) Listen(_ context.Context, topic string, fn Handler) (func(), error) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	if l.subs[topic] == nil {
		l.subs[topic] = make(map[uint64]Handler)
	}
	l.subs[topic][id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs[topic], id)
			if len(l.subs[topic]) == 0 {
				delete(l.subs, topic)
			}
			l.mu.Unlock()

			l.inflight.Lock()
			l.inflight.Unlock()
		})
	}, nil
}

// Listeners reports how many handlers are registered on topic.
func (l *Local) Listeners(topic string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[topic])
}

func (l *Local) handler(topic string, id uint64) Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.subs[topic][id]
}

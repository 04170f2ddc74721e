// Package events fans out layer notifications (network status, rate limit
// hits, cache stats, queue status) to UI-side subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/storeguard/internal/core/domain"
)

// Emitter defines the interface for emitting layer events
type Emitter interface {
	// Emit delivers a single event
	Emit(ctx context.Context, event *domain.Event) error

	// Close stops delivery
	Close() error
}

// Handler receives events of the types it subscribed to.
type Handler func(domain.Event)

type subscription struct {
	types   map[domain.EventType]struct{} // empty means all
	handler Handler
}

// Bus is a synchronous in-process Emitter. Handlers run on the emitting
// goroutine; a panicking handler is logged and skipped.
type Bus struct {
	log *slog.Logger
	now func() time.Time

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	recent []domain.Event
	keep   int
	closed bool
}

// NewBus creates a bus that remembers the last keep events.
func NewBus(log *slog.Logger, keep int) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:  log,
		now:  time.Now,
		subs: make(map[uint64]*subscription),
		keep: keep,
	}
}

// Subscribe registers h for the given types, or for every type when none
// are given. The returned func unsubscribes; calling it twice is safe.
func (b *Bus) Subscribe(h Handler, types ...domain.EventType) (unsubscribe func()) {
	sub := &subscription{handler: h, types: make(map[domain.EventType]struct{}, len(types))}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Emit stamps the event if needed and delivers it to matching handlers.
func (b *Bus) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	if event.At.IsZero() {
		event.At = b.now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	if b.keep > 0 {
		b.recent = append(b.recent, *event)
		if len(b.recent) > b.keep {
			b.recent = b.recent[len(b.recent)-b.keep:]
		}
	}
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if len(s.types) == 0 {
			handlers = append(handlers, s.handler)
			continue
		}
		if _, ok := s.types[event.Type]; ok {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, *event)
	}
	return ctx.Err()
}

// Publish is Emit without a context, for callbacks that have none.
func (b *Bus) Publish(t domain.EventType, payload any) {
	_ = b.Emit(context.Background(), &domain.Event{Type: t, Payload: payload})
}

func (b *Bus) deliver(h Handler, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked", "type", e.Type, "panic", r)
		}
	}()
	h(e)
}

// Recent returns the remembered events, oldest first.
func (b *Bus) Recent() []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Event, len(b.recent))
	copy(out, b.recent)
	return out
}

// Close drops every subscription. Later emits are ignored.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[uint64]*subscription)
	return nil
}

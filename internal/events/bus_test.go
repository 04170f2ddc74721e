package events

import (
	"context"
	"testing"

	"github.com/vietddude/storeguard/internal/core/domain"
)

func TestBus_FiltersByType(t *testing.T) {
	b := NewBus(nil, 0)

	var all, hits int
	b.Subscribe(func(domain.Event) { all++ })
	b.Subscribe(func(e domain.Event) {
		hits++
		if _, ok := e.Payload.(domain.RateLimitHit); !ok {
			t.Errorf("payload = %T", e.Payload)
		}
	}, domain.EventRateLimitHit)

	b.Publish(domain.EventRateLimitHit, domain.RateLimitHit{Key: "GET /stores"})
	b.Publish(domain.EventQueueStatus, domain.QueueStatus{Length: 1})

	if all != 2 || hits != 1 {
		t.Errorf("all=%d hits=%d, want 2 and 1", all, hits)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(nil, 0)

	var n int
	unsub := b.Subscribe(func(domain.Event) { n++ })
	b.Publish(domain.EventCacheStats, nil)
	unsub()
	unsub()
	b.Publish(domain.EventCacheStats, nil)

	if n != 1 {
		t.Errorf("delivered %d times, want 1", n)
	}
}

func TestBus_PanickingHandler(t *testing.T) {
	b := NewBus(nil, 0)

	var delivered bool
	b.Subscribe(func(domain.Event) { panic("boom") })
	b.Subscribe(func(domain.Event) { delivered = true })

	if err := b.Emit(context.Background(), &domain.Event{Type: domain.EventNetworkStatusChanged}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !delivered {
		t.Error("second handler not reached")
	}
}

func TestBus_RecentAndClose(t *testing.T) {
	b := NewBus(nil, 2)

	for i := 0; i < 3; i++ {
		b.Publish(domain.EventQueueStatus, domain.QueueStatus{Length: i})
	}
	recent := b.Recent()
	if len(recent) != 2 {
		t.Fatalf("recent = %d events, want 2", len(recent))
	}
	if recent[0].Payload.(domain.QueueStatus).Length != 1 {
		t.Errorf("oldest kept = %+v", recent[0])
	}
	if recent[1].At.IsZero() {
		t.Error("event not stamped")
	}

	var n int
	b.Subscribe(func(domain.Event) { n++ })
	b.Close()
	b.Publish(domain.EventQueueStatus, nil)
	if n != 0 {
		t.Error("delivered after Close")
	}
}

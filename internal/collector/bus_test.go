package collector_test

import (
	"testing"

	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := collector.NewBus()
	sub := b.Subscribe(4)

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	b.Publish(event.Event{Kind: event.KindHeartbeat})

	select {
	case got := <-sub:
		if got.Kind != event.KindHeartbeat {
			t.Errorf("got kind %v, want %v", got.Kind, event.KindHeartbeat)
		}
	default:
		t.Fatal("expected a buffered event, got none")
	}

	b.Unsubscribe(sub)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after Unsubscribe = %d, want 0", got)
	}
}

func TestBus_PublishDropsWhenFull(t *testing.T) {
	b := collector.NewBus()
	sub := b.Subscribe(1)

	b.Publish(event.Event{Kind: event.KindUpdate})
	b.Publish(event.Event{Kind: event.KindEnd}) // dropped, buffer full

	got := <-sub
	if got.Kind != event.KindUpdate {
		t.Errorf("got kind %v, want %v", got.Kind, event.KindUpdate)
	}
	select {
	case extra := <-sub:
		t.Errorf("expected no further event, got %v", extra.Kind)
	default:
	}
}

func TestBus_NilSafe(t *testing.T) {
	var b *collector.Bus
	b.Publish(event.Event{Kind: event.KindHeartbeat}) // must not panic
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

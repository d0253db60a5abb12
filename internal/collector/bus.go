// Package collector defines the contract every portal collector
// implementation (browser-driven, direct-HTTP, scripted mock) must
// satisfy, plus the event bus collectors publish onto.
package collector

import (
	"sync"

	"github.com/jholdgaard/subastamon/internal/event"
)

// Bus is a non-blocking broadcast bus for collector-produced events.
// Subscribers receive events on buffered channels; a slow subscriber
// misses events rather than blocking the collector. The zero value is
// not ready for use; call NewBus. A nil *Bus is safe to Publish on.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan event.Event]struct{}
	recvToSend map[<-chan event.Event]chan event.Event
}

// NewBus creates a new event bus ready for use.
func NewBus() *Bus {
	return &Bus{
		subs:       make(map[chan event.Event]struct{}),
		recvToSend: make(map[<-chan event.Event]chan event.Event),
	}
}

// Publish sends e to every subscriber. Safe to call on a nil receiver.
func (b *Bus) Publish(e event.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to release it.
func (b *Bus) Subscribe(bufSize int) <-chan event.Event {
	ch := make(chan event.Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to
// call with an already-unsubscribed channel.
func (b *Bus) Unsubscribe(ch <-chan event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

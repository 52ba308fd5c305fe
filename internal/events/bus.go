// Package events fans editor and store notifications out to subscribers
// such as websocket clients.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/pitabwire/cardforge/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Bus is an in-process publish/subscribe hub. Publishing never blocks: a
// subscriber whose queue is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan model.Event
	next    uint64
	buffer  int
	dropped atomic.Uint64
}

// NewBus creates a Bus with the given per-subscriber buffer. Non-positive
// values select DefaultBuffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[uint64]chan model.Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel function removes it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan model.Event, func()) {
	ch := make(chan model.Event, b.buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room in its queue.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

package driver

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 16

// Broadcaster fans frames out to subscribers without blocking the publisher.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Frame
	next    uint64
	buffer  int
	dropped atomic.Uint64
}

// NewBroadcaster creates a fan-out sink with per-subscriber buffers of size buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{subs: make(map[uint64]chan Frame), buffer: buffer}
}

// Subscribe registers a new receiver. The returned cancel func closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, b.buffer)
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

// Publish delivers frame to every subscriber with room in its buffer.
func (b *Broadcaster) Publish(frame Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts frames skipped because a subscriber was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

package broadcast

import (
	"sync"
	"sync/atomic"
)

// Bus is the per-lobby multi-subscriber fan-out channel. Delivery is
// at-most-once with a bounded per-subscriber backlog: a consumer that
// falls behind misses messages rather than stalling the engine. The
// snapshot store, not the bus, is the durable record clients resync
// from.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int64]chan Message
	nextID  int64
	backlog int
	closed  bool

	// dropped counts messages discarded because a subscriber backlog was
	// full; read by the metrics layer.
	dropped atomic.Int64
}

// NewBus creates a bus whose subscribers each buffer up to backlog
// messages. Backlog is typically sized to the lobby's max player count.
func NewBus(backlog int) *Bus {
	if backlog < 1 {
		backlog = 1
	}
	return &Bus{
		subs:    make(map[int64]chan Message),
		backlog: backlog,
	}
}

// Subscribe registers a consumer. The returned cancel func must be
// called exactly once; the channel is closed by cancel or by Close.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Message, b.backlog)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans msg out to every subscriber, dropping it for any whose
// backlog is full. Returns the number of subscribers that received it.
func (b *Bus) Publish(msg Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- msg:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the current consumer count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of messages discarded so far.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close tears the bus down, closing every subscriber channel. Used when
// a lobby is deleted.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

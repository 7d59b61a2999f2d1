// Package broadcast provides a small publish/subscribe primitive used for
// the per-slice update streams (messages, game snapshots, timers,
// connectivity, identity). The last published value is replayed to late
// subscribers, and per-subscriber buffers are bounded: a slow subscriber
// loses its oldest pending value, never blocks the publisher.
package broadcast

import "sync"

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 16

// Broadcaster fans out values of type T to any number of subscribers.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	last    T
	hasLast bool
	closed  bool
	buffer  int
}

// New creates a Broadcaster with the default per-subscriber buffer.
func New[T any]() *Broadcaster[T] {
	return NewBuffered[T](defaultBuffer)
}

// NewBuffered creates a Broadcaster whose subscriber channels hold up to
// buffer pending values.
func NewBuffered[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster[T]{
		subs:   make(map[int]chan T),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. If a value has already been
// published, it is replayed immediately. The returned cancel function
// removes the subscription and closes the channel.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.hasLast {
		ch <- b.last
	}

	id := b.nextID
	b.nextID++
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

// Publish delivers v to every subscriber and records it for replay.
// A subscriber whose buffer is full loses its oldest pending value.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = v
	b.hasLast = true

	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Full buffer: evict the oldest value to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Last returns the most recently published value, if any.
func (b *Broadcaster[T]) Last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Close terminates all subscriptions. Publish becomes a no-op.
func (b *Broadcaster[T]) Close() {
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

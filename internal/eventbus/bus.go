// Package eventbus provides a typed in-memory fan-out bus.
//
// The element type is fixed per bus instance, so subscribers get
// compile-time payload safety instead of type-switching on `any`.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Bus is a simple in-memory fanout bus for values of type T.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// It intentionally does not own any background goroutines.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[uint64]chan T
	seq  atomic.Uint64
}

func New[T any]() *Bus[T] {
	return &Bus[T]{subs: map[uint64]chan T{}}
}

func (b *Bus[T]) Publish(e T) {
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan T, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan T, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}

// SubscriberCount reports the number of attached subscribers (observability only).
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Package signal provides small typed broadcast buses for the signals the
// sync engine emits: new session data, new events, login transitions and the
// error channels. Listeners receive on buffered channels; a listener that
// falls behind loses intermediate values instead of blocking the publisher,
// because a stalled view must never stall the polling schedule.
package signal

import "sync"

// listenerBuffer is the per-listener channel capacity. Consumers that only
// care about the latest value can drain lazily; bursts beyond the buffer are
// dropped for that listener.
const listenerBuffer = 16

// Bus broadcasts values of type T to any number of listeners.
// The zero value is ready to use.
type Bus[T any] struct {
	mu        sync.Mutex
	listeners []chan T
}

// Listen registers a new listener and returns its receive channel.
// The channel is never closed; listeners stop reading when their context ends.
func (b *Bus[T]) Listen() <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := make(chan T, listenerBuffer)
	b.listeners = append(b.listeners, l)
	return l
}

// Emit broadcasts v to every listener without blocking. A full listener
// channel drops this value for that listener only.
func (b *Bus[T]) Emit(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.listeners {
		select {
		case l <- v:
		default:
		}
	}
}

// Len reports the number of registered listeners.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

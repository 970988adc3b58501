// Package pubsub fans values out from one publisher to many
// subscribers. The live log feed rides on it: every log entry is
// published to a process-wide broker and each SSE client subscribes
// for the duration of its request.
package pubsub

import (
	"context"
	"sync"
)

// DefaultBuffer is each subscriber's channel capacity.
const DefaultBuffer = 64

// Broker delivers every published value to every subscriber. Publish
// never blocks: a subscriber that stops draining loses values instead
// of stalling the publisher.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	buffer int
	closed bool
}

// New creates a broker whose subscriber channels hold up to buffer
// values; buffer <= 0 means DefaultBuffer.
func New[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{subs: make(map[chan T]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. The returned channel closes when
// ctx ends or the broker closes, whichever comes first.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan T)
		close(ch)
		return ch
	}

	ch := make(chan T, b.buffer)
	b.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			// Close already shut this channel down.
			return
		}
		delete(b.subs, ch)
		close(ch)
	}()

	return ch
}

// Publish hands v to every subscriber with buffer room.
func (b *Broker[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Subscribers reports the active subscriber count.
func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

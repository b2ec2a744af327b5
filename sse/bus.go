package sse

import "sync"

// bus fans messages out to every registered channel, retaining the most recent
// messages so that reconnecting clients can catch up
type bus[T any] struct {
	mu      sync.Mutex
	chs     map[chan T]struct{}
	history []T
	limit   int
	eventId func(T) string
}

// register subscribes ch to future messages and returns the retained messages that
// followed lastEventId. Both happen under one lock, so no message is missed or
// repeated in between.
func (b *bus[T]) register(ch chan T, lastEventId string) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chs[ch] = struct{}{}
	return b.since(lastEventId)
}

func (b *bus[T]) unregister(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chs, ch)
}

// publish retains message and sends it to every subscriber. A subscriber whose buffer
// is full misses the message rather than blocking the others.
func (b *bus[T]) publish(message T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 {
		if len(b.history) == b.limit {
			b.history = append(b.history[:0], b.history[1:]...)
		}
		b.history = append(b.history, message)
	}
	for ch := range b.chs {
		select {
		case ch <- message:
		default:
		}
	}
}

func (b *bus[T]) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.chs)
}

func (b *bus[T]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chs)
}

// since returns the retained messages after the one identified by lastEventId. If that
// message is no longer retained, every retained message is returned.
func (b *bus[T]) since(lastEventId string) []T {
	if lastEventId == "" || b.eventId == nil {
		return nil
	}
	for i, message := range b.history {
		if b.eventId(message) == lastEventId {
			return append([]T(nil), b.history[i+1:]...)
		}
	}
	return append([]T(nil), b.history...)
}

package pubsub

import "sync"

// Topic is a typed listener registry. Listeners are called synchronously, in
// subscription order, on the publisher goroutine.
type Topic[T any] struct {
	lock      sync.RWMutex
	nextID    int
	listeners []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns the function that removes it.
// Calling the returned function more than once is a no-op.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener[T]{id, fn})

	return func() {
		t.lock.Lock()
		defer t.lock.Unlock()

		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every listener with the given event.
func (t *Topic[T]) Publish(event T) {
	t.lock.RLock()
	listeners := append([]listener[T]{}, t.listeners...)
	t.lock.RUnlock()

	for _, l := range listeners {
		l.fn(event)
	}
}

// Len returns the number of listeners.
func (t *Topic[T]) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.listeners)
}

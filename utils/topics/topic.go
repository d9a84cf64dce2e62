// Package topics implements small in-process pub/sub topics with typed
// values.
package topics

import (
	"context"
	"sync"
)

// Topic fans published values out to its subscribers. Publish blocks
// until every subscriber has taken delivery, so a slow consumer slows
// the publisher down instead of missing values.
type Topic[T any] struct {
	mu      sync.Mutex
	subs    map[subID]chan<- T
	nextID  subID
	last    T
	hasLast bool
}

// New returns a Topic with no subscribers and no published value.
func New[T any]() *Topic[T] {
	return &Topic[T]{
		subs: make(map[subID]chan<- T),
	}
}

// Publish delivers v to every current subscriber and records it as the
// last published value.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = v
	t.hasLast = true
	for _, ch := range t.subs {
		ch <- v
	}
}

// Last returns the most recently published value, if anything was
// published yet.
func (t *Topic[T]) Last() (value T, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasLast {
		var zero T
		return zero, false
	}
	return t.last, true
}

// Subscribe registers a new subscriber and returns its Subscription,
// which must be closed when no longer consumed. The plain channel is
// unbuffered. With sendLast the channel has capacity 1 and is primed
// with the last published value, so a late subscriber still observes it.
func (t *Topic[T]) Subscribe(sendLast bool) *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ch chan T
	if sendLast {
		ch = make(chan T, 1)
	} else {
		ch = make(chan T)
	}

	t.nextID++
	id := t.nextID
	t.subs[id] = ch

	if sendLast && t.hasLast {
		// Cannot block: the channel has room and publishers wait on the
		// lock we hold.
		ch <- t.last
	}

	return &Subscription[T]{
		id:    id,
		topic: t,
		ch:    ch,
	}
}

// Handle consumes the topic with a callback. It returns when the
// callback fails, the subscription is closed or the context is done.
func (t *Topic[T]) Handle(ctx context.Context, fn func(T) error) error {
	sub := t.Subscribe(false)
	defer sub.Close()
	for {
		v, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// drop removes a subscription and closes its channel. Called through
// Subscription.Close.
func (t *Topic[T]) drop(id subID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.subs[id]
	if !ok {
		return
	}
	close(ch)
	delete(t.subs, id)
}

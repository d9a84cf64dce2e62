package topics

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Next after the subscription was closed.
var ErrClosed = errors.New("subscription closed")

// subID identifies a subscription within its own Topic.
type subID uint64

// Subscription receives the values published on a Topic. It must be
// closed with Close once no longer consumed, or publishers block on it
// forever.
type Subscription[T any] struct {
	id subID

	mu    sync.Mutex
	topic *Topic[T]
	ch    <-chan T
}

// Channel returns the receive channel. Close closes it.
func (s *Subscription[T]) Channel() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Next blocks for the next published value. It returns the context
// error on cancellation and ErrClosed after Close.
func (s *Subscription[T]) Next(ctx context.Context) (value T, err error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-s.Channel():
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	}
}

// Close detaches the subscription from its topic. It is safe to call
// more than once, from any goroutine.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.topic == nil {
		return
	}
	s.topic.drop(s.id)
	s.ch = nil
	s.topic = nil
}

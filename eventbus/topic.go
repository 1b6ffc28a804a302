// Package eventbus provides explicitly constructed publish/subscribe topics.
//
// By default a Topic is a state stream: slow subscribers never block
// publishers, each subscription buffers one value and a newer value
// replaces an unread older one. A topic built WithQueue is an event
// stream: every subscription receives every value in publish order.
package eventbus

import (
	"context"
	"sync"
)

// Option configures a Topic.
type Option[T any] func(*Topic[T])

// WithReplay makes the topic start with initial and replay the latest value
// to every new subscriber.
func WithReplay[T any](initial T) Option[T] {
	return func(t *Topic[T]) {
		t.replay = true
		t.last = initial
		t.hasLast = true
	}
}

// WithQueue makes every subscription an unbounded FIFO, so no value is
// dropped while a subscriber is busy. Use it for discrete events.
func WithQueue[T any]() Option[T] {
	return func(t *Topic[T]) { t.queued = true }
}

// Topic is a typed broadcast channel.
type Topic[T any] struct {
	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	queued  bool
	replay  bool
	last    T
	hasLast bool
}

// NewTopic creates a topic.
func NewTopic[T any](opts ...Option[T]) *Topic[T] {
	t := &Topic[T]{subs: make(map[*Subscription[T]]struct{})}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Subscription is a single consumer of a Topic.
type Subscription[T any] struct {
	topic *Topic[T]
	ch    chan T
	once  sync.Once

	// Queued topics only: pending values are moved to ch by pump.
	mu      sync.Mutex
	pending []T
	wake    chan struct{}
	done    chan struct{}
}

// C returns the delivery channel. It is closed after Cancel.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Cancel detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		delete(s.topic.subs, s)
		if s.done != nil {
			close(s.done)
		} else {
			close(s.ch)
		}
		s.topic.mu.Unlock()
	})
}

// Subscribe registers a new subscriber. On a replaying topic the latest
// value is delivered immediately.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{topic: t}
	if t.queued {
		s.ch = make(chan T)
		s.wake = make(chan struct{}, 1)
		s.done = make(chan struct{})
		go s.pump()
	} else {
		s.ch = make(chan T, 1)
	}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	if t.replay && t.hasLast {
		t.deliver(s, t.last)
	}
	t.mu.Unlock()
	return s
}

// push appends v to the pending queue and wakes the pump.
func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump forwards pending values to ch in order until Cancel. It owns ch
// and closes it on return.
func (s *Subscription[T]) pump() {
	defer close(s.ch)
	var zero T
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		v := s.pending[0]
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.ch <- v:
		case <-s.done:
			return
		}
	}
}

// Publish delivers v to every subscriber without blocking.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = v
	t.hasLast = true
	for s := range t.subs {
		t.deliver(s, v)
	}
}

// deliver hands v to s. Callers hold t.mu.
func (t *Topic[T]) deliver(s *Subscription[T], v T) {
	if t.queued {
		s.push(v)
		return
	}
	select {
	case s.ch <- v:
		return
	default:
	}
	// Full: drop the stale value and retry. The caller holds the lock, so
	// the only competitor is the reader, which can only make room.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

// Last returns the most recently published value.
func (t *Topic[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Count returns the number of live subscriptions.
func (t *Topic[T]) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Listen calls fn for every value received on sub until ctx is done or the
// subscription is cancelled. The subscription is cancelled on return.
func Listen[T any](ctx context.Context, sub *Subscription[T], fn func(T)) {
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			fn(v)
		}
	}
}

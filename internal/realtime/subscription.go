// Package realtime provides the live-query plumbing shared by every storage
// backend: cancellable subscriptions, predicate views over raw document
// upserts, and a topic bus used as the change feed.
package realtime

import (
	"context"
	"sync"
)

// ChangeKind mirrors document-store snapshot change kinds.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// Change is one delta of a live query result set.
type Change[T any] struct {
	Kind ChangeKind
	Doc  T
}

// Subscription is a long-lived listener. The producer goroutine sends
// changes until its context is done and then calls Finish; consumers read
// Events until it is closed. Cancel may be called any number of times.
type Subscription[T any] struct {
	events chan Change[T]
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewSubscription returns the subscription and the context its producer
// must watch.
func NewSubscription[T any](parent context.Context, buffer int) (*Subscription[T], context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription[T]{
		events: make(chan Change[T], buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Events is closed after the producer finishes.
func (s *Subscription[T]) Events() <-chan Change[T] {
	return s.events
}

// Done is closed after the producer finishes.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Cancel stops event delivery. Idempotent.
func (s *Subscription[T]) Cancel() {
	s.cancel()
}

// Err reports why the producer stopped; nil after a plain Cancel.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send delivers one change. It returns false once ctx is done.
func (s *Subscription[T]) Send(ctx context.Context, ch Change[T]) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish is called once by the producer on exit.
func (s *Subscription[T]) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.cancel()
		close(s.events)
		close(s.done)
	})
}

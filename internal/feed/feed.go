// Package feed turns write notifications into push streams of full result sets.
package feed

import (
	"context"
	"fmt"
	"sync"
)

// Notifier fans out "something under this topic changed" signals.
type Notifier interface {
	Notify(ctx context.Context, topic string) error
	Listen(ctx context.Context, topic string) (Listener, error)
}

// Listener receives coalesced change signals for one topic until closed.
type Listener interface {
	Signals() <-chan struct{}
	Close() error
}

// Subscription streams the complete current result set on start and after every change.
// Callers must Close it; an unclosed subscription keeps its listener alive.
type Subscription[T any] struct {
	updates chan []T
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	closeFn func() error
	err     error
}

// Watch subscribes to topic and reloads the result set with load on every signal.
func Watch[T any](ctx context.Context, n Notifier, topic string, load func(ctx context.Context) ([]T, error)) (*Subscription[T], error) {
	l, err := n.Listen(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", topic, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		updates: make(chan []T, 1),
		errs:    make(chan error, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
		closeFn: l.Close,
	}

	go s.run(watchCtx, l.Signals(), load)
	return s, nil
}

func (s *Subscription[T]) Updates() <-chan []T { return s.updates }

func (s *Subscription[T]) Errors() <-chan error { return s.errs }

// Close stops the stream and releases the listener. Safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.err = s.closeFn()
	})
	return s.err
}

func (s *Subscription[T]) run(ctx context.Context, signals <-chan struct{}, load func(ctx context.Context) ([]T, error)) {
	defer close(s.done)
	defer close(s.updates)
	defer close(s.errs)

	emit := func() {
		items, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			replace(s.errs, err)
			return
		}
		replace(s.updates, items)
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			emit()
		}
	}
}

// replace keeps only the newest value in a one-slot buffer so slow readers see the latest state.
func replace[V any](ch chan V, v V) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

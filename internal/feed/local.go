package feed

import (
	"context"
	"sync"
)

// Local is an in-process Notifier, used when Redis is not configured and in tests.
type Local struct {
	mu        sync.Mutex
	listeners map[string]map[*localListener]struct{}
}

func NewLocal() *Local {
	return &Local{listeners: make(map[string]map[*localListener]struct{})}
}

func (n *Local) Notify(_ context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for l := range n.listeners[topic] {
		select {
		case l.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *Local) Listen(_ context.Context, topic string) (Listener, error) {
	l := &localListener{parent: n, topic: topic, ch: make(chan struct{}, 1)}
	n.mu.Lock()
	if n.listeners[topic] == nil {
		n.listeners[topic] = make(map[*localListener]struct{})
	}
	n.listeners[topic][l] = struct{}{}
	n.mu.Unlock()
	return l, nil
}

type localListener struct {
	parent *Local
	topic  string
	ch     chan struct{}
	once   sync.Once
}

func (l *localListener) Signals() <-chan struct{} { return l.ch }

func (l *localListener) Close() error {
	l.once.Do(func() {
		l.parent.mu.Lock()
		delete(l.parent.listeners[l.topic], l)
		if len(l.parent.listeners[l.topic]) == 0 {
			delete(l.parent.listeners, l.topic)
		}
		l.parent.mu.Unlock()
	})
	return nil
}

package redisclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/therapy-session-scheduling/internal/feed"
)

const changeChannelPrefix = "changes:"

// PubSubNotifier carries store change signals between processes over Redis pub/sub.
type PubSubNotifier struct {
	client *redis.Client
}

func NewPubSubNotifier(client *redis.Client) *PubSubNotifier {
	return &PubSubNotifier{client: client}
}

func (n *PubSubNotifier) Notify(ctx context.Context, topic string) error {
	if err := n.client.Publish(ctx, changeChannelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("publish change %s: %w", topic, err)
	}
	return nil
}

func (n *PubSubNotifier) Listen(ctx context.Context, topic string) (feed.Listener, error) {
	ps := n.client.Subscribe(ctx, changeChannelPrefix+topic)
	// wait for the subscription confirmation so no publish after Listen returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	l := &pubSubListener{
		ps:      ps,
		signals: make(chan struct{}, 1),
	}
	go l.pump(ps.Channel())
	return l, nil
}

type pubSubListener struct {
	ps      *redis.PubSub
	signals chan struct{}
	once    sync.Once
	err     error
}

func (l *pubSubListener) pump(msgs <-chan *redis.Message) {
	defer close(l.signals)
	for range msgs {
		select {
		case l.signals <- struct{}{}:
		default:
		}
	}
}

func (l *pubSubListener) Signals() <-chan struct{} { return l.signals }

func (l *pubSubListener) Close() error {
	l.once.Do(func() {
		l.err = l.ps.Close()
	})
	return l.err
}

package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus carries change notifications between service instances over
// Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish sends payload on topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Feed, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	f := &redisFeed{
		ps:   ps,
		out:  make(chan []byte, 64),
		quit: make(chan struct{}),
	}
	go f.pump()
	return f, nil
}

type redisFeed struct {
	ps   *redis.PubSub
	out  chan []byte
	quit chan struct{}
	once sync.Once
}

func (f *redisFeed) pump() {
	defer close(f.out)
	ch := f.ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case f.out <- []byte(msg.Payload):
			case <-f.quit:
				return
			}
		case <-f.quit:
			return
		}
	}
}

func (f *redisFeed) Messages() <-chan []byte {
	return f.out
}

func (f *redisFeed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.quit)
		err = f.ps.Close()
		if err != nil {
			slog.Warn("redis feed close failed", "error", err)
		}
	})
	return err
}

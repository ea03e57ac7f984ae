package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrBusClosed is returned by a bus that has been shut down.
var ErrBusClosed = errors.New("realtime: bus closed")

// Bus is a topic publish/subscribe channel. Subscribe must not return
// until the subscription is live, so nothing published afterwards is lost.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Feed, error)
}

// Feed is one topic subscription.
type Feed interface {
	Messages() <-chan []byte
	Close() error
}

// MemoryBus is an in-process Bus. Every feed has an unbounded queue, so a
// slow subscriber never blocks publishers and never loses messages.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]map[*memoryFeed]struct{}
	closed bool
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]map[*memoryFeed]struct{})}
}

// Publish fans payload out to every current subscriber of topic.
func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for f := range b.topics[topic] {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		f.push(cp)
	}
	return nil
}

// Subscribe registers a feed on topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Feed, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	f := newMemoryFeed(func(f *memoryFeed) { b.remove(topic, f) })
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memoryFeed]struct{})
	}
	b.topics[topic][f] = struct{}{}
	return f, nil
}

// Close detaches every feed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	feeds := make([]*memoryFeed, 0)
	for _, set := range b.topics {
		for f := range set {
			feeds = append(feeds, f)
		}
	}
	b.topics = make(map[string]map[*memoryFeed]struct{})
	b.closed = true
	b.mu.Unlock()

	for _, f := range feeds {
		f.stop()
	}
	return nil
}

func (b *MemoryBus) remove(topic string, f *memoryFeed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics[topic], f)
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

type memoryFeed struct {
	mu     sync.Mutex
	queue  [][]byte
	signal chan struct{}
	out    chan []byte
	quit   chan struct{}
	once   sync.Once
	detach func(*memoryFeed)
}

func newMemoryFeed(detach func(*memoryFeed)) *memoryFeed {
	f := &memoryFeed{
		signal: make(chan struct{}, 1),
		out:    make(chan []byte),
		quit:   make(chan struct{}),
		detach: detach,
	}
	go f.pump()
	return f
}

func (f *memoryFeed) push(p []byte) {
	f.mu.Lock()
	f.queue = append(f.queue, p)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *memoryFeed) pump() {
	defer close(f.out)
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			select {
			case <-f.signal:
				continue
			case <-f.quit:
				return
			}
		}
		next := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.out <- next:
		case <-f.quit:
			return
		}
	}
}

func (f *memoryFeed) Messages() <-chan []byte {
	return f.out
}

func (f *memoryFeed) Close() error {
	f.detach(f)
	f.stop()
	return nil
}

func (f *memoryFeed) stop() {
	f.once.Do(func() { close(f.quit) })
}

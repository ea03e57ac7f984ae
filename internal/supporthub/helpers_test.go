package supporthub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/storage/memory"

	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// matchedSession creates a session for seeker and assigns helper to it.
func matchedSession(t *testing.T, store *memory.Store, seeker, helper string, topic models.Topic) string {
	t.Helper()
	ctx := context.Background()
	sess := &models.SupportSession{SeekerID: seeker, Topic: topic}
	require.NoError(t, store.CreateSession(ctx, sess))
	require.NoError(t, store.AssignHelper(ctx, sess.ID, helper))
	return sess.ID
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func assertSilent[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value: %+v", v)
		}
	case <-time.After(d):
	}
}

// MockClient is a test double for supporthub.Client.
type MockClient struct {
	userID      string
	RecvChannel chan models.Event

	mu     sync.Mutex
	closed bool
	ran    bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.Event, 64),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetSendChannel() chan<- models.Event {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	c.mu.Lock()
	c.ran = true
	c.mu.Unlock()
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitEvent reads events until one satisfies match.
func (c *MockClient) waitEvent(t *testing.T, match func(models.Event) bool) models.Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-c.RecvChannel:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("client %s: expected event not received", c.userID)
			return models.Event{}
		}
	}
}

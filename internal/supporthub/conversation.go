package supporthub

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"
)

// Conversation is the live, ascending message log of one session. The
// subscription is the only writer of its state; appending does not touch it.
type Conversation struct {
	SessionID string

	mu      sync.Mutex
	msgs    []models.Message
	ids     map[string]struct{}
	updates chan []models.Message
	sub     *realtime.Subscription[models.Message]
	done    chan struct{}
}

// OpenConversation subscribes to a session's messages. Open it again to
// restart after Close or after the subscription ends.
func OpenConversation(ctx context.Context, store storage.MessageStore, sessionID string) (*Conversation, error) {
	sub, err := store.WatchMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open conversation %s: %w", sessionID, err)
	}
	c := &Conversation{
		SessionID: sessionID,
		ids:       make(map[string]struct{}),
		updates:   make(chan []models.Message, 1),
		sub:       sub,
		done:      make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

func (c *Conversation) loop() {
	defer close(c.done)
	defer close(c.updates)
	for ch := range c.sub.Events() {
		if ch.Kind != realtime.Added {
			continue
		}
		if !c.insert(ch.Doc) {
			continue
		}
		snapshot := c.Messages()
		select {
		case <-c.updates:
		default:
		}
		select {
		case c.updates <- snapshot:
		default:
		}
	}
}

// insert places m by creation time; late arrivals never reorder what is there.
func (c *Conversation) insert(m models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.ids[m.ID]; dup {
		return false
	}
	c.ids[m.ID] = struct{}{}
	i := sort.Search(len(c.msgs), func(i int) bool { return m.Before(c.msgs[i]) })
	c.msgs = append(c.msgs, models.Message{})
	copy(c.msgs[i+1:], c.msgs[i:])
	c.msgs[i] = m
	return true
}

// Messages returns a copy of the current log.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.msgs...)
}

// Updates yields the full log after each change and is closed when the
// conversation stops.
func (c *Conversation) Updates() <-chan []models.Message {
	return c.updates
}

// Done is closed once the subscription has ended.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Err reports why the subscription ended, nil after Close.
func (c *Conversation) Err() error {
	return c.sub.Err()
}

// Close stops the subscription. Safe to call more than once.
func (c *Conversation) Close() {
	c.sub.Cancel()
	<-c.done
}

// AppendMessage posts text as author. Whitespace-only text is ignored:
// nothing is written and (nil, nil) is returned.
func AppendMessage(ctx context.Context, store storage.MessageStore, sessionID string, author models.Author, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if author.ID == "" {
		return nil, ErrNotSignedIn
	}
	m := &models.Message{
		SessionID:    sessionID,
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.Avatar,
		Content:      text,
	}
	if err := store.AppendMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

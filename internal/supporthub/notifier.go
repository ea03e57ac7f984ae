package supporthub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"
)

// writeBackTimeout bounds the notified=true write made after an alert.
const writeBackTimeout = 10 * time.Second

// MatchNotifier alerts one helper about open sessions newly matched to them.
//
// An alert is shown locally first and notified=true is written back right
// after. Two notifiers for the same helper (two tabs, tab plus Telegram) can
// both alert before either write lands; within one notifier a session is
// alerted at most once.
type MatchNotifier struct {
	store    storage.SessionStore
	helperID string
	sub      *realtime.Subscription[models.SupportSession]
	alerts   chan models.MatchAlert
	writeCtx context.Context

	mu      sync.Mutex
	seen    map[string]struct{}
	current *models.MatchAlert
	closed  bool

	done chan struct{}
}

// NewMatchNotifier subscribes to sessions matched to helperID.
func NewMatchNotifier(ctx context.Context, store storage.SessionStore, helperID string) (*MatchNotifier, error) {
	if helperID == "" {
		return nil, ErrNotSignedIn
	}
	sub, err := store.WatchSessions(ctx, models.SessionQuery{
		HelperID: helperID,
		Status:   models.StatusMatched,
		OpenOnly: true,
	})
	if err != nil {
		return nil, err
	}

	n := &MatchNotifier{
		store:    store,
		helperID: helperID,
		sub:      sub,
		alerts:   make(chan models.MatchAlert, 16),
		writeCtx: context.WithoutCancel(ctx),
		seen:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	go n.loop()
	return n, nil
}

// Alerts delivers every alert shown. It is closed when the notifier stops.
func (n *MatchNotifier) Alerts() <-chan models.MatchAlert {
	return n.alerts
}

// Current is the prompt on screen, or nil.
func (n *MatchNotifier) Current() *models.MatchAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	a := *n.current
	return &a
}

// Done is closed once the notifier has stopped.
func (n *MatchNotifier) Done() <-chan struct{} {
	return n.done
}

func (n *MatchNotifier) loop() {
	defer close(n.done)
	defer close(n.alerts)

	for ch := range n.sub.Events() {
		if ch.Kind == realtime.Removed || !ch.Doc.IsOpen() {
			n.clear(ch.Doc.ID)
			continue
		}
		if ch.Doc.Notified {
			continue
		}
		alert, ok := n.show(ch.Doc)
		if !ok {
			continue
		}

		select {
		case n.alerts <- alert:
		case <-n.sub.Done():
			continue
		}

		if err := n.markNotified(alert.SessionID); err != nil {
			slog.Error("match notifier: write-back failed",
				"helper_id", n.helperID, "session_id", alert.SessionID, "error", err)
		}
	}

	if err := n.sub.Err(); err != nil {
		slog.Warn("match notifier: subscription ended", "helper_id", n.helperID, "error", err)
	}
}

func (n *MatchNotifier) markNotified(sessionID string) error {
	ctx, cancel := context.WithTimeout(n.writeCtx, writeBackTimeout)
	defer cancel()
	return n.store.MarkNotified(ctx, sessionID)
}

// show records the alert unless the notifier is closed or already showed it.
func (n *MatchNotifier) show(s models.SupportSession) (models.MatchAlert, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return models.MatchAlert{}, false
	}
	if _, dup := n.seen[s.ID]; dup {
		return models.MatchAlert{}, false
	}
	n.seen[s.ID] = struct{}{}
	alert := models.MatchAlert{SessionID: s.ID, SeekerID: s.SeekerID, Topic: s.Topic}
	n.current = &alert
	return alert, true
}

func (n *MatchNotifier) clear(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != nil && n.current.SessionID == sessionID {
		n.current = nil
	}
}

// Join re-asserts notified, clears the prompt and returns the conversation path.
func (n *MatchNotifier) Join(ctx context.Context, sessionID string) (string, error) {
	if err := n.store.MarkNotified(ctx, sessionID); err != nil {
		return "", err
	}
	n.clear(sessionID)
	return ConversationPath(sessionID), nil
}

// Dismiss re-asserts notified and clears the prompt.
func (n *MatchNotifier) Dismiss(ctx context.Context, sessionID string) error {
	if err := n.store.MarkNotified(ctx, sessionID); err != nil {
		return err
	}
	n.clear(sessionID)
	return nil
}

// Close stops the subscription. Safe to call more than once.
func (n *MatchNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.current = nil
	n.mu.Unlock()
	n.sub.Cancel()
	<-n.done
}

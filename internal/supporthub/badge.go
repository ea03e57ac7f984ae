package supporthub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"
)

// Role selects which side of a session the badge counts for.
type Role string

const (
	RoleHelper Role = "helper"
	RoleSeeker Role = "seeker"
)

var ErrInvalidRole = errors.New("role must be helper or seeker")

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHelper, RoleSeeker:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// PendingQuery is the one "open session" predicate every badge uses:
// the user holds the role and the session has no outcome.
func PendingQuery(userID string, role Role) models.SessionQuery {
	q := models.SessionQuery{OpenOnly: true}
	if role == RoleSeeker {
		q.SeekerID = userID
	} else {
		q.HelperID = userID
	}
	return q
}

// PendingBadge is a live count of a user's open sessions. It never reports
// an error: if the subscription cannot be made or dies, it reads 0.
type PendingBadge struct {
	mu      sync.Mutex
	ids     map[string]struct{}
	updates chan int
	sub     *realtime.Subscription[models.SupportSession]
	done    chan struct{}
}

// NewPendingBadge starts counting. It always returns a usable badge.
func NewPendingBadge(ctx context.Context, store storage.SessionStore, userID string, role Role) *PendingBadge {
	b := &PendingBadge{
		ids:     make(map[string]struct{}),
		updates: make(chan int, 1),
		done:    make(chan struct{}),
	}
	if userID == "" {
		close(b.done)
		return b
	}

	sub, err := store.WatchSessions(ctx, PendingQuery(userID, role))
	if err != nil {
		slog.Warn("pending badge: subscription failed", "user_id", userID, "role", role, "error", err)
		close(b.done)
		return b
	}
	b.sub = sub
	go b.loop()
	return b
}

// Count is the current number of open sessions.
func (b *PendingBadge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}

// Updates yields the latest count after every change. Intermediate values
// may be skipped when the reader is slow.
func (b *PendingBadge) Updates() <-chan int {
	return b.updates
}

func (b *PendingBadge) loop() {
	defer close(b.done)
	for ch := range b.sub.Events() {
		b.mu.Lock()
		before := len(b.ids)
		switch ch.Kind {
		case realtime.Added, realtime.Modified:
			b.ids[ch.Doc.ID] = struct{}{}
		case realtime.Removed:
			delete(b.ids, ch.Doc.ID)
		}
		n := len(b.ids)
		b.mu.Unlock()
		if n != before {
			b.publish(n)
		}
	}

	if err := b.sub.Err(); err != nil {
		slog.Warn("pending badge: subscription ended", "error", err)
		b.mu.Lock()
		b.ids = make(map[string]struct{})
		b.mu.Unlock()
		b.publish(0)
	}
}

func (b *PendingBadge) publish(n int) {
	select {
	case <-b.updates:
	default:
	}
	select {
	case b.updates <- n:
	default:
	}
}

// Done is closed once the badge stopped tracking.
func (b *PendingBadge) Done() <-chan struct{} {
	return b.done
}

// Close stops the subscription. Safe to call more than once.
func (b *PendingBadge) Close() {
	if b.sub != nil {
		b.sub.Cancel()
	}
	<-b.done
}

package supporthub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/storage"
)

// DefaultMatchInterval is how often Run retries unmatched sessions.
const DefaultMatchInterval = 5 * time.Second

// MatcherService pairs sessions awaiting a match with available helpers.
type MatcherService struct {
	Storage  storage.Storage
	Interval time.Duration

	// wake lets callers request a pass without waiting for the ticker.
	wake chan struct{}
}

func NewMatcherService(s storage.Storage, interval time.Duration) *MatcherService {
	if interval <= 0 {
		interval = DefaultMatchInterval
	}
	return &MatcherService{
		Storage:  s,
		Interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Wake schedules an immediate pass. It never blocks.
func (m *MatcherService) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run matches on every tick or wake-up until ctx is cancelled.
func (m *MatcherService) Run(ctx context.Context) error {
	slog.Info("matcher started", "interval", m.Interval)
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("matcher pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("matcher stopped")
			return nil
		case <-ticker.C:
		case <-m.wake:
		}
	}
}

// RunOnce makes one pass over unmatched sessions, oldest first, and
// returns how many were matched.
func (m *MatcherService) RunOnce(ctx context.Context) (int, error) {
	sessions, err := m.Storage.QuerySessions(ctx, models.SessionQuery{UnmatchedOnly: true, OpenOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list unmatched sessions: %w", err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	ids, err := m.Storage.GetAvailableHelpers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list available helpers: %w", err)
	}
	sort.Strings(ids)

	helpers := make([]models.Helper, 0, len(ids))
	for _, id := range ids {
		h, err := m.Storage.GetHelper(ctx, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			helpers = append(helpers, models.Helper{ID: id})
		case err != nil:
			return 0, fmt.Errorf("load helper %s: %w", id, err)
		default:
			helpers = append(helpers, *h)
		}
	}

	used := make(map[string]bool)
	matched := 0
	for _, sess := range sessions {
		h, ok := pickHelper(helpers, used, &sess)
		if !ok {
			continue
		}

		err := m.Storage.AssignHelper(ctx, sess.ID, h.ID)
		if errors.Is(err, storage.ErrAlreadyMatched) || errors.Is(err, storage.ErrNotFound) {
			slog.Info("session taken before assignment", "session_id", sess.ID, "error", err)
			continue
		}
		if err != nil {
			return matched, fmt.Errorf("assign helper %s to %s: %w", h.ID, sess.ID, err)
		}

		used[h.ID] = true
		matched++
		if err := m.Storage.RemoveHelperFromPool(ctx, h.ID); err != nil {
			slog.Warn("matched helper still in pool", "helper_id", h.ID, "error", err)
		}
		slog.Info("match found", "session_id", sess.ID, "helper_id", h.ID, "topic", sess.Topic)
	}
	return matched, nil
}

// pickHelper returns the first unused helper who is not the seeker and
// covers the session's topic.
func pickHelper(helpers []models.Helper, used map[string]bool, sess *models.SupportSession) (models.Helper, bool) {
	for i := range helpers {
		h := &helpers[i]
		if used[h.ID] || h.ID == sess.SeekerID || !h.Covers(sess.Topic) {
			continue
		}
		return *h, true
	}
	return models.Helper{}, false
}

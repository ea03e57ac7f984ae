package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
)

// watchBuffer is the event buffer of every store subscription.
const watchBuffer = 32

// SessionSource builds a live session query over a bus carrying session ids.
// Each payload is re-read through get, so watchers always see the latest
// record no matter how notifications interleave.
func SessionSource(
	bus realtime.Bus,
	q models.SessionQuery,
	list func(ctx context.Context, q models.SessionQuery) ([]models.SupportSession, error),
	get func(ctx context.Context, id string) (*models.SupportSession, error),
) realtime.Source[models.SupportSession] {
	return realtime.Source[models.SupportSession]{
		Bus:   bus,
		Topic: SessionsTopic,
		Snapshot: func(ctx context.Context) ([]models.SupportSession, error) {
			return list(ctx, q)
		},
		Load: func(ctx context.Context, payload []byte) (models.SupportSession, bool, error) {
			s, err := get(ctx, string(payload))
			if errors.Is(err, ErrNotFound) {
				return models.SupportSession{}, false, nil
			}
			if err != nil {
				return models.SupportSession{}, false, err
			}
			return s.Clone(), true, nil
		},
		View: realtime.NewView(
			func(s models.SupportSession) string { return s.ID },
			func(s models.SupportSession) bool { return q.Matches(&s) },
			func(a, b models.SupportSession) bool { return a.Equal(b) },
		),
	}
}

// MessageSource builds a live message log over a bus carrying message JSON.
func MessageSource(
	bus realtime.Bus,
	sessionID string,
	list func(ctx context.Context, sessionID string) ([]models.Message, error),
) realtime.Source[models.Message] {
	return realtime.Source[models.Message]{
		Bus:   bus,
		Topic: MessagesTopic(sessionID),
		Snapshot: func(ctx context.Context) ([]models.Message, error) {
			return list(ctx, sessionID)
		},
		Load: func(ctx context.Context, payload []byte) (models.Message, bool, error) {
			var m models.Message
			if err := json.Unmarshal(payload, &m); err != nil {
				return models.Message{}, false, fmt.Errorf("decode message: %w", err)
			}
			return m, m.SessionID == sessionID, nil
		},
		View: realtime.NewView(
			func(m models.Message) string { return m.ID },
			func(models.Message) bool { return true },
			func(a, b models.Message) bool { return a.ID == b.ID },
		),
	}
}

// WatchSessions runs a SessionSource.
func WatchSessions(ctx context.Context, src realtime.Source[models.SupportSession]) (*realtime.Subscription[models.SupportSession], error) {
	return realtime.Watch(ctx, src, watchBuffer)
}

// WatchMessages runs a MessageSource.
func WatchMessages(ctx context.Context, src realtime.Source[models.Message]) (*realtime.Subscription[models.Message], error) {
	return realtime.Watch(ctx, src, watchBuffer)
}

// SortSessions orders sessions oldest first, ties by id.
func SortSessions(sessions []models.SupportSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// SortMessages orders a log ascending.
func SortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}

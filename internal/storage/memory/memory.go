// Package memory is an in-process storage backend used for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"

	"github.com/google/uuid"
)

// Store keeps every record in maps guarded by one mutex and announces
// writes on an in-memory bus.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]models.SupportSession
	messages map[string][]models.Message
	lastAt   map[string]time.Time
	lastNew  time.Time
	helpers  map[string]models.Helper
	pool     map[string]struct{}

	bus *realtime.MemoryBus
	now func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]models.SupportSession),
		messages: make(map[string][]models.Message),
		lastAt:   make(map[string]time.Time),
		helpers:  make(map[string]models.Helper),
		pool:     make(map[string]struct{}),
		bus:      realtime.NewMemoryBus(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close detaches every live subscription.
func (s *Store) Close() error {
	return s.bus.Close()
}

func (s *Store) CreateSession(ctx context.Context, sess *models.SupportSession) error {
	s.mu.Lock()
	sess.ID = uuid.New().String()
	sess.Notified = false
	now := s.now()
	if !now.After(s.lastNew) {
		now = s.lastNew.Add(time.Nanosecond)
	}
	s.lastNew = now
	sess.CreatedAt, sess.UpdatedAt = now, now
	s.sessions[sess.ID] = sess.Clone()
	s.mu.Unlock()

	s.publishSession(ctx, sess.ID)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*models.SupportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := sess.Clone()
	return &out, nil
}

func (s *Store) AssignHelper(ctx context.Context, id, helperID string) error {
	err := s.update(id, func(sess *models.SupportSession) error {
		if sess.HasHelper() {
			return storage.ErrAlreadyMatched
		}
		h := helperID
		sess.HelperID = &h
		sess.Status = models.StatusMatched
		return nil
	})
	if err != nil {
		return err
	}
	s.publishSession(ctx, id)
	return nil
}

func (s *Store) MarkNotified(ctx context.Context, id string) error {
	if err := s.update(id, func(sess *models.SupportSession) error {
		sess.Notified = true
		return nil
	}); err != nil {
		return err
	}
	s.publishSession(ctx, id)
	return nil
}

func (s *Store) SetOutcome(ctx context.Context, id string, outcome float64) error {
	if err := s.update(id, func(sess *models.SupportSession) error {
		o := outcome
		sess.Outcome = &o
		return nil
	}); err != nil {
		return err
	}
	s.publishSession(ctx, id)
	return nil
}

func (s *Store) update(id string, fn func(*models.SupportSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	sess = sess.Clone()
	if err := fn(&sess); err != nil {
		return err
	}
	sess.UpdatedAt = s.now()
	s.sessions[id] = sess
	return nil
}

func (s *Store) QuerySessions(_ context.Context, q models.SessionQuery) ([]models.SupportSession, error) {
	s.mu.RLock()
	out := make([]models.SupportSession, 0)
	for _, sess := range s.sessions {
		if q.Matches(&sess) {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()
	storage.SortSessions(out)
	return out, nil
}

func (s *Store) WatchSessions(ctx context.Context, q models.SessionQuery) (*realtime.Subscription[models.SupportSession], error) {
	return storage.WatchSessions(ctx, storage.SessionSource(s.bus, q, s.QuerySessions, s.GetSession))
}

// AppendMessage assigns a creation time strictly after the previous message
// of the same session.
func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	if strings.TrimSpace(m.Content) == "" {
		return storage.ErrEmptyContent
	}

	s.mu.Lock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		s.mu.Unlock()
		return storage.ErrNotFound
	}
	at := s.now()
	if last, ok := s.lastAt[m.SessionID]; ok && !at.After(last) {
		at = last.Add(time.Nanosecond)
	}
	s.lastAt[m.SessionID] = at
	m.ID = uuid.New().String()
	m.CreatedAt = at
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)

	// Publishing under the lock keeps feed order equal to timestamp order.
	defer s.mu.Unlock()
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.bus.Publish(ctx, storage.MessagesTopic(m.SessionID), payload); err != nil {
		slog.Warn("message stored but not published", "session_id", m.SessionID, "error", err)
	}
	return nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	out := append([]models.Message(nil), s.messages[sessionID]...)
	s.mu.RUnlock()
	storage.SortMessages(out)
	return out, nil
}

func (s *Store) WatchMessages(ctx context.Context, sessionID string) (*realtime.Subscription[models.Message], error) {
	return storage.WatchMessages(ctx, storage.MessageSource(s.bus, sessionID, s.ListMessages))
}

func (s *Store) SaveHelper(_ context.Context, h *models.Helper) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.helpers[h.ID] = cloneHelper(*h)
	return nil
}

// cloneHelper copies h so callers never share its slice or pointer fields
// with the store.
func cloneHelper(h models.Helper) models.Helper {
	h.Topics = append(h.Topics[:0:0], h.Topics...)
	if h.TelegramChatID != nil {
		id := *h.TelegramChatID
		h.TelegramChatID = &id
	}
	return h
}

func (s *Store) GetHelper(_ context.Context, id string) (*models.Helper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.helpers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneHelper(h)
	return &out, nil
}

func (s *Store) ListLinkedHelpers(_ context.Context) ([]models.Helper, error) {
	s.mu.RLock()
	out := make([]models.Helper, 0)
	for _, h := range s.helpers {
		if h.TelegramChatID != nil {
			out = append(out, cloneHelper(h))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddHelperToPool(_ context.Context, helperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool[helperID] = struct{}{}
	return nil
}

func (s *Store) RemoveHelperFromPool(_ context.Context, helperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pool, helperID)
	return nil
}

func (s *Store) GetAvailableHelpers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.pool))
	for id := range s.pool {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *Store) publishSession(ctx context.Context, id string) {
	if err := s.bus.Publish(ctx, storage.SessionsTopic, []byte(id)); err != nil {
		slog.Warn("session change not published", "session_id", id, "error", err)
	}
}

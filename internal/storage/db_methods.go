package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"

	"gorm.io/gorm"
)

// CreateSession inserts a new esupport row and announces it on the bus.
func (s *Service) CreateSession(ctx context.Context, sess *models.SupportSession) error {
	sess.ID = ""
	sess.Notified = false
	if err := s.DB.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.publishSession(ctx, sess.ID)
	return nil
}

// GetSession loads one esupport row.
func (s *Service) GetSession(ctx context.Context, id string) (*models.SupportSession, error) {
	var sess models.SupportSession
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &sess, nil
}

// AssignHelper is a conditional update: it only touches rows without a helper.
func (s *Service) AssignHelper(ctx context.Context, id, helperID string) error {
	res := s.DB.WithContext(ctx).Model(&models.SupportSession{}).
		Where("id = ? AND (helper_id IS NULL OR helper_id = '')", id).
		Updates(map[string]interface{}{
			"helper_id":  helperID,
			"status":     models.StatusMatched,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("assign helper to %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyMatched
	}
	s.publishSession(ctx, id)
	return nil
}

// MarkNotified sets notified=true. Writing it twice is harmless.
func (s *Service) MarkNotified(ctx context.Context, id string) error {
	return s.updateSession(ctx, id, map[string]interface{}{"notified": true})
}

// SetOutcome writes the resolution score.
func (s *Service) SetOutcome(ctx context.Context, id string, outcome float64) error {
	return s.updateSession(ctx, id, map[string]interface{}{"outcome": outcome})
}

func (s *Service) updateSession(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := s.DB.WithContext(ctx).Model(&models.SupportSession{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.publishSession(ctx, id)
	return nil
}

// QuerySessions translates the query into SQL conditions.
func (s *Service) QuerySessions(ctx context.Context, q models.SessionQuery) ([]models.SupportSession, error) {
	db := s.DB.WithContext(ctx).Model(&models.SupportSession{})
	if q.SeekerID != "" {
		db = db.Where("seeker_id = ?", q.SeekerID)
	}
	if q.HelperID != "" {
		db = db.Where("helper_id = ?", q.HelperID)
	}
	if q.Status != models.StatusNone {
		db = db.Where("status = ?", q.Status)
	}
	if q.OpenOnly {
		db = db.Where("outcome IS NULL")
	}
	if q.UnmatchedOnly {
		db = db.Where("helper_id IS NULL OR helper_id = ''")
	}

	var sessions []models.SupportSession
	if err := db.Order("created_at asc, id asc").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return sessions, nil
}

// WatchSessions streams changes of the query's result set.
func (s *Service) WatchSessions(ctx context.Context, q models.SessionQuery) (*realtime.Subscription[models.SupportSession], error) {
	return WatchSessions(ctx, SessionSource(s.Bus, q, s.QuerySessions, s.GetSession))
}

// AppendMessage stores a message and publishes it to the session's topic.
func (s *Service) AppendMessage(ctx context.Context, m *models.Message) error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if _, err := s.GetSession(ctx, m.SessionID); err != nil {
		return err
	}
	m.ID = ""
	m.CreatedAt = time.Now().UTC()
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("append message to %s: %w", m.SessionID, err)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.Bus.Publish(ctx, MessagesTopic(m.SessionID), payload); err != nil {
		slog.Warn("message stored but not published", "session_id", m.SessionID, "error", err)
	}
	return nil
}

// ListMessages returns the log ascending by creation time.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", sessionID, err)
	}
	return msgs, nil
}

// WatchMessages streams the log, snapshot first.
func (s *Service) WatchMessages(ctx context.Context, sessionID string) (*realtime.Subscription[models.Message], error) {
	return WatchMessages(ctx, MessageSource(s.Bus, sessionID, s.ListMessages))
}

// SaveHelper inserts or updates a helper profile.
func (s *Service) SaveHelper(ctx context.Context, h *models.Helper) error {
	if err := s.DB.WithContext(ctx).Save(h).Error; err != nil {
		return fmt.Errorf("save helper: %w", err)
	}
	return nil
}

// GetHelper loads a helper profile.
func (s *Service) GetHelper(ctx context.Context, id string) (*models.Helper, error) {
	var h models.Helper
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get helper %s: %w", id, err)
	}
	return &h, nil
}

// ListLinkedHelpers returns helpers with a Telegram chat.
func (s *Service) ListLinkedHelpers(ctx context.Context) ([]models.Helper, error) {
	var helpers []models.Helper
	err := s.DB.WithContext(ctx).
		Where("telegram_chat_id IS NOT NULL").
		Order("id asc").
		Find(&helpers).Error
	if err != nil {
		return nil, fmt.Errorf("list linked helpers: %w", err)
	}
	return helpers, nil
}

// AddHelperToPool marks a helper as available for matching.
func (s *Service) AddHelperToPool(ctx context.Context, helperID string) error {
	return s.Redis.SAdd(ctx, HelperPoolKey, helperID).Err()
}

// RemoveHelperFromPool takes a helper out of matching.
func (s *Service) RemoveHelperFromPool(ctx context.Context, helperID string) error {
	return s.Redis.SRem(ctx, HelperPoolKey, helperID).Err()
}

// GetAvailableHelpers returns every helper currently in the pool.
func (s *Service) GetAvailableHelpers(ctx context.Context) ([]string, error) {
	return s.Redis.SMembers(ctx, HelperPoolKey).Result()
}

func (s *Service) publishSession(ctx context.Context, id string) {
	if err := s.Bus.Publish(ctx, SessionsTopic, []byte(id)); err != nil {
		slog.Warn("session change not published", "session_id", id, "error", err)
	}
}

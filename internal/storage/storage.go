package storage

import (
	"context"
	"errors"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a session, message or helper does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyMatched is returned by AssignHelper when helperId is already set.
	ErrAlreadyMatched = errors.New("session already has a helper")
	// ErrEmptyContent is returned when a message without text reaches the store.
	ErrEmptyContent = errors.New("message content is empty")
)

// Change-feed topics and the helper pool key.
const (
	SessionsTopic = "esupport:sessions"
	HelperPoolKey = "esupport:helper_pool"
)

// MessagesTopic is the change-feed topic of one session's message log.
func MessagesTopic(sessionID string) string {
	return "esupport:" + sessionID + ":messages"
}

// SessionStore persists esupport records.
type SessionStore interface {
	// CreateSession assigns s.ID and the timestamps and stores the record.
	CreateSession(ctx context.Context, s *models.SupportSession) error
	GetSession(ctx context.Context, id string) (*models.SupportSession, error)
	// AssignHelper sets helperId and status=matched iff helperId is absent.
	AssignHelper(ctx context.Context, id, helperID string) error
	// MarkNotified unconditionally writes notified=true.
	MarkNotified(ctx context.Context, id string) error
	// SetOutcome unconditionally writes outcome.
	SetOutcome(ctx context.Context, id string, outcome float64) error
	// QuerySessions returns matching sessions, oldest first.
	QuerySessions(ctx context.Context, q models.SessionQuery) ([]models.SupportSession, error)
	// WatchSessions is the live form of QuerySessions.
	WatchSessions(ctx context.Context, q models.SessionQuery) (*realtime.Subscription[models.SupportSession], error)
}

// MessageStore persists the per-session message logs.
type MessageStore interface {
	// AppendMessage assigns m.ID and m.CreatedAt and stores the message.
	AppendMessage(ctx context.Context, m *models.Message) error
	// ListMessages returns the log ascending by creation time.
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	// WatchMessages emits an Added change per message, snapshot first.
	WatchMessages(ctx context.Context, sessionID string) (*realtime.Subscription[models.Message], error)
}

// HelperStore keeps helper profiles and the pool of helpers available for matching.
type HelperStore interface {
	SaveHelper(ctx context.Context, h *models.Helper) error
	GetHelper(ctx context.Context, id string) (*models.Helper, error)
	// ListLinkedHelpers returns helpers that linked a Telegram chat.
	ListLinkedHelpers(ctx context.Context) ([]models.Helper, error)

	AddHelperToPool(ctx context.Context, helperID string) error
	RemoveHelperFromPool(ctx context.Context, helperID string) error
	GetAvailableHelpers(ctx context.Context) ([]string, error)
}

// Storage is everything the support pipeline needs from a backend.
type Storage interface {
	SessionStore
	MessageStore
	HelperStore
}

// Service is the Postgres + Redis backend: gorm for records, Redis pub/sub
// for the change feed and a Redis set for the helper pool.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Bus   realtime.Bus
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Bus:   realtime.NewRedisBus(rdb),
	}
}

// AutoMigrate creates or updates the tables.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.SupportSession{},
		&models.Message{},
		&models.Helper{},
	)
}

package supporthub_test

import (
	"context"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

// Session operations
func (m *MockStorage) CreateSession(ctx context.Context, s *models.SupportSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStorage) GetSession(ctx context.Context, id string) (*models.SupportSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SupportSession), args.Error(1)
}

func (m *MockStorage) AssignHelper(ctx context.Context, id, helperID string) error {
	args := m.Called(ctx, id, helperID)
	return args.Error(0)
}

func (m *MockStorage) MarkNotified(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) SetOutcome(ctx context.Context, id string, outcome float64) error {
	args := m.Called(ctx, id, outcome)
	return args.Error(0)
}

func (m *MockStorage) QuerySessions(ctx context.Context, q models.SessionQuery) ([]models.SupportSession, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SupportSession), args.Error(1)
}

func (m *MockStorage) WatchSessions(ctx context.Context, q models.SessionQuery) (*realtime.Subscription[models.SupportSession], error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realtime.Subscription[models.SupportSession]), args.Error(1)
}

// Message operations
func (m *MockStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) WatchMessages(ctx context.Context, sessionID string) (*realtime.Subscription[models.Message], error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*realtime.Subscription[models.Message]), args.Error(1)
}

// Helper operations
func (m *MockStorage) SaveHelper(ctx context.Context, h *models.Helper) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockStorage) GetHelper(ctx context.Context, id string) (*models.Helper, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Helper), args.Error(1)
}

func (m *MockStorage) ListLinkedHelpers(ctx context.Context) ([]models.Helper, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Helper), args.Error(1)
}

// Pool operations
func (m *MockStorage) AddHelperToPool(ctx context.Context, helperID string) error {
	args := m.Called(ctx, helperID)
	return args.Error(0)
}

func (m *MockStorage) RemoveHelperFromPool(ctx context.Context, helperID string) error {
	args := m.Called(ctx, helperID)
	return args.Error(0)
}

func (m *MockStorage) GetAvailableHelpers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// scriptedSessions is a hand-driven session subscription for notifier and
// badge tests. Changes pushed with emit are delivered in order; the producer
// finishes when the subscription is cancelled.
type scriptedSessions struct {
	sub *realtime.Subscription[models.SupportSession]
	ctx context.Context
}

func newScriptedSessions() *scriptedSessions {
	sub, ctx := realtime.NewSubscription[models.SupportSession](context.Background(), 16)
	go func() {
		<-ctx.Done()
		sub.Finish(nil)
	}()
	return &scriptedSessions{sub: sub, ctx: ctx}
}

func (s *scriptedSessions) emit(kind realtime.ChangeKind, doc models.SupportSession) bool {
	return s.sub.Send(s.ctx, realtime.Change[models.SupportSession]{Kind: kind, Doc: doc})
}

// fail ends the subscription the way a dropped listener does.
func (s *scriptedSessions) fail(err error) {
	s.sub.Finish(err)
}

package memory_test

import (
	"context"
	"testing"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"
	"sapex/backend/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextChange[T any](t *testing.T, sub *realtime.Subscription[T]) realtime.Change[T] {
	t.Helper()
	select {
	case ch, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return realtime.Change[T]{}
}

func TestCreateAndAssign(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	sess := &models.SupportSession{SeekerID: "seeker", Topic: models.TopicStress, Notified: true}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.Notified, "new sessions always start un-notified")

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.HasHelper())
	assert.Nil(t, got.Outcome)

	require.NoError(t, s.AssignHelper(ctx, sess.ID, "helper"))
	assert.ErrorIs(t, s.AssignHelper(ctx, sess.ID, "other"), storage.ErrAlreadyMatched)
	assert.ErrorIs(t, s.AssignHelper(ctx, "missing", "helper"), storage.ErrNotFound)

	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "helper", got.Helper())
	assert.Equal(t, models.StatusMatched, got.Status)

	require.NoError(t, s.SetOutcome(ctx, sess.ID, 0.7))
	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.InDelta(t, 0.7, *got.Outcome, 1e-9)
	assert.ErrorIs(t, s.MarkNotified(ctx, "missing"), storage.ErrNotFound)
}

func TestGetSessionReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	sess := &models.SupportSession{SeekerID: "seeker", Topic: models.TopicStudy}
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.AssignHelper(ctx, sess.ID, "helper"))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	*got.HelperID = "tampered"

	again, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "helper", again.Helper())
}

func TestQuerySessions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	a := &models.SupportSession{SeekerID: "u1", Topic: models.TopicStress}
	b := &models.SupportSession{SeekerID: "u2", Topic: models.TopicStudy}
	require.NoError(t, s.CreateSession(ctx, a))
	require.NoError(t, s.CreateSession(ctx, b))
	require.NoError(t, s.AssignHelper(ctx, b.ID, "h"))

	unmatched, err := s.QuerySessions(ctx, models.SessionQuery{UnmatchedOnly: true, OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, a.ID, unmatched[0].ID)

	helperOpen, err := s.QuerySessions(ctx, models.SessionQuery{HelperID: "h", OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, helperOpen, 1)

	require.NoError(t, s.SetOutcome(ctx, b.ID, 1))
	helperOpen, err = s.QuerySessions(ctx, models.SessionQuery{HelperID: "h", OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, helperOpen)
}

func TestAppendMessageOrdering(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	sess := &models.SupportSession{SeekerID: "u", Topic: models.TopicStress}
	require.NoError(t, s.CreateSession(ctx, sess))

	assert.ErrorIs(t, s.AppendMessage(ctx, &models.Message{SessionID: sess.ID, Content: "  "}), storage.ErrEmptyContent)
	assert.ErrorIs(t, s.AppendMessage(ctx, &models.Message{SessionID: "missing", Content: "hi"}), storage.ErrNotFound)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendMessage(ctx, &models.Message{SessionID: sess.ID, AuthorID: "u", Content: text}))
	}

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].CreatedAt.Before(msgs[i].CreatedAt), "timestamps strictly increase")
	}
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestWatchSessionsFollowsMatchAndResolve(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	sub, err := s.WatchSessions(ctx, models.SessionQuery{HelperID: "h", OpenOnly: true})
	require.NoError(t, err)
	defer sub.Cancel()

	sess := &models.SupportSession{SeekerID: "u", Topic: models.TopicBurnout}
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.AssignHelper(ctx, sess.ID, "h"))

	added := nextChange(t, sub)
	assert.Equal(t, realtime.Added, added.Kind)
	assert.Equal(t, sess.ID, added.Doc.ID)

	require.NoError(t, s.MarkNotified(ctx, sess.ID))
	modified := nextChange(t, sub)
	assert.Equal(t, realtime.Modified, modified.Kind)
	assert.True(t, modified.Doc.Notified)

	require.NoError(t, s.SetOutcome(ctx, sess.ID, 0.5))
	removed := nextChange(t, sub)
	assert.Equal(t, realtime.Removed, removed.Kind)
}

func TestWatchMessagesSnapshotThenLive(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	sess := &models.SupportSession{SeekerID: "u", Topic: models.TopicStress}
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.AppendMessage(ctx, &models.Message{SessionID: sess.ID, Content: "first"}))

	sub, err := s.WatchMessages(ctx, sess.ID)
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Equal(t, "first", nextChange(t, sub).Doc.Content)

	require.NoError(t, s.AppendMessage(ctx, &models.Message{SessionID: sess.ID, Content: "second"}))
	live := nextChange(t, sub)
	assert.Equal(t, realtime.Added, live.Kind)
	assert.Equal(t, "second", live.Doc.Content)
}

func TestHelpersAndPool(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	chat := int64(42)
	linked := &models.Helper{DisplayName: "Ann", TelegramChatID: &chat}
	require.NoError(t, s.SaveHelper(ctx, linked))
	require.NoError(t, s.SaveHelper(ctx, &models.Helper{ID: "plain"}))
	assert.NotEmpty(t, linked.ID)

	got, err := s.GetHelper(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.DisplayName)
	_, err = s.GetHelper(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListLinkedHelpers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, linked.ID, list[0].ID)

	require.NoError(t, s.AddHelperToPool(ctx, "b"))
	require.NoError(t, s.AddHelperToPool(ctx, "a"))
	require.NoError(t, s.AddHelperToPool(ctx, "a"))
	ids, err := s.GetAvailableHelpers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.RemoveHelperFromPool(ctx, "a"))
	ids, err = s.GetAvailableHelpers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestGetHelperReturnsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	defer s.Close()

	chat := int64(7)
	require.NoError(t, s.SaveHelper(ctx, &models.Helper{ID: "h", Topics: []string{"stress", "study"}, TelegramChatID: &chat}))

	got, err := s.GetHelper(ctx, "h")
	require.NoError(t, err)
	got.Topics[0] = "burnout"
	*got.TelegramChatID = 99

	again, err := s.GetHelper(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "stress", again.Topics[0])
	assert.Equal(t, int64(7), *again.TelegramChatID)
}

package supporthub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"
	"sapex/backend/internal/supporthub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotifierAlertsOnceWhenMatched(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	n, err := supporthub.NewMatchNotifier(ctx, store, "helper-H")
	require.NoError(t, err)
	defer n.Close()

	id := matchedSession(t, store, "seeker", "helper-H", models.TopicLoneliness)

	alert := receive(t, n.Alerts())
	assert.Equal(t, id, alert.SessionID)
	assert.Equal(t, "seeker", alert.SeekerID)
	assert.Equal(t, models.TopicLoneliness, alert.Topic)
	require.NotNil(t, n.Current())

	assert.Eventually(t, func() bool {
		sess, err := store.GetSession(ctx, id)
		return err == nil && sess.Notified
	}, waitFor, 10*time.Millisecond)

	assertSilent(t, n.Alerts(), 200*time.Millisecond)
}

func TestNotifierIgnoresOtherHelpersAndNotifiedSessions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	done := matchedSession(t, store, "seeker", "helper-H", models.TopicStress)
	require.NoError(t, store.MarkNotified(ctx, done))

	n, err := supporthub.NewMatchNotifier(ctx, store, "helper-H")
	require.NoError(t, err)
	defer n.Close()

	matchedSession(t, store, "seeker", "helper-X", models.TopicStress)
	assertSilent(t, n.Alerts(), 200*time.Millisecond)
	assert.Nil(t, n.Current())
}

func TestNotifierSkipsSessionResolvedBeforeConnect(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	id := matchedSession(t, store, "seeker", "helper-H", models.TopicStress)
	rating, err := supporthub.NewRating(7)
	require.NoError(t, err)
	require.NoError(t, supporthub.Resolve(ctx, store, id, "seeker", rating))

	n, err := supporthub.NewMatchNotifier(ctx, store, "helper-H")
	require.NoError(t, err)
	defer n.Close()

	assertSilent(t, n.Alerts(), 200*time.Millisecond)
	assert.Nil(t, n.Current())
	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, sess.Notified)
}

func TestNotifierClearsPromptWhenSessionCloses(t *testing.T) {
	script := newScriptedSessions()
	storageMock := new(MockStorage)
	storageMock.On("WatchSessions", mock.Anything, mock.Anything).Return(script.sub, nil)
	storageMock.On("MarkNotified", mock.Anything, "s1").Return(errors.New("offline"))

	n, err := supporthub.NewMatchNotifier(context.Background(), storageMock, "h")
	require.NoError(t, err)
	defer n.Close()

	h := "h"
	doc := models.SupportSession{ID: "s1", SeekerID: "u", HelperID: &h, Status: models.StatusMatched}
	require.True(t, script.emit(realtime.Added, doc))
	receive(t, n.Alerts())
	require.NotNil(t, n.Current())

	outcome := 0.7
	closed := doc
	closed.Outcome = &outcome
	require.True(t, script.emit(realtime.Modified, closed))
	assert.Eventually(t, func() bool { return n.Current() == nil }, waitFor, 10*time.Millisecond)

	other := models.SupportSession{ID: "s2", SeekerID: "u", HelperID: &h, Status: models.StatusMatched, Outcome: &outcome}
	require.True(t, script.emit(realtime.Added, other))
	assertSilent(t, n.Alerts(), 200*time.Millisecond)
}

func TestNotifierDuplicateEventsAlertOnce(t *testing.T) {
	script := newScriptedSessions()
	storageMock := new(MockStorage)
	storageMock.On("WatchSessions", mock.Anything, models.SessionQuery{HelperID: "h", Status: models.StatusMatched, OpenOnly: true}).
		Return(script.sub, nil)
	storageMock.On("MarkNotified", mock.Anything, "s1").Return(nil)

	n, err := supporthub.NewMatchNotifier(context.Background(), storageMock, "h")
	require.NoError(t, err)
	defer n.Close()

	h := "h"
	doc := models.SupportSession{ID: "s1", SeekerID: "u", HelperID: &h, Status: models.StatusMatched}
	require.True(t, script.emit(realtime.Added, doc))
	require.True(t, script.emit(realtime.Modified, doc))
	require.True(t, script.emit(realtime.Modified, doc))

	assert.Equal(t, "s1", receive(t, n.Alerts()).SessionID)
	assertSilent(t, n.Alerts(), 200*time.Millisecond)
}

func TestNotifierShowsAlertWhenWriteBackFails(t *testing.T) {
	script := newScriptedSessions()
	storageMock := new(MockStorage)
	storageMock.On("WatchSessions", mock.Anything, mock.Anything).Return(script.sub, nil)
	written := make(chan struct{}, 1)
	storageMock.On("MarkNotified", mock.Anything, "s1").
		Run(func(mock.Arguments) { written <- struct{}{} }).
		Return(errors.New("offline"))

	n, err := supporthub.NewMatchNotifier(context.Background(), storageMock, "h")
	require.NoError(t, err)
	defer n.Close()

	h := "h"
	require.True(t, script.emit(realtime.Added, models.SupportSession{ID: "s1", HelperID: &h, Status: models.StatusMatched}))

	alert := receive(t, n.Alerts())
	assert.Equal(t, "s1", alert.SessionID)
	receive(t, (<-chan struct{})(written))
	assert.NotNil(t, n.Current(), "alert stays on screen after a failed write")
}

func TestTwoNotifiersForSameHelperMayBothAlert(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tab1, err := supporthub.NewMatchNotifier(ctx, store, "helper-H")
	require.NoError(t, err)
	defer tab1.Close()
	tab2, err := supporthub.NewMatchNotifier(ctx, store, "helper-H")
	require.NoError(t, err)
	defer tab2.Close()

	matchedSession(t, store, "seeker", "helper-H", models.TopicStudy)

	count := func(n *supporthub.MatchNotifier) int {
		seen := 0
		deadline := time.After(300 * time.Millisecond)
		for {
			select {
			case <-n.Alerts():
				seen++
			case <-deadline:
				return seen
			}
		}
	}
	c1, c2 := count(tab1), count(tab2)
	assert.LessOrEqual(t, c1, 1)
	assert.LessOrEqual(t, c2, 1)
	assert.GreaterOrEqual(t, c1+c2, 1)
}

func TestNotifierJoinAndDismiss(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	n, err := supporthub.NewMatchNotifier(ctx, store, "helper-H")
	require.NoError(t, err)
	defer n.Close()

	first := matchedSession(t, store, "seeker", "helper-H", models.TopicGuidance)
	receive(t, n.Alerts())

	path, err := n.Join(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "/esupport/"+first, path)
	assert.Nil(t, n.Current())
	sess, err := store.GetSession(ctx, first)
	require.NoError(t, err)
	assert.True(t, sess.Notified)

	second := matchedSession(t, store, "seeker-2", "helper-H", models.TopicGuidance)
	receive(t, n.Alerts())
	require.NoError(t, n.Dismiss(ctx, second))
	assert.Nil(t, n.Current())
	sess, err = store.GetSession(ctx, second)
	require.NoError(t, err)
	assert.True(t, sess.Notified)
}

func TestNotifierCloseIsIdempotent(t *testing.T) {
	store := newStore(t)

	n, err := supporthub.NewMatchNotifier(context.Background(), store, "helper-H")
	require.NoError(t, err)
	n.Close()
	n.Close()

	_, open := <-n.Alerts()
	assert.False(t, open)

	matchedSession(t, store, "seeker", "helper-H", models.TopicStress)
	assert.Nil(t, n.Current())
}

func TestNotifierRequiresUser(t *testing.T) {
	_, err := supporthub.NewMatchNotifier(context.Background(), newStore(t), "")
	assert.ErrorIs(t, err, supporthub.ErrNotSignedIn)
}

func TestAcknowledgeMatchOnlyByAssignedHelper(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := matchedSession(t, store, "seeker", "helper", models.TopicStress)

	assert.ErrorIs(t, supporthub.AcknowledgeMatch(ctx, store, id, ""), supporthub.ErrNotSignedIn)
	assert.ErrorIs(t, supporthub.AcknowledgeMatch(ctx, store, id, "seeker"), supporthub.ErrNotParticipant)
	assert.ErrorIs(t, supporthub.AcknowledgeMatch(ctx, store, "missing", "helper"), storage.ErrNotFound)

	require.NoError(t, supporthub.AcknowledgeMatch(ctx, store, id, "helper"))
	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.Notified)
}

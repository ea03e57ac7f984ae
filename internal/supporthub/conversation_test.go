package supporthub_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"sapex/backend/internal/models"
	"sapex/backend/internal/supporthub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAppendWhitespaceWritesNothing(t *testing.T) {
	storageMock := new(MockStorage)

	m, err := supporthub.AppendMessage(context.Background(), storageMock, "s1", models.Author{ID: "u"}, "   ")
	assert.NoError(t, err)
	assert.Nil(t, m)
	storageMock.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestAppendWhitespaceLeavesConversationUnchanged(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id, err := supporthub.SubmitRequest(ctx, store, "seeker", models.TopicFriendship)
	require.NoError(t, err)

	conv, err := supporthub.OpenConversation(ctx, store, id)
	require.NoError(t, err)
	defer conv.Close()
	require.Len(t, receive(t, conv.Updates()), 1)

	_, err = supporthub.AppendMessage(ctx, store, id, models.Author{ID: "seeker"}, "\t \n")
	require.NoError(t, err)

	assertSilent(t, conv.Updates(), 200*time.Millisecond)
	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAppendTrimsAndRequiresAuthor(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.Content == "hello" && m.AuthorID == "u" && m.AuthorName == "Uma" && m.SessionID == "s1"
	})).Return(nil).Once()

	m, err := supporthub.AppendMessage(context.Background(), storageMock, "s1", models.Author{ID: "u", Name: "Uma"}, "  hello \n")
	require.NoError(t, err)
	require.NotNil(t, m)
	storageMock.AssertExpectations(t)

	_, err = supporthub.AppendMessage(context.Background(), storageMock, "s1", models.Author{}, "hi")
	assert.ErrorIs(t, err, supporthub.ErrNotSignedIn)
}

func TestConversationOrderUnderInterleavedSenders(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := matchedSession(t, store, "seeker", "helper", models.TopicHeartbreak)

	conv, err := supporthub.OpenConversation(ctx, store, id)
	require.NoError(t, err)
	defer conv.Close()

	const perSender = 15
	var wg sync.WaitGroup
	for _, author := range []string{"seeker", "helper"} {
		wg.Add(1)
		go func(author string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := supporthub.AppendMessage(ctx, store, id, models.Author{ID: author}, fmt.Sprintf("%s-%d", author, i))
				assert.NoError(t, err)
			}
		}(author)
	}

	deadline := time.After(waitFor)
	var last []models.Message
	for len(last) < 2*perSender {
		select {
		case msgs := <-conv.Updates():
			for i := 1; i < len(msgs); i++ {
				require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "log out of order")
			}
			require.GreaterOrEqual(t, len(msgs), len(last), "log shrank")
			for i := range last {
				require.Equal(t, last[i].ID, msgs[i].ID, "earlier messages moved")
			}
			last = msgs
		case <-deadline:
			t.Fatalf("only %d of %d messages arrived", len(last), 2*perSender)
		}
	}
	wg.Wait()

	full, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	got := conv.Messages()
	require.Len(t, got, len(full))
	for i := range full {
		assert.Equal(t, full[i].ID, got[i].ID)
	}
}

func TestConversationCanBeReopened(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id, err := supporthub.SubmitRequest(ctx, store, "seeker", models.TopicStress)
	require.NoError(t, err)

	conv, err := supporthub.OpenConversation(ctx, store, id)
	require.NoError(t, err)
	receive(t, conv.Updates())
	conv.Close()
	conv.Close()
	assert.NoError(t, conv.Err())

	_, err = supporthub.AppendMessage(ctx, store, id, models.Author{ID: "seeker"}, "still there?")
	require.NoError(t, err)

	again, err := supporthub.OpenConversation(ctx, store, id)
	require.NoError(t, err)
	defer again.Close()
	assert.Eventually(t, func() bool { return len(again.Messages()) == 2 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, "still there?", again.Messages()[1].Content)
}

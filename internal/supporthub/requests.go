// Package supporthub implements the wellness support pipeline: request
// submission, helper matching, match alerts, pending badges, conversations
// and resolution, plus the live hub that serves them to connected clients.
package supporthub

import (
	"context"
	"errors"
	"fmt"

	"sapex/backend/internal/models"
	"sapex/backend/internal/storage"
)

var (
	// ErrNotSignedIn is returned when a write needs a user id and none was given.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrBootstrapMessage reports that the session exists but its first
	// system message could not be written.
	ErrBootstrapMessage = errors.New("session created but bootstrap message failed")
	// ErrNotParticipant is returned when a user touches someone else's session.
	ErrNotParticipant = errors.New("not a participant of this session")
)

// BootstrapMessage opens every conversation.
const BootstrapMessage = "Conversation started."

// Navigation targets returned to clients.
const ResolvedPath = "/esupport"

func WaitingPath(sessionID string) string {
	return "/esupport/wait/" + sessionID
}

func ConversationPath(sessionID string) string {
	return "/esupport/" + sessionID
}

// RequestStore is what SubmitRequest writes to.
type RequestStore interface {
	storage.SessionStore
	storage.MessageStore
}

// SubmitRequest creates a session for seekerID and posts the bootstrap
// message. When only the message fails, the new id is returned together
// with ErrBootstrapMessage so the caller still knows where the session is.
func SubmitRequest(ctx context.Context, store RequestStore, seekerID string, topic models.Topic) (string, error) {
	if seekerID == "" {
		return "", ErrNotSignedIn
	}
	if !topic.Valid() {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidTopic, topic)
	}

	sess := &models.SupportSession{
		SeekerID: seekerID,
		Topic:    topic,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("create support session: %w", err)
	}

	msg := &models.Message{
		SessionID:  sess.ID,
		AuthorID:   models.SystemAuthor.ID,
		AuthorName: models.SystemAuthor.Name,
		Content:    BootstrapMessage,
	}
	if err := store.AppendMessage(ctx, msg); err != nil {
		return sess.ID, fmt.Errorf("%w: %v", ErrBootstrapMessage, err)
	}
	return sess.ID, nil
}

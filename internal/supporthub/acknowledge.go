package supporthub

import (
	"context"

	"sapex/backend/internal/storage"
)

// AcknowledgeMatch marks the alert for sessionID as seen on behalf of its
// assigned helper. It is the stateless form of Join and Dismiss.
func AcknowledgeMatch(ctx context.Context, store storage.SessionStore, sessionID, helperID string) error {
	if helperID == "" {
		return ErrNotSignedIn
	}
	sess, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Helper() != helperID {
		return ErrNotParticipant
	}
	return store.MarkNotified(ctx, sessionID)
}

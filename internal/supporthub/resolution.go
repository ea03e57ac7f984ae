package supporthub

import (
	"context"
	"errors"
	"fmt"

	"sapex/backend/internal/models"
	"sapex/backend/internal/storage"
)

const (
	MinRating = 1
	MaxRating = 10
)

var (
	ErrInvalidRating = fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
	ErrNotSeeker     = errors.New("only the seeker can resolve a session")
	ErrNotMatched    = errors.New("session has no helper yet")
	ErrSessionClosed = errors.New("session is already resolved")
)

// Rating is a satisfaction score from MinRating to MaxRating. The zero
// value is not a rating.
type Rating struct {
	value int
}

func NewRating(v int) (Rating, error) {
	if v < MinRating || v > MaxRating {
		return Rating{}, fmt.Errorf("%w: got %d", ErrInvalidRating, v)
	}
	return Rating{value: v}, nil
}

func (r Rating) Value() int { return r.value }

// Outcome is the normalized score stored on the session.
func (r Rating) Outcome() float64 {
	return float64(r.value) / MaxRating
}

// Resolve closes a matched session on behalf of its seeker.
func Resolve(ctx context.Context, store storage.SessionStore, sessionID, callerID string, r Rating) error {
	if callerID == "" {
		return ErrNotSignedIn
	}
	if r.value == 0 {
		return ErrInvalidRating
	}

	sess, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.SeekerID != callerID {
		return ErrNotSeeker
	}

	state, err := sess.State()
	if err != nil {
		return err
	}
	switch state.(type) {
	case models.Unmatched:
		return ErrNotMatched
	case models.Closed:
		return ErrSessionClosed
	}

	if err := store.SetOutcome(ctx, sessionID, r.Outcome()); err != nil {
		return fmt.Errorf("resolve session %s: %w", sessionID, err)
	}
	return nil
}

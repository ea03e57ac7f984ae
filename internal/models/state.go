package models

import (
	"errors"
	"fmt"
)

// ErrIllegalState marks a stored record whose field combination has no
// lifecycle meaning, e.g. an outcome without a helper.
var ErrIllegalState = errors.New("illegal session state")

// SessionState is the lifecycle of a SupportSession as a closed set of
// variants: Unmatched, Matched or Closed.
type SessionState interface {
	sessionState()
	Name() string
}

// Unmatched is an open session still waiting for a helper.
type Unmatched struct{}

// Matched is an open session with an assigned helper.
type Matched struct {
	HelperID string
}

// Closed is a resolved session. Outcome is in (0, 1].
type Closed struct {
	HelperID string
	Outcome  float64
}

func (Unmatched) sessionState() {}
func (Matched) sessionState()   {}
func (Closed) sessionState()    {}

func (Unmatched) Name() string { return "awaiting_match" }
func (Matched) Name() string   { return "matched" }
func (Closed) Name() string    { return "closed" }

// State derives the lifecycle variant from field presence.
func (s *SupportSession) State() (SessionState, error) {
	switch {
	case !s.HasHelper() && s.Outcome == nil:
		return Unmatched{}, nil
	case s.HasHelper() && s.Outcome == nil:
		return Matched{HelperID: *s.HelperID}, nil
	case s.HasHelper():
		return Closed{HelperID: *s.HelperID, Outcome: *s.Outcome}, nil
	default:
		return nil, fmt.Errorf("%w: session %s has an outcome but no helper", ErrIllegalState, s.ID)
	}
}

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Topic is a support category a seeker can pick when asking for help.
type Topic string

const (
	TopicFriendship Topic = "friendship"
	TopicLoneliness Topic = "loneliness"
	TopicHeartbreak Topic = "heartbreak"
	TopicBurnout    Topic = "burnout"
	TopicStress     Topic = "stress"
	TopicGuidance   Topic = "guidance"
	TopicStudy      Topic = "study"
)

// Topics lists every supported category in display order.
var Topics = []Topic{
	TopicFriendship,
	TopicLoneliness,
	TopicHeartbreak,
	TopicBurnout,
	TopicStress,
	TopicGuidance,
	TopicStudy,
}

// ErrInvalidTopic is returned when a topic is outside the fixed enumeration.
var ErrInvalidTopic = errors.New("invalid support topic")

// ParseTopic normalises s and checks it against Topics.
func ParseTopic(s string) (Topic, error) {
	t := Topic(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTopic, s)
}

// Valid reports whether t is one of Topics.
func (t Topic) Valid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the informal lifecycle marker written by the matcher.
type Status string

const (
	StatusNone    Status = ""
	StatusMatched Status = "matched"
)

// SupportSession is one wellness-support request ("esupport" record).
// HelperID and Outcome are nil until set; presence of Outcome is the only
// terminal-state signal.
type SupportSession struct {
	// ID is assigned by the store at creation.
	ID string `gorm:"primaryKey;type:uuid" json:"id"`
	// SeekerID is the requesting user. Immutable.
	SeekerID string `gorm:"type:text;not null;index" json:"seekerId"`
	// HelperID is set exactly once by the matcher.
	HelperID *string `gorm:"type:text;index:idx_helper_status" json:"helperId"`
	// Topic is the support category. Immutable.
	Topic Topic `gorm:"type:text;not null" json:"topic"`
	// Status is "matched" once a helper has been assigned.
	Status Status `gorm:"type:text;index:idx_helper_status" json:"status,omitempty"`
	// Notified flips false -> true once the helper saw the match alert.
	Notified bool `gorm:"not null;default:false" json:"notified"`
	// Outcome is rating/10, present only once the session is resolved.
	Outcome *float64 `json:"outcome"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName keeps the document-store collection name for the SQL table.
func (SupportSession) TableName() string {
	return "esupport"
}

// BeforeCreate generates a UUID when the store did not assign one.
func (s *SupportSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// IsOpen reports whether the session has no outcome yet.
func (s *SupportSession) IsOpen() bool {
	return s.Outcome == nil
}

// HasHelper reports whether a helper has been assigned.
func (s *SupportSession) HasHelper() bool {
	return s.HelperID != nil && *s.HelperID != ""
}

// Helper returns the assigned helper id or "".
func (s *SupportSession) Helper() string {
	if s.HelperID == nil {
		return ""
	}
	return *s.HelperID
}

// IsParticipant reports whether userID is the seeker or the helper.
func (s *SupportSession) IsParticipant(userID string) bool {
	return userID != "" && (s.SeekerID == userID || s.Helper() == userID)
}

// Clone returns a deep copy, so views never share pointers with the store.
func (s SupportSession) Clone() SupportSession {
	out := s
	if s.HelperID != nil {
		h := *s.HelperID
		out.HelperID = &h
	}
	if s.Outcome != nil {
		o := *s.Outcome
		out.Outcome = &o
	}
	return out
}

// Equal compares the stored fields of two sessions.
func (s SupportSession) Equal(o SupportSession) bool {
	return s.ID == o.ID &&
		s.SeekerID == o.SeekerID &&
		s.Helper() == o.Helper() &&
		s.HasHelper() == o.HasHelper() &&
		s.Topic == o.Topic &&
		s.Status == o.Status &&
		s.Notified == o.Notified &&
		floatPtrEqual(s.Outcome, o.Outcome)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SessionQuery selects sessions for one-shot reads and live subscriptions.
// Zero-valued fields do not filter.
type SessionQuery struct {
	SeekerID string
	HelperID string
	Status   Status
	// OpenOnly keeps sessions whose outcome is absent.
	OpenOnly bool
	// UnmatchedOnly keeps sessions whose helperId is absent.
	UnmatchedOnly bool
}

// Matches is the single predicate every backend and view applies.
func (q SessionQuery) Matches(s *SupportSession) bool {
	if s == nil {
		return false
	}
	if q.SeekerID != "" && s.SeekerID != q.SeekerID {
		return false
	}
	if q.HelperID != "" && s.Helper() != q.HelperID {
		return false
	}
	if q.Status != StatusNone && s.Status != q.Status {
		return false
	}
	if q.OpenOnly && !s.IsOpen() {
		return false
	}
	if q.UnmatchedOnly && s.HasHelper() {
		return false
	}
	return true
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemAuthorID is the author of messages written by the platform itself.
const SystemAuthorID = "system"

// Message is one entry of a session's append-only conversation log.
type Message struct {
	// ID is assigned by the store.
	ID string `gorm:"primaryKey;type:uuid" json:"id"`
	// SessionID is the owning esupport record.
	SessionID string `gorm:"type:uuid;not null;index:idx_session_created" json:"sessionId"`
	// AuthorID is the sender's user id, or SystemAuthorID.
	AuthorID string `gorm:"type:text;not null" json:"authorId"`
	// AuthorName is the display name shown next to the message.
	AuthorName string `gorm:"type:text;not null" json:"authorName"`
	// AuthorAvatar is an optional image URL.
	AuthorAvatar string `gorm:"type:text" json:"authorAvatar,omitempty"`
	// Content is the non-empty message text.
	Content string `gorm:"type:text;not null" json:"content"`
	// CreatedAt is assigned by the store and orders the log.
	CreatedAt time.Time `gorm:"index:idx_session_created" json:"createdAt"`
}

// TableName keeps messages next to their sessions.
func (Message) TableName() string {
	return "esupport_messages"
}

// BeforeCreate generates a UUID when the store did not assign one.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// Before orders messages by creation time, then id.
func (m Message) Before(o Message) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.ID < o.ID
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

// Author identifies who is writing a message.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// SystemAuthor writes bootstrap and notice messages.
var SystemAuthor = Author{ID: SystemAuthorID, Name: "Sapex"}

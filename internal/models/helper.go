package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Helper is a peer supporter who can be matched to sessions.
type Helper struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `gorm:"type:text" json:"displayName"`
	// Topics the helper covers. Empty means every topic.
	Topics pq.StringArray `gorm:"type:text[]" json:"topics"`
	// TelegramChatID links the helper to the alert relay bot.
	TelegramChatID *int64 `gorm:"uniqueIndex" json:"telegramChatId,omitempty"`
}

// BeforeCreate generates an id for helpers registered without one.
func (h *Helper) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return
}

// Covers reports whether the helper accepts sessions about topic.
func (h *Helper) Covers(topic Topic) bool {
	if len(h.Topics) == 0 {
		return true
	}
	for _, t := range h.Topics {
		if Topic(t) == topic {
			return true
		}
	}
	return false
}

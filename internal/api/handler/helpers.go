package handler

import (
	"errors"
	"fmt"
	"net/http"

	"sapex/backend/internal/models"
	"sapex/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type saveHelperBody struct {
	DisplayName string   `json:"displayName"`
	Topics      []string `json:"topics"`
	// Available defaults to true.
	Available *bool `json:"available"`
}

// SaveHelper registers the caller as a helper and updates pool membership.
func (h *Handler) SaveHelper(c *gin.Context) {
	var body saveHelperBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	topics := make([]string, 0, len(body.Topics))
	for _, raw := range body.Topics {
		t, err := models.ParseTopic(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		topics = append(topics, string(t))
	}

	ctx := c.Request.Context()
	userID := UserID(c)
	helper, err := h.Storage.GetHelper(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		helper = &models.Helper{ID: userID}
	case err != nil:
		respondError(c, err)
		return
	}
	helper.DisplayName = body.DisplayName
	helper.Topics = topics

	if err := h.Storage.SaveHelper(ctx, helper); err != nil {
		respondError(c, err)
		return
	}

	available := body.Available == nil || *body.Available
	if available {
		err = h.Storage.AddHelperToPool(ctx, userID)
	} else {
		err = h.Storage.RemoveHelperFromPool(ctx, userID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if available {
		h.wakeMatcher()
	}
	c.JSON(http.StatusOK, gin.H{"helper": helper, "available": available})
}

// TelegramLink issues a short-lived token the caller sends to the alert bot
// as /start <token>.
func (h *Handler) TelegramLink(c *gin.Context) {
	token, err := h.Auth.IssueLink(UserID(c))
	if err != nil {
		respondError(c, fmt.Errorf("issue link token: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"command":   "/start " + token,
		"expiresIn": int(LinkTokenTTL.Seconds()),
	})
}

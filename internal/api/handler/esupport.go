package handler

import (
	"errors"
	"net/http"

	"sapex/backend/internal/models"
	"sapex/backend/internal/observability"
	"sapex/backend/internal/supporthub"

	"github.com/gin-gonic/gin"
)

type submitRequestBody struct {
	Topic string `json:"topic" binding:"required"`
}

// SubmitRequest opens a support session for the caller.
func (h *Handler) SubmitRequest(c *gin.Context) {
	var body submitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	topic, err := models.ParseTopic(body.Topic)
	if err != nil {
		respondError(c, err)
		return
	}

	id, err := supporthub.SubmitRequest(c.Request.Context(), h.Storage, UserID(c), topic)
	switch {
	case errors.Is(err, supporthub.ErrBootstrapMessage):
		observability.LoggerFromContext(c.Request.Context()).Warn("bootstrap message failed", "session_id", id, "error", err)
		h.wakeMatcher()
		c.JSON(http.StatusCreated, gin.H{
			"id":       id,
			"redirect": supporthub.WaitingPath(id),
			"warning":  "your request was created but the conversation could not be started yet",
		})
		return
	case err != nil:
		respondError(c, err)
		return
	}
	h.wakeMatcher()
	c.JSON(http.StatusCreated, gin.H{"id": id, "redirect": supporthub.WaitingPath(id)})
}

// participantSession loads the session and checks the caller belongs to it.
func (h *Handler) participantSession(c *gin.Context) (*models.SupportSession, bool) {
	sess, err := h.Storage.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !sess.IsParticipant(UserID(c)) {
		respondError(c, supporthub.ErrNotParticipant)
		return nil, false
	}
	return sess, true
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.participantSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListMessages(c *gin.Context) {
	sess, ok := h.participantSession(c)
	if !ok {
		return
	}
	msgs, err := h.Storage.ListMessages(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type postMessageBody struct {
	Content string `json:"content"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

// PostMessage appends to the conversation. Blank content is accepted and
// writes nothing.
func (h *Handler) PostMessage(c *gin.Context) {
	sess, ok := h.participantSession(c)
	if !ok {
		return
	}
	var body postMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	author := models.Author{ID: UserID(c), Name: body.Name, Avatar: body.Avatar}
	msg, err := supporthub.AppendMessage(c.Request.Context(), h.Storage, sess.ID, author, body.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type resolveBody struct {
	Rating int `json:"rating"`
}

func (h *Handler) Resolve(c *gin.Context) {
	var body resolveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	rating, err := supporthub.NewRating(body.Rating)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := supporthub.Resolve(c.Request.Context(), h.Storage, c.Param("id"), UserID(c), rating); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": supporthub.ResolvedPath})
}

func (h *Handler) Join(c *gin.Context) {
	id := c.Param("id")
	if err := supporthub.AcknowledgeMatch(c.Request.Context(), h.Storage, id, UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": supporthub.ConversationPath(id)})
}

func (h *Handler) Dismiss(c *gin.Context) {
	if err := supporthub.AcknowledgeMatch(c.Request.Context(), h.Storage, c.Param("id"), UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PendingRequests returns the caller's open sessions for the given role.
func (h *Handler) PendingRequests(c *gin.Context) {
	role, err := supporthub.ParseRole(c.Query("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	sessions, err := h.Storage.QuerySessions(c.Request.Context(), supporthub.PendingQuery(UserID(c), role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
}

// Package handler exposes the support pipeline over HTTP and websockets.
package handler

import (
	"context"
	"errors"
	"net/http"

	"sapex/backend/internal/models"
	"sapex/backend/internal/observability"
	"sapex/backend/internal/storage"
	"sapex/backend/internal/studyroom"
	"sapex/backend/internal/supporthub"

	"github.com/gin-gonic/gin"
)

// Waker nudges the matcher after new work arrives.
type Waker interface {
	Wake()
}

type MeetCreator interface {
	CreateStudyRoomMeet(ctx context.Context, callerID, subjectName string) (studyroom.MeetResult, error)
}

type Handler struct {
	Hub     *supporthub.ManagerService
	Storage storage.Storage
	Matcher Waker
	Meets   MeetCreator
	Auth    *Auth
}

func NewHandler(hub *supporthub.ManagerService, matcher Waker, meets MeetCreator, auth *Auth) *Handler {
	return &Handler{
		Hub:     hub,
		Storage: hub.Storage,
		Matcher: matcher,
		Meets:   meets,
		Auth:    auth,
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), observability.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.Auth.RequireUser(), h.ServeWebSocket)
	r.POST("/studyroom/meet", h.Auth.Identify(), h.CreateStudyRoomMeet)

	api := r.Group("/", h.Auth.RequireUser())
	api.POST("/esupport", h.SubmitRequest)
	api.GET("/esupport/pending", h.PendingRequests)
	api.GET("/esupport/:id", h.GetSession)
	api.GET("/esupport/:id/messages", h.ListMessages)
	api.POST("/esupport/:id/messages", h.PostMessage)
	api.POST("/esupport/:id/resolve", h.Resolve)
	api.POST("/esupport/:id/join", h.Join)
	api.POST("/esupport/:id/dismiss", h.Dismiss)
	api.PUT("/helpers/me", h.SaveHelper)
	api.POST("/helpers/me/telegram-link", h.TelegramLink)

	return r
}

func (h *Handler) wakeMatcher() {
	if h.Matcher != nil {
		h.Matcher.Wake()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidTopic),
		errors.Is(err, supporthub.ErrInvalidRating),
		errors.Is(err, supporthub.ErrInvalidRole),
		errors.Is(err, storage.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, supporthub.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, supporthub.ErrNotSeeker),
		errors.Is(err, supporthub.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, supporthub.ErrSessionClosed),
		errors.Is(err, supporthub.ErrNotMatched),
		errors.Is(err, storage.ErrAlreadyMatched):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are
// logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(c.Request.Context()).Error("request failed", "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

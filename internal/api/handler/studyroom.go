package handler

import (
	"net/http"

	"sapex/backend/internal/observability"
	"sapex/backend/internal/studyroom"

	"github.com/gin-gonic/gin"
)

type meetBody struct {
	SubjectName string `json:"subjectName"`
}

func meetStatus(code studyroom.Code) int {
	switch code {
	case studyroom.CodeUnauthenticated:
		return http.StatusUnauthorized
	case studyroom.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case studyroom.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) CreateStudyRoomMeet(c *gin.Context) {
	var body meetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Meets.CreateStudyRoomMeet(c.Request.Context(), UserID(c), body.SubjectName)
	if err != nil {
		code := studyroom.CodeOf(err)
		status := meetStatus(code)
		if status == http.StatusInternalServerError {
			observability.LoggerFromContext(c.Request.Context()).Error("study room meet failed", "error", err)
		}
		c.AbortWithStatusJSON(status, gin.H{"code": code, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/http/response"
	"github.com/skillforge/skillforge-backend/internal/services"
)

type LessonHandler struct {
	lessons services.LessonProgressService
}

func NewLessonHandler(lessons services.LessonProgressService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

func (h *LessonHandler) Complete(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	lessonID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	progress, err := h.lessons.CompleteLesson(c.Request.Context(), nil, userID, lessonID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": progress})
}

type quizResultRequest struct {
	Score *int `json:"score" binding:"required"`
}

func (h *LessonHandler) RecordQuizResult(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	lessonID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req quizResultRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Score == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	progress, err := h.lessons.RecordQuizResult(c.Request.Context(), nil, userID, lessonID, *req.Score)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": progress})
}

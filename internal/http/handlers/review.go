package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/http/response"
	"github.com/skillforge/skillforge-backend/internal/requestdata"
	"github.com/skillforge/skillforge-backend/internal/services"
)

// ReviewHandler is the mentor-facing surface for claiming and settling
// submitted attempts.
type ReviewHandler struct {
	coordinator services.ReviewCoordinator
}

func NewReviewHandler(coordinator services.ReviewCoordinator) *ReviewHandler {
	return &ReviewHandler{coordinator: coordinator}
}

func (h *ReviewHandler) StartMentorReview(c *gin.Context) {
	attemptID, ok := uuidParam(c, "attemptId")
	if !ok {
		return
	}
	progress, err := h.coordinator.StartMentorReview(c.Request.Context(), nil, attemptID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress})
}

type mentorReviewRequest struct {
	SubtaskScores        map[string]int `json:"subtask_scores"`
	OverallScoreOverride *int           `json:"overall_score_override"`
	Decision             string         `json:"decision" binding:"required"`
	Feedback             string         `json:"feedback"`
}

func (h *ReviewHandler) ApplyMentorReview(c *gin.Context) {
	attemptID, ok := uuidParam(c, "attemptId")
	if !ok {
		return
	}
	var req mentorReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}

	input := services.MentorReviewInput{
		SubtaskScores:        req.SubtaskScores,
		OverallScoreOverride: req.OverallScoreOverride,
		Decision:             req.Decision,
		Feedback:             req.Feedback,
	}
	if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
		input.MentorID = rd.UserID
	}

	progress, err := h.coordinator.ApplyMentorReview(c.Request.Context(), nil, attemptID, input)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress})
}

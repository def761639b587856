package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/http/response"
	"github.com/skillforge/skillforge-backend/internal/services"
)

// IngestHandler receives graded submissions from the external lab pipeline.
type IngestHandler struct {
	ingest services.SubmissionIngestService
}

func NewIngestHandler(ingest services.SubmissionIngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type ingestSubmissionRequest struct {
	UserID          string  `json:"user_id" binding:"required"`
	ModuleMissionID string  `json:"module_mission_id" binding:"required"`
	Status          string  `json:"status" binding:"required"`
	Score           *int    `json:"score"`
	Grade           *string `json:"grade"`
	Feedback        string  `json:"feedback"`
}

func (h *IngestHandler) IngestSubmission(c *gin.Context) {
	var req ingestSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	userID, ok := parseBodyUserID(c, req.UserID)
	if !ok {
		return
	}
	linkID, err := uuid.Parse(req.ModuleMissionID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_module_mission_id", err)
		return
	}

	progress, err := h.ingest.Ingest(c.Request.Context(), nil, userID, services.IngestRecord{
		ModuleMissionID: linkID,
		Status:          req.Status,
		Score:           req.Score,
		Grade:           req.Grade,
		Feedback:        req.Feedback,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress})
}

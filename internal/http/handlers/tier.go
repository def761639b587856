package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/http/response"
	"github.com/skillforge/skillforge-backend/internal/services"
)

// TierHandler exposes tier completion status, mentor approval, and the
// administrative reset.
type TierHandler struct {
	evaluator services.TierEvaluator
	rollup    services.RollupService
}

func NewTierHandler(evaluator services.TierEvaluator, rollup services.RollupService) *TierHandler {
	return &TierHandler{evaluator: evaluator, rollup: rollup}
}

func tierParam(c *gin.Context) (int, bool) {
	tier, err := strconv.Atoi(c.Param("tier"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_tier", err)
		return 0, false
	}
	return tier, true
}

// TierStatus evaluates lazily at read time, so a freshly satisfied tier is
// reported (and persisted) without waiting for the next write.
func (h *TierHandler) TierStatus(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	trackID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tier, ok := tierParam(c)
	if !ok {
		return
	}
	complete, missing, err := h.evaluator.EvaluateTier(c.Request.Context(), nil, userID, trackID, tier, false)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"tier":                 tier,
		"complete":             complete,
		"missing_requirements": missing,
	})
}

func (h *TierHandler) TrackProgress(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	trackID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	progress, err := h.rollup.RecomputeTrack(c.Request.Context(), nil, userID, trackID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": progress})
}

type mentorApprovalRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *TierHandler) RecordMentorApproval(c *gin.Context) {
	trackID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tier, ok := tierParam(c)
	if !ok {
		return
	}
	var req mentorApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	learnerID, ok := parseBodyUserID(c, req.UserID)
	if !ok {
		return
	}
	if err := h.evaluator.RecordMentorApproval(c.Request.Context(), nil, learnerID, trackID, tier); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (h *TierHandler) ResetTier(c *gin.Context) {
	trackID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tier, ok := tierParam(c)
	if !ok {
		return
	}
	var req mentorApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	learnerID, ok := parseBodyUserID(c, req.UserID)
	if !ok {
		return
	}
	if err := h.evaluator.ResetTier(c.Request.Context(), nil, learnerID, trackID, tier); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/http/response"
	"github.com/skillforge/skillforge-backend/internal/services"
)

// MissionHandler exposes the attempt state machine: start, subtask and
// decision progress, submission, and the engagement counters.
type MissionHandler struct {
	execution   services.MissionExecutionService
	coordinator services.ReviewCoordinator
}

func NewMissionHandler(execution services.MissionExecutionService, coordinator services.ReviewCoordinator) *MissionHandler {
	return &MissionHandler{execution: execution, coordinator: coordinator}
}

func (h *MissionHandler) Start(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	progress, err := h.execution.Start(c.Request.Context(), nil, userID, missionID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress})
}

func (h *MissionHandler) GetAttempt(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.execution.Get(c.Request.Context(), nil, userID, missionID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, view)
}

type completeSubtaskRequest struct {
	SubtaskIndex int    `json:"subtask_index" binding:"required"`
	Notes        string `json:"notes"`
	Evidence     string `json:"evidence"`
}

func (h *MissionHandler) CompleteSubtask(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req completeSubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	progress, ready, err := h.execution.CompleteSubtask(c.Request.Context(), nil, userID, missionID, req.SubtaskIndex, req.Notes, req.Evidence)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress, "ready_to_submit": ready})
}

func (h *MissionHandler) CheckSubtaskUnlockable(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	subtaskID := c.Param("subtaskId")
	result, err := h.execution.CheckSubtaskUnlockable(c.Request.Context(), nil, userID, missionID, subtaskID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, result)
}

type recordDecisionRequest struct {
	DecisionID string `json:"decision_id" binding:"required"`
	ChoiceID   string `json:"choice_id" binding:"required"`
}

func (h *MissionHandler) RecordDecision(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req recordDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	consequence, err := h.execution.RecordDecision(c.Request.Context(), nil, userID, missionID, req.DecisionID, req.ChoiceID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"consequence": consequence})
}

type submitRequest struct {
	ReflectionText string `json:"reflection_text"`
}

func (h *MissionHandler) Submit(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	progress, err := h.execution.Submit(c.Request.Context(), nil, userID, missionID, req.ReflectionText)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress})
}

func (h *MissionHandler) Reopen(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	progress, err := h.coordinator.ReopenForRevision(c.Request.Context(), nil, userID, missionID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": progress})
}

func (h *MissionHandler) RecordHint(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.execution.RecordHint(c.Request.Context(), nil, userID, missionID); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type stageTimeRequest struct {
	SubtaskID string `json:"subtask_id" binding:"required"`
	Seconds   int    `json:"seconds" binding:"required"`
}

func (h *MissionHandler) RecordStageTime(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req stageTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if err := h.execution.RecordStageTime(c.Request.Context(), nil, userID, missionID, req.SubtaskID, req.Seconds); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type toolUsedRequest struct {
	Tool string `json:"tool" binding:"required"`
}

func (h *MissionHandler) RecordToolUsed(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	missionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req toolUsedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if err := h.execution.RecordToolUsed(c.Request.Context(), nil, userID, missionID, req.Tool); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

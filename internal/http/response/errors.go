package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/errs"
)

// RespondDomainError maps the service error taxonomy onto HTTP statuses so
// every handler reports the same shape for the same failure.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, errs.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, errs.ErrInvalidSubtask):
		RespondError(c, http.StatusBadRequest, "invalid_subtask", err)
	case errors.Is(err, errs.ErrDecisionNotFound):
		RespondError(c, http.StatusNotFound, "decision_not_found", err)
	case errors.Is(err, errs.ErrInvalidChoice):
		RespondError(c, http.StatusBadRequest, "invalid_choice", err)
	case errors.Is(err, errs.ErrInvalidTransition):
		RespondError(c, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, errs.ErrAlreadySubmitted):
		RespondError(c, http.StatusConflict, "already_submitted", err)
	case errors.Is(err, errs.ErrConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

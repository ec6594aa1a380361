package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surveyrt/runtime/internal/admission"
	"github.com/surveyrt/runtime/internal/runtime"
)

// writeError maps a controller/admission-layer error to the status codes
// and body shapes spec.md §7's error taxonomy names, the gin translation
// of the teacher's mapServiceError.
func writeError(c *gin.Context, err error) {
	var blocked *admission.BlockedError
	if errors.As(err, &blocked) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admission blocked", "reason": blocked.Reason})
		return
	}

	var valErr *runtime.ValidationError
	if errors.As(err, &valErr) {
		violations := make([]violationDTO, len(valErr.Violations))
		for i, v := range valErr.Violations {
			violations[i] = violationDTO{QuestionID: v.QuestionID, Code: v.Code, Message: v.Message}
		}
		c.JSON(http.StatusBadRequest, gin.H{"violations": violations})
		return
	}

	switch {
	case errors.Is(err, runtime.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, runtime.ErrWrongStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "session is not in progress"})
	case errors.Is(err, runtime.ErrOverquota):
		c.JSON(http.StatusForbidden, gin.H{"error": "overquota", "reason": "OVERQUOTA"})
	case errors.Is(err, runtime.ErrTerminated):
		c.JSON(http.StatusConflict, gin.H{"error": "session already terminated"})
	case errors.Is(err, runtime.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, runtime.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent modification, retry"})
	case errors.Is(err, admission.ErrCollectorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "collector not found"})
	case errors.Is(err, admission.ErrCollectorClosed), errors.Is(err, admission.ErrCollectorFull), errors.Is(err, admission.ErrInviteInvalid):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "reason": err.Error()})
	default:
		slog.Error("unexpected runtime error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

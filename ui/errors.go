package ui

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stacingest/domain/core"
	apperrors "stacingest/internal/errors"
	"stacingest/internal/extension"
	"stacingest/internal/reconcile"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusByCode = map[string]int{
	apperrors.CodeInvalidInput:      http.StatusBadRequest,
	apperrors.CodeValidationError:   http.StatusUnprocessableEntity,
	apperrors.CodeNotFound:          http.StatusNotFound,
	apperrors.CodeUnauthorized:      http.StatusUnauthorized,
	apperrors.CodeForbidden:         http.StatusForbidden,
	apperrors.CodeConflict:          http.StatusConflict,
	apperrors.CodeReconciliation:    http.StatusConflict,
	apperrors.CodeInvalidTransition: http.StatusConflict,
	apperrors.CodeExternalService:   http.StatusBadGateway,
	apperrors.CodeConfigInvalid:     http.StatusServiceUnavailable,
	apperrors.CodeDatabaseError:     http.StatusInternalServerError,
}

// classify maps an error to its HTTP status and API code. An AppError code
// wins; otherwise the domain sentinel in the chain decides.
func classify(err error) (int, string) {
	code := apperrors.GetCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}

	switch {
	case core.IsNotFoundError(err):
		return http.StatusNotFound, apperrors.CodeNotFound
	case stderrors.Is(err, core.ErrInvalidTransition), stderrors.Is(err, core.ErrStaleOperation):
		return http.StatusConflict, apperrors.CodeInvalidTransition
	case stderrors.Is(err, core.ErrEmptyKey), stderrors.Is(err, reconcile.ErrSummariesInRaw):
		return http.StatusBadRequest, apperrors.CodeInvalidInput
	case core.IsReconciliationError(err):
		return http.StatusConflict, apperrors.CodeReconciliation
	case core.IsValidationError(err), stderrors.Is(err, extension.ErrParse), stderrors.Is(err, extension.ErrNoFields):
		return http.StatusUnprocessableEntity, apperrors.CodeValidationError
	case stderrors.Is(err, extension.ErrFetch):
		return http.StatusBadGateway, apperrors.CodeExternalService
	}
	return http.StatusInternalServerError, apperrors.CodeInternalError
}

// abort writes err as the response and stops the handler chain
func (s *Server) abort(c *gin.Context, err error) {
	status, code := classify(err)
	msg := apperrors.UserMessage(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("[API] %s %s: %v", c.Request.Method, c.FullPath(), err)
		if code == apperrors.CodeInternalError {
			msg = "internal server error"
		}
	}
	c.AbortWithStatusJSON(status, errorBody{Error: msg, Code: code})
}

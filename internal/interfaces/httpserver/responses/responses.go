// Package responses maps domain outcomes to HTTP payloads.
package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/session"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Issue describes one failed validation constraint.
type Issue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// StatusForKind maps the failure taxonomy to HTTP status codes.
func StatusForKind(kind session.ErrorKind) int {
	switch kind {
	case session.KindValidation:
		return http.StatusBadRequest
	case session.KindAuthentication:
		return http.StatusUnauthorized
	case session.KindRateLimit:
		return http.StatusTooManyRequests
	case session.KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the error envelope.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorBody{Error: message, Details: details})
}

// DomainError writes an error chosen by the failure's classification. Store
// and session sentinels get their conventional statuses.
func DomainError(c *gin.Context, err error) {
	var serr *session.Error
	switch {
	case errors.As(err, &serr):
		Error(c, StatusForKind(serr.Kind), serr.Message, nil)
	case errors.Is(err, chat.ErrNotFound):
		Error(c, http.StatusNotFound, "not found", nil)
	case errors.Is(err, chat.ErrAlreadyExists):
		Error(c, http.StatusConflict, "already exists", nil)
	case errors.Is(err, session.ErrSessionActive):
		Error(c, http.StatusConflict, session.ErrSessionActive.Error(), nil)
	case errors.Is(err, session.ErrRetryLimit):
		Error(c, http.StatusTooManyRequests, session.ErrRetryLimit.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, "internal error", nil)
	}
}

// BindingError turns a gin binding failure into a 400 with a structured
// issue list when the failure came from validation tags.
func BindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, Issue{Field: fe.Field(), Rule: fe.Tag()})
		}
		Error(c, http.StatusBadRequest, "invalid request", issues)
		return
	}
	Error(c, http.StatusBadRequest, "invalid request body", nil)
}

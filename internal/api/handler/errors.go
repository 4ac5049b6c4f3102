package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const codeUnauthorized = "UNAUTHORIZED"

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a JSON error response. Internal errors are
// logged with their cause and reported without it.
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	appErr := domain.AsError(err)
	status := StatusOf(appErr.Kind)

	body := ErrorBody{
		Code:    string(appErr.Kind),
		Message: appErr.Message,
		Fields:  appErr.Fields,
	}

	switch {
	case appErr.Kind == domain.KindInternal:
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		body.Message = "internal error"
	case appErr.Kind == domain.KindExternalService:
		logger.Warn("Upstream dependency failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: body})
}

// RespondUnauthorized is used for missing or invalid credentials, which
// never reach the lifecycle services.
func RespondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error: ErrorBody{Code: codeUnauthorized, Message: message},
	})
}

// bindError reports a request body that could not be decoded.
func bindError(c *gin.Context, logger *slog.Logger, err error) {
	logger.Debug("Invalid request body", slog.String("error", err.Error()))
	RespondError(c, logger, domain.NewFieldError("body", "must be valid JSON"))
}

// pathID reads a UUID path parameter, responding 400 when malformed.
func pathID(c *gin.Context, logger *slog.Logger, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		RespondError(c, logger, domain.NewFieldError(name, "must be a valid UUID"))
		return "", false
	}
	return id, true
}

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isLeadSyncError(err) {
		return mapLeadSyncError(err)
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid request",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, domain.ErrDeliveryLogDisabled):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// mapLeadSyncError picks the status from the error kind. Messages are passed
// through so the webhook sender sees why a delivery failed.
func mapLeadSyncError(err error) (int, errorPayload) {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation:
		code := leadValidationCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    kind.String(),
			Message: leadErrorMessage(err),
			Errors: []ValidationError{
				{
					Field:   "payload",
					Code:    code,
					Message: leadErrorMessage(err),
				},
			},
		}
	case domain.KindUnauthorized:
		return http.StatusUnauthorized, errorPayload{
			Type:    kind.String(),
			Message: "invalid webhook signature",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    kind.String(),
			Message: err.Error(),
		}
	}
}

func isLeadSyncError(err error) bool {
	var leadErr *domain.Error
	if errors.As(err, &leadErr) && leadErr != nil {
		return true
	}
	return errors.Is(err, domain.ErrInvalidSignature) ||
		errors.Is(err, domain.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrMissingOrderID)
}

func leadValidationCode(err error) string {
	if errors.Is(err, domain.ErrMissingOrderID) {
		return domain.ErrMissingOrderID.Error()
	}
	return domain.ErrInvalidPayload.Error()
}

func leadErrorMessage(err error) string {
	var leadErr *domain.Error
	if errors.As(err, &leadErr) && leadErr != nil && leadErr.Message != "" {
		return leadErr.Message
	}
	return err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog returns the error type and code recorded on the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil {
		return "validation_error", "invalid_request"
	}
	if isLeadSyncError(err) {
		kind := domain.KindOf(err)
		if kind == domain.KindValidation {
			return kind.String(), leadValidationCode(err)
		}
		return kind.String(), kind.String()
	}
	_, payload := mapError(err)
	return payload.Type, payload.Type
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/utils"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorResponder turns errors raised by services and pipeline stages into
// the JSON error payload. Internal details never reach the client.
type ErrorResponder struct {
	logger *zap.Logger
}

// NewErrorResponder creates a new ErrorResponder
func NewErrorResponder(logger *zap.Logger) *ErrorResponder {
	return &ErrorResponder{logger: logger}
}

// Respond writes the error response for err
func (e *ErrorResponder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	status, message, details := e.classify(r, err)

	if writeErr := utils.WriteError(w, r, status, message, details); writeErr != nil {
		e.logger.Error("failed to write error response",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Int("status", status),
			zap.Error(writeErr))
	}
}

func (e *ErrorResponder) classify(r *http.Request, err error) (int, string, map[string]interface{}) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Type {
		case shared.ErrorTypeUnauthorized:
			return http.StatusUnauthorized, domainErr.Message, nil
		case shared.ErrorTypeForbidden:
			return http.StatusForbidden, domainErr.Message, nil
		case shared.ErrorTypeNotFound:
			return http.StatusNotFound, domainErr.Message, nil
		case shared.ErrorTypeValidation:
			return http.StatusBadRequest, domainErr.Message, domainErr.Details
		case shared.ErrorTypeConflict:
			return http.StatusConflict, domainErr.Message, nil
		case shared.ErrorTypeRateLimited:
			return http.StatusTooManyRequests, domainErr.Message, domainErr.Details
		case shared.ErrorTypeTimeout:
			return http.StatusGatewayTimeout, domainErr.Message, nil
		}
	}

	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		details := make(map[string]interface{}, len(validationErr.Fields))
		for k, v := range validationErr.Fields {
			details[k] = v
		}
		return http.StatusBadRequest, validationErr.Message, details
	}

	var malformed *utils.MalformedBodyError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest, "Malformed request body", nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warn("request deadline exceeded",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return http.StatusGatewayTimeout, shared.ErrRequestTimeout.Message, nil
	}

	e.logger.Error("unhandled error",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("error_type", string(shared.GetErrorType(err))),
		zap.Error(err))
	return http.StatusInternalServerError, "An unexpected error occurred", nil
}

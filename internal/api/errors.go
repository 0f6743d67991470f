package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/repository"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/zap"
)

// ErrorCode is a stable machine-readable error identifier
type ErrorCode string

const (
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed    ErrorCode = "method_not_allowed"

	ErrorCodeValidationFailed  ErrorCode = "validation_failed"
	ErrorCodeInvalidRange      ErrorCode = "invalid_range"
	ErrorCodeInvalidTransition ErrorCode = "invalid_transition"
	ErrorCodeInvalidFormat     ErrorCode = "invalid_format"
)

// APIError is the JSON error body
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	StatusCode int       `json:"-"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details any, statusCode int) APIError {
	return APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// FromError maps service errors onto API errors. Anything unrecognized is
// an internal error and its message is not exposed.
func FromError(err error) APIError {
	var apiErr APIError
	var verr *validator.ValidationError
	var terr *db.TransitionError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, repository.ErrNotFound):
		return NewAPIError(ErrorCodeNotFound, "record not found", nil, http.StatusNotFound)
	case errors.As(err, &verr):
		return NewAPIError(ErrorCodeValidationFailed, verr.Error(), map[string]string{"field": verr.Field, "reason": verr.Reason}, http.StatusBadRequest)
	case errors.Is(err, validator.ErrInvalidRange):
		return NewAPIError(ErrorCodeInvalidRange, err.Error(), nil, http.StatusBadRequest)
	case errors.As(err, &terr):
		return NewAPIError(ErrorCodeInvalidTransition, terr.Error(), map[string]string{"from": terr.From, "to": terr.To}, http.StatusBadRequest)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return NewAPIError(ErrorCodeInvalidFormat, fmt.Sprintf("malformed request body: %v", err), nil, http.StatusBadRequest)
	}
	return NewAPIError(ErrorCodeInternalServerError, "internal server error", nil, http.StatusInternalServerError)
}

// RespondWithError writes apiErr as JSON with its status code
func RespondWithError(w http.ResponseWriter, logger *zap.Logger, apiErr APIError) {
	RespondWithJSON(w, logger, apiErr.StatusCode, apiErr)
}

// RespondWithJSON writes payload as JSON with statusCode
func RespondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

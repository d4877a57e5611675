package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewMalformedPayloadError creates a normalizer rejection for a webhook body.
// Callers should not retry these.
func NewMalformedPayloadError(channel, reason string) *AppError {
	return New(ErrCodeMalformedPayload, fmt.Sprintf("malformed %s payload: %s", channel, reason)).
		WithContext("channel", channel).
		WithUserMessage("The webhook payload could not be parsed")
}

// NewInvalidTransitionError reports a state change that is not legal from the
// current control mode. Surfaced to the operator as a conflict, never coerced.
func NewInvalidTransitionError(conversationID, from, action string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("cannot %s from %s", action, from)).
		WithContext("conversation_id", conversationID).
		WithContext("control_mode", from).
		WithContext("action", action).
		WithUserMessage("The conversation changed state; refresh and retry")
}

// NewBusyError reports lease contention. Retryable with backoff.
func NewBusyError(conversationID string) *AppError {
	return &AppError{
		Code:        ErrCodeBusy,
		Message:     "conversation lease acquisition timed out",
		Retryable:   true,
		Context:     map[string]interface{}{"conversation_id": conversationID},
		UserMessage: "The conversation is busy, please retry",
	}
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewAPIError creates an API error for external service calls
func NewAPIError(service string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch service {
	case "ai_agent":
		code = ErrCodeAIAgentAPI
	case "notify":
		code = ErrCodeNotifyAPI
	default:
		code = ErrCodeInternalError
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("status_code", statusCode)

	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewAdvisorUnavailableError marks an AI summarization failure. Advisory
// failure must never block a manual handback, so callers degrade to a
// low-confidence recommendation instead of propagating this.
func NewAdvisorUnavailableError(err error) *AppError {
	return Wrap(err, ErrCodeAdvisorUnavailable, "handback summarization unavailable").
		WithUserMessage("Unable to assess the conversation right now")
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeMalformedPayload, ErrCodeInvalidInput, ErrCodeValidationFailed, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeBusy:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeAIAgentAPI, ErrCodeNotifyAPI, ErrCodeAdvisorUnavailable:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the standardized HTTP error body
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{RequestID: requestID}

	if appErr, ok := err.(*AppError); ok {
		response.Error.Code = appErr.Code
		response.Error.Message = GetUserMessage(err)
		if appErr.Context != nil {
			response.Error.Context = appErr.Context
		}
		return response
	}

	response.Error.Code = ErrCodeInternalError
	response.Error.Message = GetUserMessage(err)
	return response
}

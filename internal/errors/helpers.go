package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewQueueError marks a failed durable write to the stalled message queue.
// These are not recovered at the relay layer.
func NewQueueError(operation, tenant string, err error) *AppError {
	return Wrap(err, ErrCodeQueuePersistence, fmt.Sprintf("queue %s failed", operation)).
		WithContext("operation", operation).
		WithContext("tenant", tenant).
		WithUserMessage("Queue persistence failed")
}

// NewTenantNotFound creates the error returned for an unknown slug
func NewTenantNotFound(slug string) *AppError {
	return New(ErrCodeTenantNotFound, "tenant not found").
		WithContext("tenant", slug).
		WithUserMessage("Project not found")
}

// NewForbidden creates the error returned on a shared secret mismatch
func NewForbidden(slug string) *AppError {
	return New(ErrCodeForbidden, "shared secret mismatch").
		WithContext("tenant", slug).
		WithUserMessage("Access forbidden")
}

// NewTransportError wraps a failed outbound send. Transport errors are
// always retryable.
func NewTransportError(url string, statusCode int, err error) *AppError {
	msg := "outbound send failed"
	if statusCode > 0 {
		msg = fmt.Sprintf("outbound send returned status %d", statusCode)
	}
	return WrapRetryable(err, ErrCodeTransport, msg).
		WithContext("url", url).
		WithContext("status_code", statusCode)
}

// NewMalformedReplyError marks a server reply that does not have the expected structure
func NewMalformedReplyError(reason string, err error) *AppError {
	return Wrap(err, ErrCodeMalformedReply, reason)
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeTenantNotFound:
		return http.StatusNotFound
	case ErrCodeTransport:
		return http.StatusBadGateway
	case ErrCodeDatabaseQuery, ErrCodeQueuePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for rejected requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}
	response.Error.Code = GetCode(err)
	response.Error.Message = GetUserMessage(err)
	return response
}

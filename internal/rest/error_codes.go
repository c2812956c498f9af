package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode represents machine-readable error codes for outcome handling.
type ErrorCode string

const (
	// ErrBadRequest indicates a malformed request (HTTP 400).
	ErrBadRequest ErrorCode = "bad_request"
	// ErrUnauthorized indicates authentication is required or failed (HTTP 401).
	ErrUnauthorized ErrorCode = "unauthorized"
	// ErrForbidden indicates the caller lacks permission (HTTP 403).
	ErrForbidden ErrorCode = "forbidden"
	// ErrNotFound indicates the requested resource does not exist (HTTP 404).
	ErrNotFound ErrorCode = "not_found"
	// ErrMethodNotAllowed indicates the endpoint rejects the method (HTTP 405).
	ErrMethodNotAllowed ErrorCode = "method_not_allowed"
	// ErrConflict indicates a conflict with current state (HTTP 409).
	ErrConflict ErrorCode = "conflict"
	// ErrGone indicates the resource was removed permanently (HTTP 410).
	ErrGone ErrorCode = "gone"
	// ErrPayloadTooLarge indicates the request body was rejected for size (HTTP 413).
	ErrPayloadTooLarge ErrorCode = "payload_too_large"
	// ErrUnsupportedMediaType indicates the body encoding was rejected (HTTP 415).
	ErrUnsupportedMediaType ErrorCode = "unsupported_media_type"
	// ErrValidation indicates input validation failed (HTTP 422).
	ErrValidation ErrorCode = "validation_failed"
	// ErrRateLimited indicates too many requests (HTTP 429).
	ErrRateLimited ErrorCode = "rate_limited"
	// ErrServerError indicates an internal server error (HTTP 5xx).
	ErrServerError ErrorCode = "server_error"
	// ErrTimeout indicates the request timed out.
	ErrTimeout ErrorCode = "timeout"
	// ErrCanceled indicates the request was cancelled by the caller.
	ErrCanceled ErrorCode = "canceled"
	// ErrNetwork indicates the transport failed before a response arrived.
	ErrNetwork ErrorCode = "network_error"
	// ErrDecode indicates the response matched neither expected type.
	ErrDecode ErrorCode = "decode_failed"
	// ErrInvalidRequest indicates the request could not be constructed locally.
	ErrInvalidRequest ErrorCode = "invalid_request"
	// ErrUnknown indicates an unknown or unclassified error.
	ErrUnknown ErrorCode = "unknown"
)

// IsRetryable returns true if errors with this code may succeed on retry.
// The client never retries on its own; this is advice for callers.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrRateLimited, ErrServerError, ErrTimeout, ErrNetwork:
		return true
	default:
		return false
	}
}

// Suggestion returns a human-readable suggestion for resolving this error.
func (c ErrorCode) Suggestion() string {
	switch c {
	case ErrUnauthorized:
		return "Run 'trest auth login' to store a valid token"
	case ErrForbidden:
		return "Check the token's permissions"
	case ErrNotFound:
		return "Verify the path and resource ID"
	case ErrMethodNotAllowed:
		return "Check the HTTP method for this endpoint"
	case ErrRateLimited:
		return "Wait a moment and retry"
	case ErrValidation:
		return "Check the input values"
	case ErrBadRequest:
		return "Check the request format and parameters"
	case ErrConflict:
		return "The resource state may have changed; refresh and retry"
	case ErrPayloadTooLarge:
		return "Reduce the size of the request body or attachments"
	case ErrUnsupportedMediaType:
		return "Try a different body encoding (--encoding form, --multipart)"
	case ErrServerError:
		return "The server encountered an error; try again later"
	case ErrTimeout:
		return "The request timed out; check network connectivity and retry"
	case ErrNetwork:
		return "Check the base URL and your network connection"
	case ErrDecode:
		return "Use --debug to inspect the raw response"
	default:
		return ""
	}
}

// ErrorCodeFromStatus maps an HTTP status code to an ErrorCode.
func ErrorCodeFromStatus(statusCode int) ErrorCode {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case http.StatusRequestTimeout:
		return ErrTimeout
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusUnsupportedMediaType:
		return ErrUnsupportedMediaType
	case http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if statusCode >= 500 && statusCode < 600 {
			return ErrServerError
		}
		return ErrUnknown
	}
}

// StructuredError provides machine-readable error information.
type StructuredError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// MarshalJSON implements custom JSON marshaling.
func (e *StructuredError) MarshalJSON() ([]byte, error) {
	type Alias StructuredError
	return json.Marshal((*Alias)(e))
}

// NewStructuredError creates a StructuredError from an ErrorCode and message.
func NewStructuredError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:       code,
		Message:    message,
		Retryable:  code.IsRetryable(),
		Suggestion: code.Suggestion(),
	}
}

// StructuredErrorFromAPIError converts an APIError to a StructuredError.
func StructuredErrorFromAPIError(apiErr *APIError) *StructuredError {
	se := NewStructuredError(ErrorCodeFromStatus(apiErr.Status), apiErr.Message)
	if se.Message == "" {
		se.Message = apiErr.Error()
	}
	se.Context = map[string]any{"status": apiErr.Status}
	return se
}

// StructuredErrorFromError attempts to convert any error to a StructuredError.
func StructuredErrorFromError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return StructuredErrorFromAPIError(apiErr)
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		out := NewStructuredError(ErrDecode, decodeErr.Error())
		out.Context = map[string]any{
			"success_type": decodeErr.SuccessType,
			"failure_type": decodeErr.FailureType,
		}
		return out
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return NewStructuredError(ErrInvalidRequest, reqErr.Error())
	}

	if errors.Is(err, context.Canceled) {
		return NewStructuredError(ErrCanceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewStructuredError(ErrTimeout, err.Error())
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return NewStructuredError(ErrTimeout, err.Error())
		}
		return NewStructuredError(ErrNetwork, err.Error())
	}

	return &StructuredError{
		Code:    ErrUnknown,
		Message: err.Error(),
	}
}

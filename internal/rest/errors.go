package rest

import (
	"errors"
	"fmt"
)

// DefaultDecodeErrorMessage is used when neither the Success nor the Failure
// type accepts a response payload.
const DefaultDecodeErrorMessage = "Unable to decode server response."

// UnexpectedResponseMessage describes a payload that does not follow the
// expected response envelope.
const UnexpectedResponseMessage = "Looks like we received unexpected response from our server."

var (
	// ErrMissingBaseURL is the precondition violation raised when a client is
	// used without a base URL.
	ErrMissingBaseURL = errors.New("rest: base URL is not configured")

	// ErrSameType is the precondition violation raised when a call declares
	// identical Success and Failure types.
	ErrSameType = errors.New("rest: success and failure types must differ")

	// ErrEmptyFile is returned when a File has neither a path nor inline data.
	ErrEmptyFile = errors.New("rest: file has no data and no path")

	errNilResultError = errors.New("rest: unknown error")
)

// APIError is the generic structured failure shape: an HTTP-like status and a
// human readable message. It is the Failure type used by Fetch. A zero Status
// marks a failure the server did not classify; Err optionally names its cause.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Status == 0 && e.Message != "" {
		return e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("API error (status %d)", e.Status)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError wraps an engine level failure.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestError reports a failure to construct the outgoing request.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a payload matches neither the Success nor the
// Failure type. The per-type errors are kept for diagnostics.
type DecodeError struct {
	Message     string
	PayloadType string
	SuccessType string
	FailureType string
	SuccessErr  error
	FailureErr  error
}

func (e *DecodeError) Error() string {
	if e.Message == "" {
		return DefaultDecodeErrorMessage
	}
	return e.Message
}

// FailureError carries a structured Failure through the error channel.
type FailureError[F any] struct {
	Failure F
}

func (e *FailureError[F]) Error() string {
	if err, ok := any(e.Failure).(error); ok && err != nil {
		return err.Error()
	}
	return fmt.Sprintf("request failed: %+v", e.Failure)
}

func (e *FailureError[F]) Unwrap() error {
	if err, ok := any(e.Failure).(error); ok {
		return err
	}
	return nil
}

// IsTransportError checks if the error is a transport error.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsDecodeError checks if the error is a decode error.
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// IsAPIError checks if the error is a structured API failure.
func IsAPIError(err error) bool {
	var e *APIError
	return errors.As(err, &e)
}

// AsFailure extracts the structured Failure raised by Await.
func AsFailure[F any](err error) (F, bool) {
	var fe *FailureError[F]
	if errors.As(err, &fe) {
		return fe.Failure, true
	}
	var zero F
	return zero, false
}

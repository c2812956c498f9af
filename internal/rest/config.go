package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Config holds the client-wide settings shared by every call.
type Config struct {
	// BaseURL is required. Request paths are appended to it.
	BaseURL string
	// Header holds default headers. Per-call headers win on collision.
	Header http.Header
	// Debug logs a numbered block for every request and response.
	Debug bool
	// Decoding controls how strictly payloads are matched to types.
	Decoding DecodePolicy
	// ResponseModifier may reshape a parsed JSON payload before decoding.
	ResponseModifier ResponseModifier
	// ErrorHandler observes Failure and Error outcomes.
	ErrorHandler ErrorHandler
	// Observer sees every outcome.
	Observer Observer
	// Feedback is signalled for calls that opt in through Options.
	Feedback Feedback
	// Delivery runs completions of Go. Defaults to a per-client SerialQueue.
	Delivery Executor
	// DecodeErrorMessage replaces DefaultDecodeErrorMessage.
	DecodeErrorMessage string
	// Logger receives debug blocks and hook warnings. Defaults to slog.Default.
	Logger *slog.Logger
}

// ResponseModifier inspects a parsed JSON payload. An OK result replaces the
// payload, a Failure result forces Failure decoding of its value, and an
// Error result ends interception with that error.
type ResponseModifier func(resp *Response, payload any) Result[any, any]

// ErrorHandler receives the request, its original parameters, the raw
// response body and the failure or error. It runs after the call settles.
type ErrorHandler func(ctx context.Context, req *http.Request, params any, body []byte, err error)

// Outcome summarizes a settled call for observers.
type Outcome struct {
	ID         int64
	Kind       Kind
	Method     string
	URL        string
	StatusCode int
	// Err is the failure or error; nil when Kind is KindOK.
	Err      error
	Duration time.Duration
}

// Observer is notified once for every settled call.
type Observer interface {
	Observe(ctx context.Context, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

func (f ObserverFunc) Observe(ctx context.Context, o Outcome) { f(ctx, o) }

// Feedback produces user-perceptible success or failure signals.
type Feedback interface {
	Success()
	Failure()
}

// Executor runs delivery tasks.
type Executor interface {
	Submit(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Submit(task func()) { f(task) }

// Inline runs each task immediately on the submitting goroutine.
var Inline Executor = ExecutorFunc(func(task func()) { task() })

func (c Config) decodeErrorMessage() string {
	if c.DecodeErrorMessage != "" {
		return c.DecodeErrorMessage
	}
	return DefaultDecodeErrorMessage
}

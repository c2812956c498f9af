package rest

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync/atomic"
	"time"
)

// Do sends req and returns the raw response together with the decoded
// Result. Side effects (feedback, error handler, observer) run before Do
// returns, unless ctx is done by then.
//
// Do panics when S and F are the same type or when c was not created by New.
func Do[S, F any](ctx context.Context, c *Client, req Request) (*Response, Result[S, F]) {
	checkTypes[S, F]()
	c.mustBeConfigured()

	resp, result := execute[S, F](ctx, c, req)
	if ctx.Err() == nil {
		c.settle(ctx, req, resp, result.kind, result.outcomeError())
	}
	return resp, result
}

// Send is Do without the raw response.
func Send[S, F any](ctx context.Context, c *Client, req Request) Result[S, F] {
	_, result := Do[S, F](ctx, c, req)
	return result
}

// Fetch decodes failures as *APIError and returns them as the error.
func Fetch[S any](ctx context.Context, c *Client, req Request) (S, error) {
	result := Send[S, *APIError](ctx, c, req)
	if f, ok := result.Failure(); ok {
		var zero S
		return zero, f
	}
	v, _ := result.Value()
	return v, result.Err()
}

// Await collapses the Result: Failure values are returned as
// *FailureError[F], see AsFailure.
func Await[S, F any](ctx context.Context, c *Client, req Request) (S, error) {
	return Send[S, F](ctx, c, req).Unwrap()
}

// Call is an in-flight request started by Go.
type Call struct {
	id       atomic.Int64
	cancel   context.CancelFunc
	canceled atomic.Bool
	done     chan struct{}
}

// Cancel aborts the request. The completion and side effects are suppressed
// unless delivery has already started.
func (c *Call) Cancel() {
	c.canceled.Store(true)
	c.cancel()
}

// Done is closed once the completion ran or was suppressed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until Done is closed.
func (c *Call) Wait() {
	<-c.done
}

// ID returns the request number, or 0 before the request was built.
func (c *Call) ID() int64 {
	return c.id.Load()
}

func (c *Call) suppressed(ctx context.Context) bool {
	return c.canceled.Load() || ctx.Err() != nil
}

// Go sends req in the background. completion, then the side effects, run as
// one task on the client's delivery executor. Cancelling the Call or ctx
// before delivery suppresses both.
func Go[S, F any](ctx context.Context, c *Client, req Request, completion func(*Response, Result[S, F])) *Call {
	checkTypes[S, F]()
	c.mustBeConfigured()

	ctx, cancel := context.WithCancel(ctx)
	call := &Call{cancel: cancel, done: make(chan struct{})}

	go func() {
		resp, result := execute[S, F](ctx, c, req)
		call.id.Store(resp.ID)
		if call.suppressed(ctx) {
			cancel()
			close(call.done)
			return
		}
		c.delivery.Submit(func() {
			defer close(call.done)
			defer cancel()
			if call.suppressed(ctx) {
				return
			}
			if completion != nil {
				c.safely("completion", func() { completion(resp, result) })
			}
			c.settle(ctx, req, resp, result.kind, result.outcomeError())
		})
	}()
	return call
}

// execute builds, sends and intercepts one request. The returned Response is
// never nil and always carries the request number.
func execute[S, F any](ctx context.Context, c *Client, req Request) (*Response, Result[S, F]) {
	resp := &Response{ID: c.nextID()}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		c.logResponse(ctx, resp, err)
		return resp, Err[S, F](err)
	}
	resp.Request = httpReq
	c.logRequest(ctx, resp.ID, httpReq, req.Params)

	start := time.Now()
	httpResp, err := c.engine.Do(httpReq)
	if err != nil {
		resp.Duration = time.Since(start)
		terr := &TransportError{Method: httpReq.Method, URL: httpReq.URL.String(), Err: err}
		c.logResponse(ctx, resp, terr)
		return resp, Err[S, F](terr)
	}

	body, err := io.ReadAll(httpResp.Body)
	_ = httpResp.Body.Close()
	resp.StatusCode = httpResp.StatusCode
	resp.Header = httpResp.Header
	resp.Duration = time.Since(start)
	if err != nil {
		terr := &TransportError{Method: httpReq.Method, URL: httpReq.URL.String(), Err: fmt.Errorf("failed to read response: %w", err)}
		c.logResponse(ctx, resp, terr)
		return resp, Err[S, F](terr)
	}
	resp.Body = body
	c.logResponse(ctx, resp, nil)

	return resp, intercept[S, F](ctx, c, resp)
}

// settle runs the side effects of a finished call. Hooks are isolated from
// each other: a panicking hook is logged and the next one still runs.
func (c *Client) settle(ctx context.Context, req Request, resp *Response, kind Kind, err error) {
	if kind == KindOK {
		if req.Options.Has(SuccessFeedback) && c.cfg.Feedback != nil {
			c.safely("success feedback", c.cfg.Feedback.Success)
		}
	} else {
		if req.Options.Has(FailureFeedback) && c.cfg.Feedback != nil {
			c.safely("failure feedback", c.cfg.Feedback.Failure)
		}
		if !req.Options.Has(SkipErrorHandler) && c.cfg.ErrorHandler != nil {
			c.safely("error handler", func() {
				c.cfg.ErrorHandler(ctx, resp.Request, req.Params, resp.Body, err)
			})
		}
	}

	if c.cfg.Observer != nil {
		o := Outcome{
			ID:         resp.ID,
			Kind:       kind,
			Method:     resp.method(),
			URL:        resp.url(),
			StatusCode: resp.StatusCode,
			Err:        err,
			Duration:   resp.Duration,
		}
		c.safely("observer", func() { c.cfg.Observer.Observe(ctx, o) })
	}
}

func (c *Client) safely(hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("hook panicked", "hook", hook, "panic", r)
		}
	}()
	fn()
}

func checkTypes[S, F any]() {
	if reflect.TypeFor[S]() == reflect.TypeFor[F]() {
		panic(fmt.Errorf("%w: both are %s", ErrSameType, typeName[S]()))
	}
}

package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/typedrest/typedrest/internal/debug"
)

func (c *Client) debugEnabled(ctx context.Context) bool {
	return c.cfg.Debug || debug.IsEnabled(ctx)
}

// logRequest writes the numbered request block.
func (c *Client) logRequest(ctx context.Context, id int64, req *http.Request, params any) {
	if !c.debugEnabled(ctx) {
		return
	}
	attrs := []any{
		slog.Int64("id", id),
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
	}
	if h := debug.RedactHeaders(req.Header); h != nil {
		attrs = append(attrs, slog.Any("headers", h))
	}
	if params != nil {
		if pretty, err := json.MarshalIndent(describeParams(params), "", "  "); err == nil {
			attrs = append(attrs, slog.String("params", string(pretty)))
		}
	}
	c.logger.DebugContext(ctx, "request", attrs...)
}

// logResponse writes the numbered response block, including transport errors.
func (c *Client) logResponse(ctx context.Context, resp *Response, err error) {
	if !c.debugEnabled(ctx) {
		return
	}
	attrs := []any{
		slog.Int64("id", resp.ID),
		slog.String("method", resp.method()),
		slog.String("url", resp.url()),
	}
	if resp.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", resp.StatusCode), slog.Duration("duration", resp.Duration))
	}
	if h := debug.RedactHeaders(resp.Header); h != nil {
		attrs = append(attrs, slog.Any("headers", h))
	}
	if body := debug.FormatBody(resp.Body); body != "" {
		attrs = append(attrs, slog.String("body", body))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.logger.DebugContext(ctx, "response", attrs...)
}

func (c *Client) logDecodeFailure(ctx context.Context, resp *Response, derr *DecodeError) {
	if !c.debugEnabled(ctx) {
		return
	}
	c.logger.DebugContext(ctx, "unable to decode response",
		slog.Int64("id", resp.ID),
		slog.String("payload_type", derr.PayloadType),
		slog.String("success_type", derr.SuccessType),
		slog.Any("success_error", derr.SuccessErr),
		slog.String("failure_type", derr.FailureType),
		slog.Any("failure_error", derr.FailureErr),
	)
}

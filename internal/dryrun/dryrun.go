// Package dryrun previews outgoing requests without sending them.
package dryrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/typedrest/typedrest/internal/debug"
	"github.com/typedrest/typedrest/internal/rest"
)

type contextKey string

const dryRunKey contextKey = "dry_run_enabled"

// WithDryRun returns a context with dry-run mode enabled/disabled.
func WithDryRun(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, dryRunKey, enabled)
}

// IsEnabled returns true if dry-run mode is enabled.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(dryRunKey).(bool); ok {
		return v
	}
	return false
}

// Preview describes a request that would have been sent.
type Preview struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Encoding string            `json:"encoding"`
	Headers  map[string]string `json:"headers,omitempty"`
	Params   any               `json:"params,omitempty"`
	Body     string            `json:"body,omitempty"`
}

// FromRequest builds a preview of an encoded request. Credentials in headers
// are redacted; multipart bodies are summarized by their parameters.
func FromRequest(req *http.Request, encoding rest.Encoding, params any) (*Preview, error) {
	p := &Preview{
		Method:   req.Method,
		URL:      req.URL.String(),
		Encoding: encoding.String(),
		Headers:  debug.RedactHeaders(req.Header),
	}
	if params != nil {
		p.Params = rest.Describe(params)
	}
	if req.Body == nil {
		return p, nil
	}
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		p.Encoding = rest.EncodingMultipart.String()
		p.Body = fmt.Sprintf("<%d bytes multipart>", len(body))
		return p, nil
	}
	p.Body = string(bytes.TrimSpace(body))
	return p, nil
}

// Write outputs the preview to the writer
func (p *Preview) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n[DRY-RUN] Would send %s %s\n", p.Method, p.URL)
	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")

	if len(p.Headers) > 0 {
		keys := make([]string, 0, len(p.Headers))
		for k := range p.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", k, p.Headers[k])
		}
		_, _ = fmt.Fprintln(w)
	}

	if p.Body != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", p.Body)
	}

	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")
	_, _ = fmt.Fprintln(w, "Nothing sent (dry-run mode)")
}

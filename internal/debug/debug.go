// Package debug provides context-based debug mode with structured logging.
package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

type contextKey string

const debugKey contextKey = "debug_enabled"

// MaxBodyBytes caps how much of a body is rendered into a debug block.
const MaxBodyBytes = 64 * 1024

// WithDebug returns a context with debug mode enabled/disabled.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, debugKey, enabled)
}

// IsEnabled returns true if debug mode is enabled in the context.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(debugKey).(bool); ok {
		return v
	}
	return false
}

// SetupLogger installs and returns the default slog logger writing to w.
// Format "json" selects the JSON handler, anything else the text handler.
func SetupLogger(w io.Writer, debugEnabled bool, format string) *slog.Logger {
	logger := NewLogger(w, debugEnabled, format)
	slog.SetDefault(logger)
	return logger
}

// NewLogger is SetupLogger without replacing the default logger.
func NewLogger(w io.Writer, debugEnabled bool, format string) *slog.Logger {
	level := slog.LevelWarn
	if debugEnabled {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"Api_access_token":    true,
	"X-Api-Key":           true,
}

// RedactHeaders flattens headers for logging, hiding credential values.
func RedactHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(h))
	for _, k := range keys {
		if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = strings.Join(h[k], ", ")
	}
	return out
}

// RedactURL hides query values and userinfo passwords. Query keys stay so
// the shape of the request remains readable.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
		}
	}
	if u.RawQuery != "" {
		pairs := strings.Split(u.RawQuery, "&")
		for i, pair := range pairs {
			key, _, _ := strings.Cut(pair, "=")
			pairs[i] = key + "=[REDACTED]"
		}
		u.RawQuery = strings.Join(pairs, "&")
	}
	return u.String()
}

// FormatBody renders a payload for a debug block: indented JSON when the
// body parses, the text when it is UTF-8, a size marker otherwise.
func FormatBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	truncated := false
	if len(body) > MaxBodyBytes {
		body = body[:MaxBodyBytes]
		truncated = true
	}

	var out string
	var pretty bytes.Buffer
	switch {
	case !truncated && json.Indent(&pretty, body, "", "  ") == nil:
		out = pretty.String()
	case utf8.Valid(body):
		out = string(body)
	default:
		return fmt.Sprintf("<%d bytes>", len(body))
	}
	if truncated {
		out += "\n... (truncated)"
	}
	return out
}

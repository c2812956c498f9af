// Package filter runs jq expressions over decoded response payloads.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression fixes shell-escaped operators in jq expressions.
// Zsh escapes ! to \! even in single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(expr, `\!`, `!`)
}

// Compile parses an expression once so it can be run over many payloads.
func Compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(NormalizeExpression(expression))
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return code, nil
}

// Apply applies a jq expression to the input data. A single result is
// returned as is; multiple results are collected into a slice.
func Apply(data any, expression string) (any, error) {
	if expression == "" {
		return data, nil
	}
	code, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	results, err := Run(code, data)
	if err != nil {
		if items, ok := itemsQueryFallbackData(data, expression, err); ok {
			if fallback, fallbackErr := Run(code, items); fallbackErr == nil {
				return collapseQueryResults(fallback), nil
			}
		}
		return nil, err
	}
	return collapseQueryResults(results), nil
}

// Run evaluates compiled code against data.
func Run(code *gojq.Code, data any) ([]any, error) {
	iter := code.Run(normalizeNumbers(data))

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

func collapseQueryResults(results []any) any {
	if len(results) == 1 {
		return results[0]
	}
	return results
}

// gojq only understands float64, int and *big.Int numbers.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeNumbers(e)
		}
		return out
	}
	return v
}

// A list response wrapped as {"items": [...]} still answers .[] queries.
func itemsQueryFallbackData(data any, expression string, runErr error) (any, bool) {
	if runErr == nil || !looksLikeRootArrayQuery(expression) {
		return nil, false
	}
	if !strings.Contains(runErr.Error(), "expected an object but got: array") {
		return nil, false
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := m["items"].([]any)
	if !ok {
		return nil, false
	}
	return items, true
}

func looksLikeRootArrayQuery(expression string) bool {
	expr := strings.TrimSpace(expression)
	return strings.HasPrefix(expr, ".[]") || strings.HasPrefix(expr, "[.[]") || strings.HasPrefix(expr, "(.[]")
}

// ApplyFromJSON applies a jq filter to JSON bytes and returns the result as a Go value.
func ApplyFromJSON(jsonData []byte, expression string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return Apply(data, expression)
}

// ApplyToJSON applies a filter to JSON bytes and returns pretty-printed JSON.
func ApplyToJSON(jsonData []byte, expression string) ([]byte, error) {
	if expression == "" {
		return jsonData, nil
	}
	result, err := ApplyFromJSON(jsonData, expression)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(result, "", "  ")
}

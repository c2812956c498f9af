package outfmt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/typedrest/typedrest/internal/filter"
)

type queryKey struct{}

// WithQuery adds a jq query to the context
func WithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryKey{}, query)
}

// GetQuery retrieves the jq query from context
func GetQuery(ctx context.Context) string {
	q, _ := ctx.Value(queryKey{}).(string)
	return q
}

// ApplyQuery applies a jq query to v. Typed values are run through their
// JSON form so struct tags decide the field names.
func ApplyQuery(v any, query string) (any, error) {
	if query == "" {
		return v, nil
	}
	switch v.(type) {
	case nil, map[string]any, []any, string, bool, float64, json.Number:
		return filter.Apply(v, query)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value for query: %w", err)
	}
	return filter.ApplyFromJSON(data, query)
}

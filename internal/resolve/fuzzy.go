// Package resolve matches user-typed names against known alias and profile
// names.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Match is a fuzzy match result with score.
type Match struct {
	Name  string
	Score int
}

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrEmptyNames = errors.New("no names to match against")
)

// NotFoundError reports a query with no match at all.
type NotFoundError struct {
	Kind  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s matches %q", e.Kind, e.Query)
}

// AmbiguousError indicates multiple candidates matched equally well.
type AmbiguousError struct {
	Kind    string
	Query   string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ambiguous %s %q", e.Kind, e.Query)
	if len(e.Matches) > 0 {
		b.WriteString(", candidates:")
		for _, m := range e.Matches {
			_, _ = fmt.Fprintf(&b, "\n  %s", m.Name)
		}
	}
	return b.String()
}

type lowerNames []string

func (s lowerNames) String(i int) string { return strings.ToLower(s[i]) }
func (s lowerNames) Len() int            { return len(s) }

// Name finds the best match for query among names. An exact
// case-insensitive hit wins outright; otherwise the top fuzzy result is
// returned unless it ties with the runner-up.
func Name(kind, query string, names []string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if len(names) == 0 {
		return "", ErrEmptyNames
	}

	for _, name := range names {
		if strings.EqualFold(name, query) {
			return name, nil
		}
	}

	results := fuzzy.FindFrom(strings.ToLower(query), lowerNames(names))
	if len(results) == 0 {
		return "", &NotFoundError{Kind: kind, Query: query}
	}
	if len(results) > 1 && results[0].Score == results[1].Score {
		return "", &AmbiguousError{
			Kind:    kind,
			Query:   query,
			Matches: buildMatches(names, results, 5),
		}
	}
	return names[results[0].Index], nil
}

// Suggest returns up to limit matches ranked by score (best first).
func Suggest(query string, names []string, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" || len(names) == 0 || limit <= 0 {
		return nil
	}
	return buildMatches(names, fuzzy.FindFrom(strings.ToLower(query), lowerNames(names)), limit)
}

func buildMatches(names []string, results fuzzy.Matches, limit int) []Match {
	if len(results) == 0 || limit <= 0 {
		return nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{Name: names[r.Index], Score: r.Score}
	}
	return matches
}

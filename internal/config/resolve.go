package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Overrides are command-line values that take precedence over the
// environment and the stored profile.
type Overrides struct {
	Profile string
	BaseURL string
	Token   string
}

// Resolved is the effective profile for one invocation.
type Resolved struct {
	Name string
	Profile
}

// Resolve merges flags, TREST_* environment variables and the stored profile,
// in that order of precedence. A base URL is required.
func Resolve(o Overrides) (Resolved, error) {
	name := strings.TrimSpace(o.Profile)
	if name == "" {
		name = strings.TrimSpace(os.Getenv(EnvProfile))
	}
	if name == "" {
		current, err := CurrentProfile()
		if err != nil {
			return Resolved{}, err
		}
		name = current
	}

	p, err := LoadProfile(name)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return Resolved{}, err
	}
	r := Resolved{Name: name, Profile: p}

	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		r.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		r.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournalURL)); v != "" {
		r.JournalURL = v
	}
	if o.BaseURL != "" {
		r.BaseURL = o.BaseURL
	}
	if o.Token != "" {
		r.Token = o.Token
	}

	r.BaseURL = strings.TrimSuffix(strings.TrimSpace(r.BaseURL), "/")
	if r.BaseURL == "" {
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{}, fmt.Errorf("profile %q has no base URL (set %s or pass --base-url)", name, EnvBaseURL)
	}
	return r, nil
}

// Package update checks GitHub for a newer trest release.
package update

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/typedrest/typedrest/internal/rest"
)

const (
	// DefaultReleasesURL is the default URL for checking releases.
	DefaultReleasesURL = "https://api.github.com/repos/typedrest/typedrest/releases/latest"
	CheckTimeout       = 5 * time.Second
)

// ReleasesURL is the URL to check for releases. Can be overridden in tests.
var ReleasesURL = DefaultReleasesURL

// Release is the subset of the GitHub release payload we read.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type CheckResult struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateURL       string
	UpdateAvailable bool
}

// CheckForUpdate checks if a newer version is available.
// Returns nil if the check fails - never blocks the CLI.
func CheckForUpdate(ctx context.Context, currentVersion string) *CheckResult {
	if currentVersion == "dev" || currentVersion == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	client, err := rest.New(rest.Config{
		BaseURL: ReleasesURL,
		Header:  http.Header{"Accept": []string{"application/vnd.github+json"}},
	}, rest.WithTimeout(CheckTimeout))
	if err != nil {
		return nil
	}
	defer client.Close()

	release, err := rest.Fetch[Release](ctx, client, rest.Get("", nil))
	if err != nil || release.TagName == "" {
		return nil
	}

	current := normalizeVersion(currentVersion)
	latest := normalizeVersion(release.TagName)

	result := &CheckResult{
		CurrentVersion: currentVersion,
		LatestVersion:  strings.TrimPrefix(release.TagName, "v"),
		UpdateURL:      release.HTMLURL,
	}

	if semver.IsValid(current) && semver.IsValid(latest) {
		result.UpdateAvailable = semver.Compare(latest, current) > 0
	}

	return result
}

func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

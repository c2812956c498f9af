package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// setupTestServer creates a test server and overrides ReleasesURL.
func setupTestServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	originalURL := ReleasesURL
	ReleasesURL = server.URL
	t.Cleanup(func() {
		server.Close()
		ReleasesURL = originalURL
	})
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1.0.0", "v1.0.0"},
		{"v1.0.0", "v1.0.0"},
		{"", "v"},
		{"v", "v"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeVersion(tt.input); got != tt.expected {
				t.Errorf("normalizeVersion(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCheckForUpdate_SkipsDevBuilds(t *testing.T) {
	for _, v := range []string{"dev", ""} {
		if result := CheckForUpdate(context.Background(), v); result != nil {
			t.Errorf("CheckForUpdate(%q) = %+v, want nil", v, result)
		}
	}
}

func TestCheckForUpdate_Versions(t *testing.T) {
	tests := []struct {
		name          string
		current       string
		tag           string
		wantLatest    string
		wantAvailable bool
	}{
		{name: "patch update", current: "1.0.0", tag: "v1.0.1", wantLatest: "1.0.1", wantAvailable: true},
		{name: "minor update", current: "1.0.0", tag: "v1.1.0", wantLatest: "1.1.0", wantAvailable: true},
		{name: "major update", current: "v1.9.9", tag: "v2.0.0", wantLatest: "2.0.0", wantAvailable: true},
		{name: "same version", current: "1.2.0", tag: "v1.2.0", wantLatest: "1.2.0"},
		{name: "current newer", current: "2.0.0", tag: "v1.5.0", wantLatest: "1.5.0"},
		{name: "tag without prefix", current: "1.0.0", tag: "1.0.1", wantLatest: "1.0.1", wantAvailable: true},
		{name: "prerelease is older", current: "1.0.0", tag: "v1.0.0-rc.1", wantLatest: "1.0.0-rc.1"},
		{name: "invalid current", current: "not-a-version", tag: "v1.0.0", wantLatest: "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
					t.Errorf("Accept = %q", got)
				}
				respond(http.StatusOK, `{"tag_name":"`+tt.tag+`","html_url":"https://example.com/r","name":"ignored"}`)(w, r)
			})

			result := CheckForUpdate(context.Background(), tt.current)
			if result == nil {
				t.Fatal("expected result, got nil")
			}
			if result.LatestVersion != tt.wantLatest {
				t.Errorf("LatestVersion = %q, want %q", result.LatestVersion, tt.wantLatest)
			}
			if result.UpdateAvailable != tt.wantAvailable {
				t.Errorf("UpdateAvailable = %v, want %v", result.UpdateAvailable, tt.wantAvailable)
			}
			if result.CurrentVersion != tt.current || result.UpdateURL != "https://example.com/r" {
				t.Errorf("unexpected result %+v", result)
			}
		})
	}
}

func TestCheckForUpdate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "not found", handler: respond(http.StatusNotFound, `{"message":"Not Found"}`)},
		{name: "rate limited", handler: respond(http.StatusTooManyRequests, ``)},
		{name: "invalid JSON", handler: respond(http.StatusOK, `{not json`)},
		{name: "missing tag", handler: respond(http.StatusOK, `{"html_url":"https://example.com"}`)},
		{name: "empty tag", handler: respond(http.StatusOK, `{"tag_name":"","html_url":"https://example.com"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestServer(t, tt.handler)
			if result := CheckForUpdate(context.Background(), "1.0.0"); result != nil {
				t.Errorf("expected nil, got %+v", result)
			}
		})
	}
}

func TestCheckForUpdate_ContextCanceled(t *testing.T) {
	setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		respond(http.StatusOK, `{"tag_name":"v9.0.0","html_url":""}`)(w, r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if result := CheckForUpdate(ctx, "1.0.0"); result != nil {
		t.Errorf("expected nil for canceled context, got %+v", result)
	}
}

func TestCheckForUpdate_ConnectionError(t *testing.T) {
	original := ReleasesURL
	ReleasesURL = "http://127.0.0.1:1"
	t.Cleanup(func() { ReleasesURL = original })

	if result := CheckForUpdate(context.Background(), "1.0.0"); result != nil {
		t.Errorf("expected nil, got %+v", result)
	}
}

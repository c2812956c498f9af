package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/update"
)

func TestRoot_UnknownCommandSuggestion(t *testing.T) {
	isolateEnv(t)
	withMockKeyring(t)

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"reqest", "/x"})
	})
	require.Error(t, err)
	assert.Equal(t, exitUsage, ExitCode(err))
	assert.Contains(t, stderr, `Did you mean "request"?`)
}

func TestRoot_UnknownFlagSuggestion(t *testing.T) {
	isolateEnv(t)
	withMockKeyring(t)

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"request", "/x", "--encodng", "form"})
	})
	require.Error(t, err)
	assert.Contains(t, stderr, `Did you mean "--encoding"?`)
	assert.Contains(t, stderr, `Run "trest request --help"`)
}

func TestRoot_FlagValidation(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler())

	cases := []struct {
		args []string
		want string
	}{
		{[]string{"request", "/x", "--json", "-o", "jsonl"}, "--json conflicts with --output jsonl"},
		{[]string{"request", "/x", "-o", "yaml"}, "yaml"},
		{[]string{"request", "/x", "-o", "raw", "--jq", "."}, "cannot be used with --output raw"},
		{[]string{"request", "/x", "--timeout", "-1s"}, "--timeout must be >= 0"},
		{[]string{"request", "/x", "--template", "@/does/not/exist"}, "failed to read template file"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			var err error
			captureStderr(t, func() {
				err = Execute(context.Background(), tc.args)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRoot_JSONAndOutputAgree(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/x", jsonResponse(200, `{"a":1}`)))
	out := runOK(t, "request", "/x", "--json", "-o", "json", "--cj")
	assert.Equal(t, "{\"a\":1}\n", out)
}

func TestRoot_Template(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/u", jsonResponse(200, `{"name":"Ada","tags":["x","y"]}`)))
	out := runOK(t, "request", "/u", "--template", `{{.name}}: {{join ", " .tags}}`)
	assert.Equal(t, "Ada: x, y", strings.TrimSpace(out))
}

func TestRoot_QuietDiscardsOutput(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/x", jsonResponse(200, `{"a":1}`)))
	out := runOK(t, "-Q", "request", "/x")
	assert.Empty(t, out)
}

func TestRoot_Bell(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().
		On("GET", "/ok", jsonResponse(200, `{}`)).
		On("GET", "/bad", jsonResponse(500, `{}`)))

	stderr := captureStderr(t, func() { runOK(t, "request", "/ok", "--bell") })
	assert.Equal(t, 1, strings.Count(stderr, "\a"))

	stderr = captureStderr(t, func() {
		captureStdout(t, func() {
			assert.Error(t, Execute(context.Background(), []string{"request", "/bad", "--bell"}))
		})
	})
	assert.Equal(t, 2, strings.Count(stderr, "\a"))

	t.Setenv("TREST_BELL", "1")
	stderr = captureStderr(t, func() { runOK(t, "request", "/ok") })
	assert.Equal(t, 1, strings.Count(stderr, "\a"))

	stderr = captureStderr(t, func() { runOK(t, "request", "/ok", "--bell=false") })
	assert.Zero(t, strings.Count(stderr, "\a"))
}

func TestRoot_DebugLogsRequests(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/x", jsonResponse(200, `{"a":1}`)))

	stderr := captureStderr(t, func() { runOK(t, "request", "/x", "--debug", "--log-format", "json") })
	assert.Contains(t, stderr, `"msg":"request"`)
	assert.Contains(t, stderr, `"msg":"response"`)
	assert.NotContains(t, stderr, "test-token")

	stderr = captureStderr(t, func() { runOK(t, "request", "/x") })
	assert.NotContains(t, stderr, `request`)
}

func TestRoot_ProfileDebug(t *testing.T) {
	env := setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/x", jsonResponse(200, `{}`)))
	require.NoError(t, config.SaveProfile("default", config.Profile{BaseURL: env.server.URL, Debug: true}))

	stderr := captureStderr(t, func() { runOK(t, "request", "/x") })
	assert.Contains(t, stderr, "msg=request")
}

func TestRoot_LoadsDotEnv(t *testing.T) {
	env := setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/x", jsonResponse(200, `{"from":"dotenv"}`)))
	t.Setenv(config.EnvBaseURL, "")
	_ = os.Unsetenv(config.EnvBaseURL)

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TREST_BASE_URL="+env.server.URL+"\n"), 0o600))
	t.Setenv("TREST_ENV_FILE", path)
	t.Cleanup(func() { _ = os.Unsetenv(config.EnvBaseURL) })

	out := runOK(t, "request", "/x", "--json")
	assert.JSONEq(t, `{"from":"dotenv"}`, out)
}

func TestRoot_BaseURLFlagWins(t *testing.T) {
	rec := record(newRouteHandler().On("GET", "/v2/x", jsonResponse(200, `{}`)))
	env := setupTestEnvWithHandler(t, rec)
	t.Setenv(config.EnvBaseURL, "http://127.0.0.1:1")

	runOK(t, "request", "/x", "--base-url", env.server.URL+"/v2/")
	assert.Equal(t, "/v2/x", rec.last(t).Path)
}

func TestRoot_TransportErrorExitCode(t *testing.T) {
	isolateEnv(t)
	withMockKeyring(t)
	t.Setenv(config.EnvBaseURL, "http://127.0.0.1:1")

	err := runErr(t, "request", "/x", "--timeout", "2s")
	assert.Equal(t, exitNetwork, ExitCode(err))
}

func TestVersion(t *testing.T) {
	isolateEnv(t)
	withMockKeyring(t)

	out := runOK(t, "version")
	assert.Equal(t, "trest version dev\n", out)

	out = runOK(t, "version", "--json")
	payload, ok := decodeJSONOutput(t, out).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dev", payload["version"])
}

func TestVersion_Check(t *testing.T) {
	env := setupTestEnvWithHandler(t, jsonResponse(200, `{"tag_name":"v9.0.0","html_url":"https://example.com/r"}`))
	orig := update.ReleasesURL
	update.ReleasesURL = env.server.URL
	origVersion := version
	version = "1.0.0"
	t.Cleanup(func() {
		update.ReleasesURL = orig
		version = origVersion
	})

	var out string
	stderr := captureStderr(t, func() { out = runOK(t, "version", "--check") })
	assert.Equal(t, "trest version 1.0.0\n", out)
	assert.Contains(t, stderr, "Update available: 1.0.0 -> 9.0.0")
	assert.Contains(t, stderr, "https://example.com/r")
}

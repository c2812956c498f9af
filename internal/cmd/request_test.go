package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typedrest/typedrest/internal/rest"
)

func TestRequest_GETSendsQueryAndAuth(t *testing.T) {
	rec := record(newRouteHandler().On("GET", "/users", jsonResponse(200, `[{"id":1,"name":"Ada"}]`)))
	setupTestEnvWithHandler(t, rec)

	output := captureStdout(t, func() {
		err := Execute(context.Background(), []string{"request", "/users", "-f", "page=2", "-f", "filter.role=admin", "-o", "json"})
		require.NoError(t, err)
	})

	got := rec.last(t)
	assert.Equal(t, "Bearer test-token", got.Header.Get("Authorization"))
	assert.Equal(t, "trest/dev", got.Header.Get("User-Agent"))
	assert.Empty(t, got.Body)
	assert.Contains(t, got.Query, "page=2")
	assert.Contains(t, got.Query, "filter[role]=admin")

	list, ok := decodeJSONOutput(t, output).([]any)
	require.True(t, ok, output)
	assert.Len(t, list, 1)
}

func TestRequest_POSTNestedJSON(t *testing.T) {
	rec := record(newRouteHandler().On("POST", "/users", jsonResponse(201, `{"id":7}`)))
	setupTestEnvWithHandler(t, rec)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{
			"request", "/users", "-X", "post",
			"-f", "user.name=Ada",
			"-F", "user.admin=true",
			"-f", "tags[]=a", "-f", "tags[]=b",
		})
		require.NoError(t, err)
	})

	got := rec.last(t)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(got.Body, &body))
	assert.Equal(t, map[string]any{
		"user": map[string]any{"name": "Ada", "admin": true},
		"tags": []any{"a", "b"},
	}, body)
}

func TestRequest_BodyAndFieldsMerge(t *testing.T) {
	rec := record(newRouteHandler().On("PATCH", "/users/1", jsonResponse(200, `{}`)))
	setupTestEnvWithHandler(t, rec)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{
			"request", "/users/1", "-X", "PATCH", "-d", `{"name":"old","age":3}`, "-f", "name=new",
		})
		require.NoError(t, err)
	})

	assert.JSONEq(t, `{"name":"new","age":3}`, string(rec.last(t).Body))
}

func TestRequest_InputFromStdin(t *testing.T) {
	rec := record(newRouteHandler().On("PUT", "/items/1", jsonResponse(200, `{"ok":true}`)))
	setupTestEnvWithHandler(t, rec)
	withStdin(t, `{"title":"from stdin"}`)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{"request", "/items/1", "-X", "PUT", "-i", "-"})
		require.NoError(t, err)
	})

	assert.JSONEq(t, `{"title":"from stdin"}`, string(rec.last(t).Body))
}

func TestRequest_FormEncoding(t *testing.T) {
	rec := record(newRouteHandler().On("POST", "/login", jsonResponse(200, `{}`)))
	setupTestEnvWithHandler(t, rec)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{
			"request", "/login", "-X", "POST", "--encoding", "form", "-f", "user=ada", "-f", "password=s3cret",
		})
		require.NoError(t, err)
	})

	got := rec.last(t)
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
	assert.Equal(t, "password=s3cret&user=ada", string(got.Body))
}

func TestRequest_Attachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avatar.png")
	require.NoError(t, os.WriteFile(path, []byte("PNGDATA"), 0o600))

	var fileName, fileType, fileBody, caption string
	handler := newRouteHandler().On("POST", "/avatars", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, header, err := r.FormFile("avatar")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = f.Close() }()
		data, _ := io.ReadAll(f)
		fileName = header.Filename
		fileType = header.Header.Get("Content-Type")
		fileBody = string(data)
		caption = r.FormValue("caption")
		jsonResponse(201, `{"stored":true}`)(w, r)
	})
	setupTestEnvWithHandler(t, handler)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{
			"request", "/avatars", "-X", "POST", "-a", "avatar=@" + path + ";type=image/png", "-f", "caption=me",
		})
		require.NoError(t, err)
	})

	assert.Equal(t, "avatar.png", fileName)
	assert.Equal(t, "image/png", fileType)
	assert.Equal(t, "PNGDATA", fileBody)
	assert.Equal(t, "me", caption)
}

func TestRequest_HeadersOverrideProfile(t *testing.T) {
	rec := record(newRouteHandler().On("GET", "/me", jsonResponse(200, `{}`)))
	setupTestEnvWithHandler(t, rec)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{"request", "/me", "-H", "Authorization: Token abc", "-H", "X-Trace: 1"})
		require.NoError(t, err)
	})

	got := rec.last(t)
	assert.Equal(t, "Token abc", got.Header.Get("Authorization"))
	assert.Equal(t, "1", got.Header.Get("X-Trace"))
}

func TestRequest_FailureExitCode(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/users/9", jsonResponse(404, `{"error":"User not found"}`)))

	var err error
	stderr := captureStderr(t, func() {
		captureStdout(t, func() {
			err = Execute(context.Background(), []string{"request", "/users/9"})
		})
	})

	require.Error(t, err)
	assert.Equal(t, exitNotFound, ExitCode(err))
	var failure *requestFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 404, failure.Status)
	assert.Equal(t, "User not found", failure.Message)
	assert.Contains(t, stderr, "Request failed (HTTP 404): User not found")
}

func TestRequest_FailureJSONOnStderr(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("DELETE", "/users/1", jsonResponse(403, `{"message":"nope"}`)))

	var err error
	stderr := captureStderr(t, func() {
		captureStdout(t, func() {
			err = Execute(context.Background(), []string{"request", "/users/1", "-X", "DELETE", "--json"})
		})
	})

	require.Error(t, err)
	assert.Equal(t, exitForbidden, ExitCode(err))
	var structured rest.StructuredError
	require.NoError(t, json.Unmarshal([]byte(stderr), &structured), stderr)
	assert.Equal(t, rest.ErrForbidden, structured.Code)
	assert.Equal(t, "nope", structured.Message)
}

func TestRequest_NonJSONErrorBody(t *testing.T) {
	handler := newRouteHandler().On("GET", "/boom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<h1>Bad Gateway</h1>\nupstream"))
	})
	setupTestEnvWithHandler(t, handler)

	var err error
	captureStderr(t, func() {
		captureStdout(t, func() {
			err = Execute(context.Background(), []string{"request", "/boom"})
		})
	})

	require.Error(t, err)
	assert.Equal(t, exitServer, ExitCode(err))
	var failure *requestFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "<h1>Bad Gateway</h1>", failure.Message)
}

func TestRequest_PlainTextSuccess(t *testing.T) {
	handler := newRouteHandler().On("GET", "/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"request", "/health"}))
	})
	assert.Equal(t, "OK\n", output)
}

func TestRequest_Envelope(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/user", jsonResponse(200, `{"status":200,"data":{"id":4,"name":"Some name"}}`)).
		On("POST", "/forgot", jsonResponse(200, `{"status":422,"message":"Unknown email"}`))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"request", "/user", "--envelope", "--json"}))
	})
	assert.JSONEq(t, `{"id":4,"name":"Some name"}`, output)

	var err error
	captureStderr(t, func() {
		err = Execute(context.Background(), []string{"request", "/forgot", "-X", "POST", "--envelope"})
	})
	require.Error(t, err)
	var failure *requestFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 422, failure.Status)
	assert.Equal(t, "Unknown email", failure.Message)
	assert.Equal(t, exitUsage, ExitCode(err))
}

func TestRequest_EnvelopeUnexpectedShape(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/x", jsonResponse(200, `{"data":1}`)))

	var err error
	captureStderr(t, func() {
		err = Execute(context.Background(), []string{"request", "/x", "--envelope"})
	})
	require.Error(t, err)
	assert.Equal(t, rest.UnexpectedResponseMessage, err.Error())
}

func TestRequest_JQAndInclude(t *testing.T) {
	handler := newRouteHandler().On("GET", "/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total", "2")
		jsonResponse(200, `[{"name":"a"},{"name":"b"}]`)(w, r)
	})
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"request", "/users", "--jq", "[.[].name]", "-o", "json", "--compact-json"}))
	})
	assert.Equal(t, "[\"a\",\"b\"]\n", output)

	output = captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"request", "/users", "--include", "--json"}))
	})
	payload, ok := decodeJSONOutput(t, output).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(200), payload["status"])
	headers, _ := payload["headers"].(map[string]any)
	assert.Equal(t, []any{"2"}, headers["X-Total"])
}

func TestRequest_SilentAndRaw(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler().On("GET", "/thing", jsonResponse(200, `{"a": 1}`)))

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"request", "/thing", "--silent"}))
	})
	assert.Empty(t, output)

	output = captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"request", "/thing", "-o", "raw"}))
	})
	assert.Equal(t, "{\"a\": 1}\n", output)
}

func TestRequest_Validation(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler())

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"method", []string{"request", "/x", "-X", "TRACE"}, "invalid HTTP method"},
		{"body and input", []string{"request", "/x", "-d", "{}", "-i", "f.json"}, "cannot be used together"},
		{"encoding", []string{"request", "/x", "--encoding", "xml"}, "unknown encoding"},
		{"field", []string{"request", "/x", "-f", "novalue"}, "must be key=value"},
		{"raw field", []string{"request", "/x", "-F", "a={"}, "invalid JSON in raw field"},
		{"attachment", []string{"request", "/x", "-a", "file=path"}, "must be key=@path"},
		{"header", []string{"request", "/x", "-H", "nocolon"}, "invalid header"},
		{"array body with fields", []string{"request", "/x", "-X", "POST", "-d", "[1]", "-f", "a=b"}, "JSON object body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			captureStderr(t, func() {
				err = Execute(context.Background(), tc.args)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRequest_NotConfigured(t *testing.T) {
	isolateEnv(t)
	withMockKeyring(t)

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"request", "/x"})
	})
	require.Error(t, err)
	assert.Equal(t, exitConfig, ExitCode(err))
	assert.Contains(t, stderr, "trest config set-url")
}

func TestSetParam(t *testing.T) {
	params := map[string]any{}
	require.NoError(t, setParam(params, "a.b.c", 1))
	require.NoError(t, setParam(params, "a.b.d", "x"))
	require.NoError(t, setParam(params, "list[]", "one"))
	require.NoError(t, setParam(params, "list[]", "two"))
	assert.Equal(t, map[string]any{
		"a":    map[string]any{"b": map[string]any{"c": 1, "d": "x"}},
		"list": []any{"one", "two"},
	}, params)

	assert.Error(t, setParam(params, "a.b.c.d", 2), "c is not an object")
	assert.Error(t, setParam(params, "x..y", 1))
	assert.Error(t, setParam(params, "[]", 1))
	assert.Error(t, setParam(params, "trailing.", 1))
}

func TestParseAttachment(t *testing.T) {
	key, file, err := parseAttachment("doc=@/tmp/report.pdf;type=application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc", key)
	assert.Equal(t, rest.FileFromPath("/tmp/report.pdf", "application/pdf"), file)

	_, file, err = parseAttachment("doc=@notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", file.MimeType)
	assert.Equal(t, "notes.txt", file.FileName)

	_, _, err = parseAttachment("doc=@")
	assert.Error(t, err)
}

func TestFailureMessage(t *testing.T) {
	cases := []struct {
		payload any
		want    string
	}{
		{map[string]any{"message": "m"}, "m"},
		{map[string]any{"error": "e", "detail": "d"}, "e"},
		{map[string]any{"detail": "d"}, "d"},
		{map[string]any{"errors": []any{"one", "two", 3}}, "one; two"},
		{map[string]any{"message": "  "}, ""},
		{"plain", "plain"},
		{[]any{1}, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, failureMessage(tc.payload), "%#v", tc.payload)
	}
}

func TestClassifyStatus(t *testing.T) {
	ok := classifyStatus(&rest.Response{StatusCode: 200}, map[string]any{"a": 1})
	assert.Equal(t, rest.KindOK, ok.Kind())

	failed := classifyStatus(&rest.Response{StatusCode: 409}, map[string]any{"message": "taken"})
	v, isFailure := failed.Failure()
	require.True(t, isFailure)
	f, _ := v.(*requestFailure)
	require.NotNil(t, f)
	assert.Equal(t, 409, f.Status)
	assert.Equal(t, "taken", f.Message)
	assert.True(t, strings.HasPrefix(f.Error(), "HTTP 409"))
	assert.True(t, rest.IsAPIError(f))
}

func TestRequest_DryRun(t *testing.T) {
	rec := record(newRouteHandler())
	setupTestEnvWithHandler(t, rec)

	out := runOK(t, "request", "/users", "-X", "POST", "-f", "name=Ada", "--dry-run")
	assert.Zero(t, rec.count())
	assert.Contains(t, out, "[DRY-RUN] Would send POST ")
	assert.Contains(t, out, "Authorization: [REDACTED]")
	assert.Contains(t, out, `{"name":"Ada"}`)
	assert.NotContains(t, out, "test-token")

	out = runOK(t, "request", "/users", "-f", "role=admin", "--json", "--dr")
	payload, ok := decodeJSONOutput(t, out).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "GET", payload["method"])
	assert.True(t, strings.HasSuffix(payload["url"].(string), "/users?role=admin"))
}

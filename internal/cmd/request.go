package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/typedrest/typedrest/internal/dryrun"
	"github.com/typedrest/typedrest/internal/iocontext"
	"github.com/typedrest/typedrest/internal/outfmt"
	"github.com/typedrest/typedrest/internal/rest"
)

// requestFailure is the Failure type of every CLI call: the HTTP status, a
// message lifted from the body when one is present, and the body itself.
type requestFailure struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Body    any    `json:"body,omitempty"`
}

func (f *requestFailure) Error() string {
	if f.Status == 0 && f.Message != "" {
		return f.Message
	}
	if f.Message == "" {
		return fmt.Sprintf("HTTP %d", f.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", f.Status, f.Message)
}

func (f *requestFailure) Unwrap() error {
	return &rest.APIError{Status: f.Status, Message: f.Message}
}

// classifyStatus is the default response modifier: JSON bodies of 4xx and
// 5xx responses become failures.
func classifyStatus(resp *rest.Response, payload any) rest.Result[any, any] {
	if resp.StatusCode < http.StatusBadRequest {
		return rest.OK[any, any](payload)
	}
	return rest.Fail[any, any](&requestFailure{
		Status:  resp.StatusCode,
		Message: failureMessage(payload),
		Body:    payload,
	})
}

func failureMessage(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		if s, ok := payload.(string); ok {
			return s
		}
		return ""
	}
	for _, key := range []string{"message", "error", "error_description", "detail", "title"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if list, ok := obj["errors"].([]any); ok {
		var msgs []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				msgs = append(msgs, s)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// requestInput collects the flags that shape an outgoing request.
type requestInput struct {
	method      string
	fields      []string
	rawFields   []string
	attachments []string
	headers     []string
	inputFile   string
	body        string
	encoding    string
	multipart   bool
	silent      bool
	include     bool
}

func (in *requestInput) register(fs *pflag.FlagSet, defaultMethod string) {
	fs.StringVarP(&in.method, "method", "X", defaultMethod, "HTTP method (GET, POST, PUT, PATCH, DELETE, HEAD)")
	fs.StringArrayVarP(&in.fields, "field", "f", nil, "Parameter as key=value (string); dotted keys nest, key[]=v appends")
	fs.StringArrayVarP(&in.rawFields, "raw-field", "F", nil, "Parameter as key=value (JSON parsed)")
	fs.StringArrayVarP(&in.attachments, "attach", "a", nil, "File parameter as key=@path[;type=mime]")
	fs.StringArrayVarP(&in.headers, "header", "H", nil, "Request header as 'Name: value'")
	fs.StringVarP(&in.inputFile, "input", "i", "", "Read parameters as JSON from file (use - for stdin)")
	fs.StringVarP(&in.body, "body", "d", "", "Parameters as an inline JSON string")
	fs.StringVar(&in.encoding, "encoding", "auto", "Parameter encoding: auto|query|json|form|multipart")
	fs.BoolVar(&in.multipart, "multipart", false, "Send a multipart body even without attachments")
	fs.BoolVarP(&in.silent, "silent", "s", false, "Suppress output")
	fs.BoolVar(&in.include, "include", false, "Include response status and headers in output")
	flagAlias(fs, "include", "inc")
}

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
}

// build turns the flags into a rest.Request for path.
func (in *requestInput) build(cmd *cobra.Command, path string) (rest.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(in.method))
	if !validMethods[method] {
		return rest.Request{}, fmt.Errorf("invalid HTTP method %q: must be one of GET, POST, PUT, PATCH, DELETE, HEAD", in.method)
	}
	if in.body != "" && in.inputFile != "" {
		return rest.Request{}, fmt.Errorf("--body and --input cannot be used together")
	}
	encoding, err := rest.ParseEncoding(in.encoding)
	if err != nil {
		return rest.Request{}, err
	}
	header, err := parseHeaders(in.headers)
	if err != nil {
		return rest.Request{}, err
	}
	params, err := in.params(cmd)
	if err != nil {
		return rest.Request{}, err
	}

	req := rest.Request{
		Method:   method,
		Header:   header,
		Params:   params,
		Encoding: encoding,
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		req.URL = path
	} else {
		req.Path = path
	}
	if in.multipart {
		req.Options |= rest.ForceMultipart
	}
	return req, nil
}

// params merges the JSON body with field flags. Fields win over the body.
func (in *requestInput) params(cmd *cobra.Command) (any, error) {
	var base any
	switch {
	case in.body != "":
		if err := decodeJSON([]byte(in.body), &base); err != nil {
			return nil, fmt.Errorf("failed to parse --body JSON: %w", err)
		}
	case in.inputFile != "":
		data, err := iocontext.ReadInput(cmd.Context(), in.inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if err := decodeJSON(data, &base); err != nil {
			return nil, fmt.Errorf("failed to parse input JSON: %w", err)
		}
	}

	if len(in.fields)+len(in.rawFields)+len(in.attachments) == 0 {
		return base, nil
	}

	params, ok := base.(map[string]any)
	if base != nil && !ok {
		return nil, fmt.Errorf("fields can only be combined with a JSON object body")
	}
	if params == nil {
		params = make(map[string]any)
	}

	for _, field := range in.fields {
		key, value, err := parseField(field)
		if err != nil {
			return nil, err
		}
		if err := setParam(params, key, value); err != nil {
			return nil, err
		}
	}
	for _, field := range in.rawFields {
		key, value, err := parseRawField(field)
		if err != nil {
			return nil, err
		}
		if err := setParam(params, key, value); err != nil {
			return nil, err
		}
	}
	for _, spec := range in.attachments {
		key, file, err := parseAttachment(spec)
		if err != nil {
			return nil, err
		}
		if err := setParam(params, key, file); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// parseField parses a key=value field where value is a string
func parseField(field string) (string, string, error) {
	key, value, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid field format %q: must be key=value", field)
	}
	return key, value, nil
}

// parseRawField parses a key=value field where value is JSON
func parseRawField(field string) (string, any, error) {
	key, raw, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid raw field format %q: must be key=value", field)
	}
	var value any
	if err := decodeJSON([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("invalid JSON in raw field %q: %w", key, err)
	}
	return key, value, nil
}

// parseAttachment parses key=@path or key=@path;type=mime.
func parseAttachment(spec string) (string, rest.File, error) {
	key, value, ok := strings.Cut(spec, "=")
	if !ok || key == "" || !strings.HasPrefix(value, "@") {
		return "", rest.File{}, fmt.Errorf("invalid attachment %q: must be key=@path[;type=mime]", spec)
	}
	path, mime, _ := strings.Cut(strings.TrimPrefix(value, "@"), ";type=")
	if path == "" {
		return "", rest.File{}, fmt.Errorf("invalid attachment %q: path is empty", spec)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return key, rest.FileFromPath(path, mime), nil
}

// setParam stores value under a dotted key. A trailing [] appends to a list.
func setParam(params map[string]any, key string, value any) error {
	parts := strings.Split(key, ".")
	node := params
	for i, part := range parts[:len(parts)-1] {
		if part == "" {
			return fmt.Errorf("invalid parameter key %q", key)
		}
		next, ok := node[part]
		if !ok {
			child := make(map[string]any)
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("parameter %q is not an object", strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	leaf := parts[len(parts)-1]
	if name, ok := strings.CutSuffix(leaf, "[]"); ok {
		if name == "" {
			return fmt.Errorf("invalid parameter key %q", key)
		}
		list, _ := node[name].([]any)
		node[name] = append(list, value)
		return nil
	}
	if leaf == "" {
		return fmt.Errorf("invalid parameter key %q", key)
	}
	node[leaf] = value
	return nil
}

func parseHeaders(values []string) (http.Header, error) {
	if len(values) == 0 {
		return nil, nil
	}
	header := make(http.Header, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: must be 'Name: value'", v)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}

func newRequestCmd() *cobra.Command {
	in := &requestInput{}

	cmd := &cobra.Command{
		Use:     "request <path|url>",
		Aliases: []string{"req", "r"},
		Short:   "Send a request and decode the response",
		Long: `Send a request to the configured API and decode the response.

The path is appended to the profile base URL; an absolute URL is used as is.
GET and HEAD parameters go to the query string, other methods send a JSON
body unless --encoding says otherwise. Any --attach switches to multipart.

Responses with a 4xx or 5xx status are failures. With --envelope, bodies of
the form {"status": ..., "data"|"message": ...} are unwrapped instead.`,
		Example: `  # GET with query parameters
  trest request /users -f page=2 -f per_page=50

  # POST nested JSON
  trest request /users -X POST -f user.name=Ada -F user.admin=true

  # Upload a file
  trest request /avatars -X POST -a 'avatar=@me.png;type=image/png'

  # Form encoding
  trest request /login -X POST --encoding form -f user=ada -f password=secret

  # Filter the decoded payload
  trest request /users --jq '.[].name'`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			req, err := in.build(cmd, args[0])
			if err != nil {
				return err
			}
			return runRequest(cmd, newClientFactory(), req, in)
		}),
	}

	in.register(cmd.Flags(), http.MethodGet)
	return cmd
}

// runRequest sends req and renders the decoded response.
func runRequest(cmd *cobra.Command, factory *clientFactory, req rest.Request, in *requestInput) error {
	s, err := factory.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if dryrun.IsEnabled(cmd.Context()) {
		return previewRequest(cmd, s.client, req)
	}

	req.Options |= factory.feedbackOptions()
	resp, result := rest.Do[any, *requestFailure](cmd.Context(), s.client, req)
	value, err := settleResult(resp, result)
	if err != nil {
		return err
	}
	if in.silent {
		return nil
	}
	return renderResponse(cmd, resp, value, in.include)
}

// previewRequest prints the encoded request without sending it.
func previewRequest(cmd *cobra.Command, client *rest.Client, req rest.Request) error {
	httpReq, err := client.Build(cmd.Context(), req)
	if err != nil {
		return err
	}
	preview, err := dryrun.FromRequest(httpReq, req.Encoding, req.Params)
	if err != nil {
		return err
	}
	if isJSON(cmd) {
		return printJSON(cmd, preview)
	}
	preview.Write(iocontext.GetIO(cmd.Context()).Out)
	return nil
}

// settleResult folds a Result into a value or an error. Raw bodies bypass the
// response modifier, so their status is checked here.
func settleResult(resp *rest.Response, result rest.Result[any, *requestFailure]) (any, error) {
	value, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	if raw, ok := value.([]byte); ok && resp.StatusCode >= http.StatusBadRequest {
		text := strings.TrimSpace(string(raw))
		return nil, &requestFailure{Status: resp.StatusCode, Message: firstLine(text), Body: text}
	}
	return value, nil
}

func firstLine(s string) string {
	if line, _, ok := strings.Cut(s, "\n"); ok {
		return line
	}
	return s
}

func renderResponse(cmd *cobra.Command, resp *rest.Response, value any, include bool) error {
	f := newFormatter(cmd)
	out := iocontext.GetIO(cmd.Context()).Out

	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}

	if isJSON(cmd) {
		if include {
			return f.Output(map[string]any{
				"status":  resp.StatusCode,
				"headers": resp.Header,
				"body":    value,
			})
		}
		return f.Output(value)
	}

	if include {
		_, _ = fmt.Fprintf(out, "HTTP %d\n", resp.StatusCode)
		keys := make([]string, 0, len(resp.Header))
		for k := range resp.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range resp.Header[k] {
				_, _ = fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		}
		_, _ = fmt.Fprintln(out)
	}

	if outfmt.ModeFromContext(cmd.Context()) == outfmt.Raw {
		return f.Bytes(resp.Body)
	}
	if s, ok := value.(string); ok && s == "" {
		return nil
	}
	return f.Output(value)
}

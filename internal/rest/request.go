package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// Encoding selects how parameters are attached to a request.
type Encoding int

const (
	// EncodingAuto sends a query string for GET and HEAD, a JSON body otherwise.
	EncodingAuto Encoding = iota
	EncodingQuery
	EncodingJSON
	EncodingForm
	EncodingMultipart
)

func (e Encoding) String() string {
	switch e {
	case EncodingAuto:
		return "auto"
	case EncodingQuery:
		return "query"
	case EncodingJSON:
		return "json"
	case EncodingForm:
		return "form"
	case EncodingMultipart:
		return "multipart"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding maps a flag value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "query":
		return EncodingQuery, nil
	case "json":
		return EncodingJSON, nil
	case "form":
		return EncodingForm, nil
	case "multipart":
		return EncodingMultipart, nil
	}
	return EncodingAuto, fmt.Errorf("unknown encoding %q (expected auto, query, json, form or multipart)", s)
}

// Encoder writes parameters into an outgoing request.
type Encoder interface {
	Encode(req *http.Request, params any) error
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(req *http.Request, params any) error

func (f EncoderFunc) Encode(req *http.Request, params any) error { return f(req, params) }

// Options are per-call flags.
type Options uint8

const (
	// SuccessFeedback emits success feedback when the call decodes OK.
	SuccessFeedback Options = 1 << iota
	// FailureFeedback emits failure feedback on Failure or Error.
	FailureFeedback
	// SkipErrorHandler keeps the configured ErrorHandler from seeing this
	// call. The handler is invoked by default.
	SkipErrorHandler
	// ForceMultipart sends a multipart body even when no File is present.
	ForceMultipart
)

// DefaultOptions invokes the error handler and emits no feedback.
const DefaultOptions Options = 0

// Has reports whether all bits of flag are set.
func (o Options) Has(flag Options) bool { return o&flag == flag }

// Request describes one call relative to the client's base URL.
type Request struct {
	Method string
	// Path is appended to the base URL. Ignored when URL is set.
	Path string
	// URL is an absolute target overriding the base URL.
	URL    string
	Header http.Header
	// Params is a parameter tree, or any value that encodes to a JSON object.
	Params   any
	Encoding Encoding
	Encoder  Encoder
	Options  Options
}

// Get returns a GET request for path.
func Get(path string, params any) Request {
	return Request{Method: http.MethodGet, Path: path, Params: params}
}

// Post returns a POST request for path.
func Post(path string, params any) Request {
	return Request{Method: http.MethodPost, Path: path, Params: params}
}

// Put returns a PUT request for path.
func Put(path string, params any) Request {
	return Request{Method: http.MethodPut, Path: path, Params: params}
}

// Patch returns a PATCH request for path.
func Patch(path string, params any) Request {
	return Request{Method: http.MethodPatch, Path: path, Params: params}
}

// Delete returns a DELETE request for path.
func Delete(path string) Request {
	return Request{Method: http.MethodDelete, Path: path}
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

func (r Request) multipart() bool {
	return r.Options.Has(ForceMultipart) || r.Encoding == EncodingMultipart || ContainsFile(r.Params)
}

// Build encodes r the way Do would and returns the request without sending it.
func (c *Client) Build(ctx context.Context, r Request) (*http.Request, error) {
	return c.build(ctx, r)
}

// build turns a Request into an *http.Request bound to ctx.
func (c *Client) build(ctx context.Context, r Request) (*http.Request, error) {
	method := r.method()
	target, err := c.resolveURL(r)
	if err != nil {
		return nil, &RequestError{Op: "resolve URL", Err: err}
	}

	header := MergeHeaders(c.cfg.Header, r.Header)
	if header == nil {
		header = make(http.Header)
	}

	var body []byte
	var contentType string

	switch {
	case r.multipart():
		tree, err := multipartTree(r.Params)
		if err != nil {
			return nil, &RequestError{Op: "encode multipart body", Err: err}
		}
		var parts []Part
		if tree != nil {
			flatten(tree, "", c.logger, &parts)
		}
		body, contentType, err = writeMultipart(parts)
		if err != nil {
			return nil, &RequestError{Op: "encode multipart body", Err: err}
		}
	case r.Encoder != nil:
		req, err := newHTTPRequest(ctx, method, target, nil, header)
		if err != nil {
			return nil, err
		}
		if err := r.Encoder.Encode(req, r.Params); err != nil {
			return nil, &RequestError{Op: "encode parameters", Err: err}
		}
		return req, nil
	case r.Encoding == EncodingQuery || (r.Encoding == EncodingAuto && (method == http.MethodGet || method == http.MethodHead)):
		target, err = appendQuery(target, r.Params)
		if err != nil {
			return nil, &RequestError{Op: "encode query", Err: err}
		}
	case r.Encoding == EncodingForm:
		if r.Params != nil {
			form, err := encodePairs(r.Params)
			if err != nil {
				return nil, &RequestError{Op: "encode form", Err: err}
			}
			body = []byte(form)
			contentType = "application/x-www-form-urlencoded"
		}
	default:
		if r.Params != nil {
			body, err = json.Marshal(r.Params)
			if err != nil {
				return nil, &RequestError{Op: "marshal request body", Err: err}
			}
			contentType = "application/json"
		}
	}

	// The multipart boundary must match the body, so it always replaces a
	// caller-supplied content type.
	if contentType != "" && (header.Get("Content-Type") == "" || strings.HasPrefix(contentType, "multipart/")) {
		header.Set("Content-Type", contentType)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	return newHTTPRequest(ctx, method, target, reader, header)
}

func newHTTPRequest(ctx context.Context, method, target string, body io.Reader, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &RequestError{Op: "create request", Err: err}
	}
	req.Header = header
	return req, nil
}

func (c *Client) resolveURL(r Request) (string, error) {
	if r.URL != "" {
		u, err := url.Parse(r.URL)
		if err != nil {
			return "", err
		}
		if !u.IsAbs() {
			return "", fmt.Errorf("URL %q is not absolute", r.URL)
		}
		return r.URL, nil
	}
	path := strings.TrimLeft(r.Path, "/")
	if path == "" {
		return c.cfg.BaseURL, nil
	}
	return c.cfg.BaseURL + "/" + path, nil
}

// appendQuery adds encoded params to the target's existing query string.
func appendQuery(target string, params any) (string, error) {
	if params == nil {
		return target, nil
	}
	encoded, err := encodePairs(params)
	if err != nil {
		return "", err
	}
	if encoded == "" {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.RawQuery == "" {
		u.RawQuery = encoded
	} else {
		u.RawQuery += "&" + encoded
	}
	return u.String(), nil
}

// encodePairs renders a parameter tree as key=value pairs joined by '&'.
// Keys keep their brackets unescaped.
func encodePairs(params any) (string, error) {
	tree, err := asTree(params)
	if err != nil {
		return "", err
	}
	var pairs [][2]string
	queryPairs(tree, "", &pairs)

	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(escapeQueryKey(p[0]))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p[1]))
	}
	return sb.String(), nil
}

var bracketUnescaper = strings.NewReplacer("%5B", "[", "%5D", "]")

func escapeQueryKey(key string) string {
	return bracketUnescaper.Replace(url.QueryEscape(key))
}

// multipartTree converts struct params into a parameter tree. Maps, lists and
// single values are flattened as given.
func multipartTree(params any) (any, error) {
	if params == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if _, ok := rv.Interface().(File); !ok {
			tree, err := ParamsFrom(params)
			if err != nil {
				return nil, err
			}
			return tree, nil
		}
	}
	return params, nil
}

// asTree accepts maps directly and converts any other value through JSON.
// The top level must be an object.
func asTree(params any) (any, error) {
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		return rv.Interface(), nil
	}
	tree, err := ParamsFrom(params)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

package rest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/typedrest/typedrest/internal/debug"
)

type recordingFeedback struct {
	success, failure atomic.Int32
}

func (f *recordingFeedback) Success() { f.success.Add(1) }
func (f *recordingFeedback) Failure() { f.failure.Add(1) }

type handlerCall struct {
	req    *http.Request
	params any
	body   []byte
	err    error
}

type hookRecorder struct {
	mu       sync.Mutex
	handled  []handlerCall
	outcomes []Outcome
	order    []string
}

func (h *hookRecorder) errorHandler(_ context.Context, req *http.Request, params any, body []byte, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, handlerCall{req, params, body, err})
	h.order = append(h.order, "error handler")
}

func (h *hookRecorder) Observe(_ context.Context, o Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, o)
	h.order = append(h.order, "observer")
}

func TestDo_SideEffects(t *testing.T) {
	server := newTestServer(t, http.StatusBadRequest, `{"code":"bad","detail":"nope"}`)
	rec := &hookRecorder{}
	fb := &recordingFeedback{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.ErrorHandler = rec.errorHandler
		cfg.Observer = rec
		cfg.Feedback = fb
	})

	params := Params{"q": "x"}
	req := Get("/items", params)
	req.Options = SuccessFeedback | FailureFeedback
	_, result := Do[widget, apiFailure](context.Background(), c, req)
	if result.Kind() != KindFailure {
		t.Fatalf("kind = %s", result.Kind())
	}

	if fb.failure.Load() != 1 || fb.success.Load() != 0 {
		t.Errorf("feedback success=%d failure=%d", fb.success.Load(), fb.failure.Load())
	}
	if len(rec.handled) != 1 {
		t.Fatalf("error handler calls = %d", len(rec.handled))
	}
	call := rec.handled[0]
	if call.req == nil || call.req.URL.Path != "/items" {
		t.Errorf("handler request = %v", call.req)
	}
	if call.params.(Params)["q"] != "x" {
		t.Errorf("handler params = %v", call.params)
	}
	if string(call.body) != `{"code":"bad","detail":"nope"}` {
		t.Errorf("handler body = %s", call.body)
	}
	if f, ok := AsFailure[apiFailure](call.err); !ok || f.Code != "bad" {
		t.Errorf("handler err = %v", call.err)
	}

	if len(rec.outcomes) != 1 || rec.outcomes[0].Kind != KindFailure || rec.outcomes[0].StatusCode != http.StatusBadRequest {
		t.Errorf("outcomes = %+v", rec.outcomes)
	}
	if strings.Join(rec.order, ",") != "error handler,observer" {
		t.Errorf("hook order = %v", rec.order)
	}
}

func TestDo_SuccessSkipsErrorHandler(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":1,"name":"a"}`)
	rec := &hookRecorder{}
	fb := &recordingFeedback{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.ErrorHandler = rec.errorHandler
		cfg.Feedback = fb
	})

	req := Get("/", nil)
	req.Options = SuccessFeedback
	Send[widget, apiFailure](context.Background(), c, req)

	if len(rec.handled) != 0 {
		t.Error("error handler must not run for OK")
	}
	if fb.success.Load() != 1 {
		t.Error("success feedback expected")
	}

	// feedback is opt-in
	Send[widget, apiFailure](context.Background(), c, Get("/", nil))
	if fb.success.Load() != 1 {
		t.Error("feedback should not fire without the option")
	}
}

func TestDo_SkipErrorHandler(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `garbage`)
	rec := &hookRecorder{}
	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.ErrorHandler = rec.errorHandler })

	req := Get("/", nil)
	req.Options = SkipErrorHandler
	Send[widget, apiFailure](context.Background(), c, req)
	if len(rec.handled) != 0 {
		t.Error("handler should be skipped")
	}

	Send[widget, apiFailure](context.Background(), c, Get("/", nil))
	if len(rec.handled) != 1 || !IsDecodeError(rec.handled[0].err) {
		t.Errorf("handled = %+v", rec.handled)
	}
}

func TestDo_PanickingHookIsContained(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `oops`)
	rec := &hookRecorder{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.ErrorHandler = func(context.Context, *http.Request, any, []byte, error) { panic("handler bug") }
		cfg.Observer = rec
		cfg.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	})

	result := Send[widget, apiFailure](context.Background(), c, Get("/", nil))
	if result.Kind() != KindError {
		t.Fatalf("kind = %s", result.Kind())
	}
	if len(rec.outcomes) != 1 {
		t.Error("observer should still run after a panicking handler")
	}
}

func TestDo_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	rec := &hookRecorder{}
	c := newTestClient(t, url, func(cfg *Config) { cfg.ErrorHandler = rec.errorHandler })
	resp, result := Do[widget, apiFailure](context.Background(), c, Get("/", nil))
	if !IsTransportError(result.Err()) {
		t.Fatalf("expected transport error, got %v", result)
	}
	if resp.StatusCode != 0 || resp.ID != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if len(rec.handled) != 1 || rec.handled[0].body != nil {
		t.Errorf("handler should see the error without body: %+v", rec.handled)
	}
}

func TestDo_RequestCounter(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":1,"name":"a"}`)
	c := newTestClient(t, server.URL, nil)

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _ := Do[widget, apiFailure](context.Background(), c, Get("/", nil))
			ids <- resp.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
	for i := int64(1); i <= 20; i++ {
		if !seen[i] {
			t.Errorf("missing id %d", i)
		}
	}
	if c.RequestCount() != 20 {
		t.Errorf("RequestCount = %d", c.RequestCount())
	}
}

func TestDo_SameTypePanics(t *testing.T) {
	requests := atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()
	c := newTestClient(t, server.URL, nil)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrSameType) {
			t.Errorf("recovered %v", r)
		}
		if requests.Load() != 0 {
			t.Error("no request should be sent")
		}
	}()
	Send[widget, widget](context.Background(), c, Get("/", nil))
}

func TestDo_UnconfiguredClientPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != ErrMissingBaseURL {
			t.Errorf("recovered %v", r)
		}
	}()
	Send[widget, apiFailure](context.Background(), &Client{}, Get("/", nil))
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := New(Config{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if _, err := New(Config{BaseURL: "/relative"}); err == nil {
		t.Error("expected error for relative base URL")
	}
}

func TestDo_CancelledContextSuppressesHooks(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	rec := &hookRecorder{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.ErrorHandler = rec.errorHandler
		cfg.Observer = rec
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	result := Send[widget, apiFailure](ctx, c, Get("/", nil))
	if !errors.Is(result.Err(), context.Canceled) {
		t.Fatalf("expected cancellation, got %v", result)
	}
	if len(rec.handled) != 0 || len(rec.outcomes) != 0 {
		t.Error("side effects must be suppressed after cancellation")
	}
}

func TestGo_DeliversThenRunsHooks(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":3,"name":"c"}`)
	rec := &hookRecorder{}
	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.Observer = rec })

	var got widget
	var order []string
	call := Go(context.Background(), c, Get("/", nil), func(resp *Response, r Result[widget, apiFailure]) {
		got, _ = r.Value()
		order = append(order, "completion")
		rec.mu.Lock()
		if len(rec.outcomes) != 0 {
			order = append(order, "observer ran early")
		}
		rec.mu.Unlock()
	})
	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete")
	}

	if got.ID != 3 {
		t.Errorf("got = %+v", got)
	}
	if strings.Join(order, ",") != "completion" {
		t.Errorf("order = %v", order)
	}
	if len(rec.outcomes) != 1 {
		t.Error("observer should run after the completion")
	}
	if call.ID() != 1 {
		t.Errorf("call ID = %d", call.ID())
	}
}

func TestGo_PanickingCompletionStillSettles(t *testing.T) {
	server := newTestServer(t, http.StatusUnprocessableEntity, `{"code":"invalid","detail":"name taken"}`)
	rec := &hookRecorder{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.ErrorHandler = rec.errorHandler
		cfg.Observer = rec
	})

	call := Go(context.Background(), c, Get("/", nil), func(*Response, Result[widget, apiFailure]) {
		panic("completion blew up")
	})
	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.handled) != 1 {
		t.Errorf("error handler calls = %d, want 1", len(rec.handled))
	}
	if len(rec.outcomes) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(rec.outcomes))
	}
	if rec.outcomes[0].Kind != KindFailure {
		t.Errorf("outcome kind = %q", rec.outcomes[0].Kind)
	}
}

func TestGo_SerialDelivery(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":1,"name":"a"}`)
	c := newTestClient(t, server.URL, nil)

	var active, maxActive atomic.Int32
	calls := make([]*Call, 10)
	for i := range calls {
		calls[i] = Go(context.Background(), c, Get("/", nil), func(*Response, Result[widget, apiFailure]) {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		})
	}
	for _, call := range calls {
		call.Wait()
	}
	if maxActive.Load() != 1 {
		t.Errorf("completions overlapped: %d", maxActive.Load())
	}
}

func TestGo_CancelSuppressesCompletion(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	rec := &hookRecorder{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.ErrorHandler = rec.errorHandler
		cfg.Observer = rec
	})

	delivered := atomic.Bool{}
	call := Go(context.Background(), c, Get("/", nil), func(*Response, Result[widget, apiFailure]) {
		delivered.Store(true)
	})
	time.Sleep(20 * time.Millisecond)
	call.Cancel()

	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call never finished")
	}
	if delivered.Load() {
		t.Error("completion must not run after Cancel")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.handled) != 0 || len(rec.outcomes) != 0 {
		t.Error("side effects must not run after Cancel")
	}
}

func TestGo_CustomExecutor(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":1,"name":"a"}`)
	var submitted atomic.Int32
	exec := ExecutorFunc(func(task func()) {
		submitted.Add(1)
		task()
	})
	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.Delivery = exec })

	Go(context.Background(), c, Get("/", nil), func(*Response, Result[widget, apiFailure]) {}).Wait()
	if submitted.Load() != 1 {
		t.Errorf("submitted = %d", submitted.Load())
	}
}

func TestDo_DebugLogging(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":1,"name":"a"}`)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Logger = logger
		cfg.Header = http.Header{"Authorization": {"Bearer secret"}}
	})
	Send[widget, apiFailure](context.Background(), c, Post("/items", Params{"file": NewFile([]byte("abc"), "text/plain", "f.txt")}))
	if buf.Len() != 0 {
		t.Fatalf("nothing should be logged without debug: %s", buf.String())
	}

	Send[widget, apiFailure](debug.WithDebug(context.Background(), true), c, Post("/items", Params{"file": NewFile([]byte("abc"), "text/plain", "f.txt")}))
	out := buf.String()
	for _, want := range []string{"msg=request", "msg=response", "id=2", "method=POST", "status=200", "f.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Bearer secret") {
		t.Error("credentials must be redacted")
	}
}

func TestDo_DebugConfigWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	orig := debugOutput
	debugOutput = &buf
	t.Cleanup(func() { debugOutput = orig })

	server := newTestServer(t, http.StatusOK, `{"x":1}`)
	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.Debug = true })

	result := Send[widget, apiFailure](context.Background(), c, Get("/w", nil))
	if result.Kind() != KindError {
		t.Fatalf("kind = %s, want error", result.Kind())
	}
	out := buf.String()
	for _, want := range []string{"msg=request", "msg=response", `msg="unable to decode response"`, "success_type=rest.widget", "failure_type=rest.apiFailure"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug output missing %q:\n%s", want, out)
		}
	}
}

func TestClient_With(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"id":1,"name":"a"}`)
	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.Header = http.Header{"X-A": {"1"}} })

	derived, err := c.With(func(cfg *Config) { cfg.Header.Set("X-B", "2") })
	if err != nil {
		t.Fatalf("With error: %v", err)
	}
	if c.Config().Header.Get("X-B") != "" {
		t.Error("parent config must not change")
	}
	if derived.Config().Header.Get("X-A") != "1" || derived.Config().Header.Get("X-B") != "2" {
		t.Errorf("derived header = %v", derived.Config().Header)
	}
	if _, err := Fetch[widget](context.Background(), derived, Get("/", nil)); err != nil {
		t.Errorf("derived client fetch: %v", err)
	}
}

func TestResponse_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "99")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		_, _ = w.Write([]byte(`{"id":1,"name":"a"}`))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL, nil)

	resp, _ := Do[widget, apiFailure](context.Background(), c, Get("/", nil))
	info := resp.RateLimit()
	if info == nil || *info.Limit != 100 || *info.Remaining != 99 {
		t.Fatalf("info = %+v", info)
	}
	meta := info.Meta()
	if meta["reset_at"] != "2023-11-14T22:13:20Z" {
		t.Errorf("meta = %v", meta)
	}
}

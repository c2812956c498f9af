package rest

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/typedrest/typedrest/internal/debug"
)

// DefaultTimeout bounds a single round trip of the default engine.
const DefaultTimeout = 30 * time.Second

// debugOutput receives debug blocks when Config.Debug is set without a
// Logger. Tests replace it.
var debugOutput io.Writer = os.Stderr

// Engine performs HTTP round trips. *http.Client satisfies it.
type Engine interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client dispatches requests against one base URL. It is safe for
// concurrent use.
type Client struct {
	cfg     Config
	engine  Engine
	logger  *slog.Logger
	counter atomic.Int64

	delivery Executor
	queue    *SerialQueue
}

// Option customizes a Client.
type Option func(*Client)

// WithEngine replaces the HTTP engine.
func WithEngine(e Engine) Option {
	return func(c *Client) {
		if e != nil {
			c.engine = e
		}
	}
}

// WithHTTPClient uses hc as the engine.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.engine = hc
		}
	}
}

// WithTimeout sets the round-trip timeout of the default engine.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.engine.(*http.Client); ok && d > 0 {
			hc.Timeout = d
		}
	}
}

// New creates a client. The base URL must be an absolute http(s) URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be an absolute http or https URL", base)
	}
	cfg.BaseURL = strings.TrimRight(base, "/")
	cfg.Header = cfg.Header.Clone()

	c := &Client{cfg: cfg, engine: newHTTPClient()}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = cfg.Logger
	if c.logger == nil {
		c.logger = slog.Default()
		// The default logger drops Debug records, so a debug client without
		// its own logger gets one that emits them.
		if cfg.Debug {
			c.logger = debug.NewLogger(debugOutput, true, "text")
		}
	}
	c.delivery = cfg.Delivery
	if c.delivery == nil {
		c.queue = NewSerialQueue()
		c.delivery = c.queue
	}
	return c, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config, opts ...Option) *Client {
	c, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func newHTTPClient() *http.Client {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	cfg := c.cfg
	cfg.Header = cfg.Header.Clone()
	return cfg
}

// With returns a new client sharing this client's engine, with fn applied to
// a copy of the configuration. The request counter starts over and, unless
// fn sets one, completions are delivered on this client's executor.
func (c *Client) With(fn func(*Config)) (*Client, error) {
	cfg := c.Config()
	if cfg.Delivery == nil {
		cfg.Delivery = c.delivery
	}
	if fn != nil {
		fn(&cfg)
	}
	return New(cfg, WithEngine(c.engine))
}

// RequestCount reports how many requests this client has numbered.
func (c *Client) RequestCount() int64 {
	return c.counter.Load()
}

// Close stops the client's own delivery queue after draining it. Clients
// using a caller-supplied Executor have nothing to close.
func (c *Client) Close() {
	if c.queue != nil {
		c.queue.Close()
	}
}

func (c *Client) nextID() int64 {
	return c.counter.Add(1)
}

func (c *Client) mustBeConfigured() {
	if c == nil || c.cfg.BaseURL == "" || c.engine == nil {
		panic(ErrMissingBaseURL)
	}
}

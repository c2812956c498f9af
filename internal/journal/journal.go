// Package journal records request outcomes in a Redis stream.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/typedrest/typedrest/internal/debug"
	"github.com/typedrest/typedrest/internal/rest"
)

const (
	DefaultStream = "trest:journal"
	DefaultMaxLen = 1000

	writeTimeout = 2 * time.Second
)

var _ rest.Observer = (*Journal)(nil)

// Entry is one recorded outcome.
type Entry struct {
	StreamID   string        `json:"stream_id"`
	RequestID  int64         `json:"request_id"`
	Kind       string        `json:"kind"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	At         time.Time     `json:"at"`
}

// Journal is a rest.Observer appending every outcome to a capped stream.
type Journal struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Journal.
type Option func(*Journal)

// WithStream sets the stream key.
func WithStream(name string) Option {
	return func(j *Journal) {
		if name != "" {
			j.stream = name
		}
	}
}

// WithMaxLen caps the stream length.
func WithMaxLen(n int64) Option {
	return func(j *Journal) {
		if n > 0 {
			j.maxLen = n
		}
	}
}

// WithLogger sets where write failures are reported.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// New returns a Journal writing through client.
func New(client *redis.Client, opts ...Option) *Journal {
	j := &Journal{
		client: client,
		stream: DefaultStream,
		maxLen: DefaultMaxLen,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Observe appends o to the stream. Failures are logged, never returned.
func (j *Journal) Observe(ctx context.Context, o rest.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := j.Record(ctx, o); err != nil {
		j.logger.Warn("failed to record outcome", "id", o.ID, "error", err)
	}
}

// Record appends o to the stream. Query values in the URL are redacted.
func (j *Journal) Record(ctx context.Context, o rest.Outcome) error {
	values := map[string]any{
		"request_id":  o.ID,
		"kind":        o.Kind.String(),
		"method":      o.Method,
		"url":         debug.RedactURL(o.URL),
		"status":      o.StatusCode,
		"duration_ns": int64(o.Duration),
		"at":          j.now().UTC().Format(time.RFC3339Nano),
	}
	if o.Err != nil {
		values["error"] = o.Err.Error()
	}
	return j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Values: values,
	}).Err()
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int64) ([]Entry, error) {
	return j.rangeFrom(ctx, "-", limit)
}

// Since returns up to limit entries recorded at or after t, newest first.
// Stream IDs carry the insertion time in milliseconds.
func (j *Journal) Since(ctx context.Context, t time.Time, limit int64) ([]Entry, error) {
	return j.rangeFrom(ctx, strconv.FormatInt(t.UnixMilli(), 10), limit)
}

func (j *Journal) rangeFrom(ctx context.Context, start string, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	msgs, err := j.client.XRevRangeN(ctx, j.stream, "+", start, limit).Result()
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, entryFrom(msg))
	}
	return entries, nil
}

// Clear deletes the stream.
func (j *Journal) Clear(ctx context.Context) error {
	return j.client.Del(ctx, j.stream).Err()
}

// Close closes the underlying Redis client.
func (j *Journal) Close() error {
	return j.client.Close()
}

func entryFrom(msg redis.XMessage) Entry {
	e := Entry{StreamID: msg.ID}
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}
	e.Kind = str("kind")
	e.Method = str("method")
	e.URL = str("url")
	e.Error = str("error")
	if n, err := strconv.ParseInt(str("request_id"), 10, 64); err == nil {
		e.RequestID = n
	}
	if n, err := strconv.Atoi(str("status")); err == nil {
		e.StatusCode = n
	}
	if n, err := strconv.ParseInt(str("duration_ns"), 10, 64); err == nil {
		e.Duration = time.Duration(n)
	}
	if t, err := time.Parse(time.RFC3339Nano, str("at")); err == nil {
		e.At = t
	}
	return e
}

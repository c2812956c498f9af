package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/debug"
	"github.com/typedrest/typedrest/internal/envelope"
	"github.com/typedrest/typedrest/internal/feedback"
	"github.com/typedrest/typedrest/internal/iocontext"
	"github.com/typedrest/typedrest/internal/journal"
	"github.com/typedrest/typedrest/internal/rest"
)

type clientFactory struct {
	timeout   time.Duration
	userAgent string
	overrides config.Overrides
	bell      bool
	envelope  bool
	journal   string
}

func newClientFactory() *clientFactory {
	return &clientFactory{
		timeout:   flags.Timeout,
		userAgent: fmt.Sprintf("trest/%s", version),
		overrides: config.Overrides{Profile: flags.Profile, BaseURL: flags.BaseURL},
		bell:      flags.Bell,
		envelope:  flags.Envelope,
		journal:   flags.JournalURL,
	}
}

// session is a configured client plus the resources it owns.
type session struct {
	client  *rest.Client
	profile config.Resolved
	journal *journal.Journal
}

func (s *session) Close() {
	s.client.Close()
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

func (f *clientFactory) open(cmd *cobra.Command) (*session, error) {
	resolved, err := config.Resolve(f.overrides)
	if err != nil {
		return nil, err
	}

	header := resolved.Header()
	if f.userAgent != "" && header.Get("User-Agent") == "" {
		header.Set("User-Agent", f.userAgent)
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}

	cfg := rest.Config{
		BaseURL:          resolved.BaseURL,
		Header:           header,
		Debug:            resolved.Debug,
		ResponseModifier: classifyStatus,
		ErrorHandler:     logFailure,
		Feedback:         feedback.Nop{},
		Delivery:         rest.Inline,
		Logger:           slog.Default(),
	}
	if resolved.Debug && !flags.Debug {
		cfg.Logger = debug.SetupLogger(iocontext.GetIO(cmd.Context()).ErrOut, true, flags.LogFormat)
	}
	if f.envelope || resolved.Envelope {
		cfg.ResponseModifier = envelope.Unwrap
	}
	if f.bell {
		cfg.Feedback = feedback.NewBell(iocontext.GetIO(cmd.Context()).ErrOut)
	}

	s := &session{profile: resolved}
	journalURL := strings.TrimSpace(f.journal)
	if journalURL == "" {
		journalURL = resolved.JournalURL
	}
	if journalURL != "" {
		rc, err := journal.Connect(journalURL)
		if err != nil {
			return nil, err
		}
		s.journal = journal.New(rc, journal.WithLogger(slog.Default()))
		cfg.Observer = s.journal
	}

	var opts []rest.Option
	if f.timeout > 0 {
		opts = append(opts, rest.WithTimeout(f.timeout))
	}
	client, err := rest.New(cfg, opts...)
	if err != nil {
		if s.journal != nil {
			_ = s.journal.Close()
		}
		return nil, err
	}
	s.client = client
	return s, nil
}

// feedbackOptions opts a call into bell feedback when --bell is set.
func (f *clientFactory) feedbackOptions() rest.Options {
	if f.bell {
		return rest.SuccessFeedback | rest.FailureFeedback
	}
	return rest.DefaultOptions
}

func logFailure(_ context.Context, req *http.Request, _ any, body []byte, err error) {
	attrs := []any{"error", err}
	if req != nil {
		attrs = append(attrs, "method", req.Method, "url", req.URL.String())
	}
	if len(body) > 0 {
		attrs = append(attrs, "body_bytes", len(body))
	}
	slog.Debug("request failed", attrs...)
}

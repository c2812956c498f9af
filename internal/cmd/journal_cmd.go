package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/journal"
	"github.com/typedrest/typedrest/internal/timeexpr"
)

// journalURL picks --journal, then TREST_JOURNAL_URL, then the profile.
func journalURL() (string, error) {
	if v := strings.TrimSpace(flags.JournalURL); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(config.EnvJournalURL)); v != "" {
		return v, nil
	}
	name, err := targetProfile()
	if err != nil {
		return "", err
	}
	p, err := config.LoadProfile(name)
	if err != nil {
		return "", err
	}
	if p.JournalURL == "" {
		return "", fmt.Errorf("no journal configured (pass --journal, set %s or run 'trest config set-journal <url>')", config.EnvJournalURL)
	}
	return p.JournalURL, nil
}

func newJournalCmd() *cobra.Command {
	var limit int64
	var clearAll bool
	var stream string
	var since string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent request outcomes",
		Long: `Show request outcomes recorded in the Redis journal, newest first.

Requests are recorded when a journal URL is configured with --journal,
TREST_JOURNAL_URL or 'trest config set-journal'.`,
		Example: `  trest journal --limit 50
  trest journal --since "2h ago"
  trest journal --json --jq '.[] | select(.kind != "ok")'
  trest journal --clear`,
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be >= 1")
			}
			var from time.Time
			if since != "" {
				t, err := timeexpr.Past(since, time.Now())
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				from = t
			}
			url, err := journalURL()
			if err != nil {
				return err
			}
			rc, err := journal.Connect(url)
			if err != nil {
				return err
			}
			j := journal.New(rc, journal.WithStream(stream), journal.WithLogger(slog.Default()))
			defer func() { _ = j.Close() }()

			if clearAll {
				if err := j.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear journal: %w", err)
				}
				printLine(cmd, "Journal cleared")
				return nil
			}

			var entries []journal.Entry
			if from.IsZero() {
				entries, err = j.Recent(cmd.Context(), limit)
			} else {
				entries, err = j.Since(cmd.Context(), from, limit)
			}
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, entries)
			}

			f := newFormatter(cmd)
			if len(entries) == 0 {
				f.Empty("No outcomes recorded.")
				return nil
			}
			f.StartTable([]string{"AT", "ID", "KIND", "METHOD", "STATUS", "DURATION", "URL"})
			for _, e := range entries {
				status := "-"
				if e.StatusCode > 0 {
					status = strconv.Itoa(e.StatusCode)
				}
				f.Row(
					e.At.Local().Format(time.DateTime),
					strconv.FormatInt(e.RequestID, 10),
					e.Kind,
					e.Method,
					status,
					e.Duration.Round(time.Millisecond).String(),
					e.URL,
				)
			}
			return f.EndTable()
		}),
	}

	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all recorded outcomes")
	cmd.Flags().StringVar(&since, "since", "", "Only show outcomes since a time (2h, yesterday, mon, 2026-01-02)")
	cmd.Flags().StringVar(&stream, "stream", journal.DefaultStream, "Redis stream key")
	return cmd
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/typedrest/typedrest/internal/debug"
	"github.com/typedrest/typedrest/internal/dryrun"
	"github.com/typedrest/typedrest/internal/iocontext"
	"github.com/typedrest/typedrest/internal/outfmt"
	"github.com/typedrest/typedrest/internal/resolve"
	"github.com/typedrest/typedrest/internal/rest"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	Profile    string
	BaseURL    string
	Output     string
	JSON       bool
	JQ         string
	Template   string
	Compact    bool
	Debug      bool
	LogFormat  string
	Timeout    time.Duration
	Quiet      bool
	Bell       bool
	Envelope   bool
	JournalURL string
	DryRun     bool
}

// flags holds the global command flags. It is reset at the start of every
// Execute call; tests depend on that for isolation.
var flags = defaultFlags()

func defaultFlags() rootFlags {
	return rootFlags{
		Output:    defaultOutput(),
		LogFormat: "text",
		Timeout:   rest.DefaultTimeout,
	}
}

func defaultOutput() string {
	if value := strings.TrimSpace(os.Getenv("TREST_OUTPUT")); value != "" {
		return value
	}
	return "text"
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// loadDotEnv loads TREST_ENV_FILE, or ./.env when present. Variables already
// set in the environment are not overwritten.
func loadDotEnv() {
	path := strings.TrimSpace(os.Getenv("TREST_ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	loadDotEnv()
	flags = defaultFlags()
	flags.Bell = parseBoolEnv("TREST_BELL")

	root := &cobra.Command{
		Use:                "trest",
		Short:              "Typed REST requests from the command line",
		Long:               "trest sends requests to a configured REST API and decodes the responses as success or failure payloads.",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if flags.JSON {
				if flagOrAliasChanged(cmd, "output") && flags.Output != "json" {
					return fmt.Errorf("--json conflicts with --output %s", flags.Output)
				}
				flags.Output = "json"
			}
			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			if (flags.JQ != "" || flags.Template != "") && mode == outfmt.Raw {
				return fmt.Errorf("--jq and --template cannot be used with --output raw")
			}
			if flags.Timeout < 0 {
				return fmt.Errorf("--timeout must be >= 0")
			}
			ctx = outfmt.WithMode(ctx, mode)
			ctx = outfmt.WithCompact(ctx, flags.Compact)
			if flags.JQ != "" {
				ctx = outfmt.WithQuery(ctx, flags.JQ)
			}
			if flags.Template != "" {
				tmpl, err := loadTemplate(flags.Template)
				if err != nil {
					return err
				}
				ctx = outfmt.WithTemplate(ctx, tmpl)
			}

			streams := iocontext.DefaultIO()
			if flags.Quiet {
				streams.Out = io.Discard
			}
			ctx = iocontext.WithIO(ctx, streams)
			cmd.SetOut(streams.Out)
			cmd.SetErr(streams.ErrOut)

			debug.SetupLogger(streams.ErrOut, flags.Debug, flags.LogFormat)
			ctx = debug.WithDebug(ctx, flags.Debug)
			ctx = dryrun.WithDryRun(ctx, flags.DryRun)

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.Profile, "profile", "p", "", "Profile to use (env TREST_PROFILE)")
	pf.StringVar(&flags.BaseURL, "base-url", "", "Override the profile base URL (env TREST_BASE_URL)")
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json|jsonl|raw (env TREST_OUTPUT)")
	pf.BoolVarP(&flags.JSON, "json", "j", false, "Shorthand for --output json")
	pf.StringVar(&flags.JQ, "jq", "", "jq expression applied to the decoded payload")
	pf.StringVar(&flags.Template, "template", "", "Go template string (or @path) to render the payload")
	pf.BoolVar(&flags.Compact, "compact-json", false, "Compact JSON output (no indentation)")
	pf.BoolVar(&flags.Debug, "debug", false, "Log every request and response to stderr")
	pf.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "Debug log format: text|json")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g., 30s, 2m)")
	pf.BoolVarP(&flags.Quiet, "quiet", "Q", false, "Suppress standard output")
	pf.BoolVar(&flags.Bell, "bell", flags.Bell, "Ring the terminal bell on success (once) and failure (twice) (env TREST_BELL)")
	pf.BoolVar(&flags.Envelope, "envelope", false, "Unwrap {status, data|message} response envelopes")
	pf.StringVar(&flags.JournalURL, "journal", "", "Redis URL for the outcome journal (env TREST_JOURNAL_URL)")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Print the encoded request instead of sending it")

	flagAlias(pf, "jq", "query")
	flagAlias(pf, "compact-json", "cj")
	flagAlias(pf, "template", "tpl")
	flagAlias(pf, "debug", "dbg")
	flagAlias(pf, "dry-run", "dr")

	root.AddCommand(newRequestCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newBulkCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newAuthCmd())
	root.AddCommand(newJournalCmd())
	root.AddCommand(newVersionCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), enhanceUnknownError(err, root, targetCmd))
		}
		return err
	}
	return nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command and
// flag errors.
func enhanceUnknownError(err error, root *cobra.Command, targetCmd *cobra.Command) string {
	msg := err.Error()

	if strings.Contains(msg, "unknown command") {
		if unknown := extractQuoted(msg); unknown != "" {
			var names []string
			for _, c := range root.Commands() {
				if c.IsAvailableCommand() {
					names = append(names, c.Name())
					names = append(names, c.Aliases...)
				}
			}
			if matches := resolve.Suggest(unknown, names, 1); len(matches) > 0 {
				return fmt.Sprintf("%s\n\nDid you mean %q?", msg, matches[0].Name)
			}
		}
	}

	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand flag") {
		if unknown := extractFlag(msg); unknown != "" {
			cmd := root
			if targetCmd != nil {
				cmd = targetCmd
			}
			var names []string
			collect := func(fs *pflag.FlagSet) {
				fs.VisitAll(func(f *pflag.Flag) {
					if !f.Hidden {
						names = append(names, "--"+f.Name)
					}
				})
			}
			collect(cmd.Flags())
			collect(cmd.InheritedFlags())
			helpCmd := strings.TrimSpace(cmd.CommandPath()) + " --help"
			if matches := resolve.Suggest(unknown, names, 1); len(matches) > 0 {
				return fmt.Sprintf("%s\n\nDid you mean %q?\nRun %q to see supported flags.", msg, matches[0].Name, helpCmd)
			}
			return fmt.Sprintf("%s\n\nRun %q to see supported flags.", msg, helpCmd)
		}
	}

	return msg
}

// extractQuoted extracts the first double-quoted substring from s.
func extractQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// extractFlag extracts a flag name (e.g., "--foo") from an error message.
func extractFlag(s string) string {
	idx := strings.Index(s, "--")
	if idx < 0 {
		return ""
	}
	rest := s[idx:]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimRight(rest, ".,;:!?\"'")
}

func loadTemplate(value string) (string, error) {
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read template file: %w", err)
		}
		return string(data), nil
	}
	return value, nil
}

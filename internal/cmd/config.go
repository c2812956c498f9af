package cmd

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/typedrest/typedrest/internal/config"
)

// targetProfile is the profile config commands act on: --profile, then
// TREST_PROFILE, then the current profile.
func targetProfile() (string, error) {
	if name := strings.TrimSpace(flags.Profile); name != "" {
		return name, nil
	}
	if name := strings.TrimSpace(os.Getenv(config.EnvProfile)); name != "" {
		return name, nil
	}
	return config.CurrentProfile()
}

func updateTarget(fn func(*config.Profile) error) (string, error) {
	name, err := targetProfile()
	if err != nil {
		return "", err
	}
	return name, config.UpdateProfile(name, fn)
}

func validateBaseURL(raw string) (string, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: must be an absolute http or https URL", raw)
	}
	return raw, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage profiles, headers and endpoint aliases",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetURLCmd())
	cmd.AddCommand(newConfigSetHeaderCmd())
	cmd.AddCommand(newConfigUnsetHeaderCmd())
	cmd.AddCommand(newConfigSetEnvelopeCmd())
	cmd.AddCommand(newConfigSetJournalCmd())
	cmd.AddCommand(newConfigAliasCmd())
	cmd.AddCommand(newConfigProfilesCmd())
	cmd.AddCommand(newConfigUseCmd())
	cmd.AddCommand(newConfigDeleteCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Show profile details",
		Example: "trest config show --profile staging",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name, err := targetProfile()
			if err != nil {
				return err
			}
			p, err := config.LoadProfile(name)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"profile":     name,
					"base_url":    p.BaseURL,
					"token":       maskToken(p.Token),
					"headers":     p.Headers,
					"envelope":    p.Envelope,
					"debug":       p.Debug,
					"journal_url": p.JournalURL,
					"aliases":     p.Aliases,
				})
			}

			printLine(cmd, "Profile: %s", name)
			printLine(cmd, "  Base URL: %s", p.BaseURL)
			if p.Token != "" {
				printLine(cmd, "  Token: %s", maskToken(p.Token))
			}
			for _, k := range sortedKeys(p.Headers) {
				printLine(cmd, "  Header: %s: %s", k, p.Headers[k])
			}
			printLine(cmd, "  Envelope: %t", p.Envelope)
			if p.JournalURL != "" {
				printLine(cmd, "  Journal: %s", p.JournalURL)
			}
			printLine(cmd, "  Aliases: %d", len(p.Aliases))
			return nil
		}),
	}
}

func newConfigSetURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set-url <base-url>",
		Short:   "Set the profile base URL",
		Example: "trest config set-url https://api.example.com/v1",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			baseURL, err := validateBaseURL(args[0])
			if err != nil {
				return err
			}
			name, err := updateTarget(func(p *config.Profile) error {
				p.BaseURL = baseURL
				return nil
			})
			if err != nil {
				return err
			}
			printLine(cmd, "Profile %s: base URL set to %s", name, baseURL)
			return nil
		}),
	}
}

func newConfigSetHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set-header <name> <value>",
		Short:   "Send a header with every request of the profile",
		Example: "trest config set-header X-Api-Version 2",
		Args:    cobra.ExactArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			header := strings.TrimSpace(args[0])
			if header == "" {
				return fmt.Errorf("header name is required")
			}
			name, err := updateTarget(func(p *config.Profile) error {
				if p.Headers == nil {
					p.Headers = make(map[string]string)
				}
				p.Headers[header] = args[1]
				return nil
			})
			if err != nil {
				return err
			}
			printLine(cmd, "Profile %s: header %s set", name, header)
			return nil
		}),
	}
}

func newConfigUnsetHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset-header <name>",
		Short: "Remove a profile header",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			header := args[0]
			name, err := updateTarget(func(p *config.Profile) error {
				for k := range p.Headers {
					if strings.EqualFold(k, header) {
						delete(p.Headers, k)
						return nil
					}
				}
				return fmt.Errorf("header %q is not set", header)
			})
			if err != nil {
				return err
			}
			printLine(cmd, "Profile %s: header %s removed", name, header)
			return nil
		}),
	}
}

func newConfigSetEnvelopeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-envelope <true|false>",
		Short: "Unwrap {status, data|message} envelopes for the profile",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("invalid value %q: must be true or false", args[0])
			}
			name, err := updateTarget(func(p *config.Profile) error {
				p.Envelope = enabled
				return nil
			})
			if err != nil {
				return err
			}
			printLine(cmd, "Profile %s: envelope %t", name, enabled)
			return nil
		}),
	}
}

func newConfigSetJournalCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set-journal <redis-url>",
		Short:   "Record request outcomes to a Redis stream (empty string disables)",
		Example: "trest config set-journal redis://localhost:6379/0",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			journalURL := strings.TrimSpace(args[0])
			name, err := updateTarget(func(p *config.Profile) error {
				p.JournalURL = journalURL
				return nil
			})
			if err != nil {
				return err
			}
			if journalURL == "" {
				printLine(cmd, "Profile %s: journal disabled", name)
				return nil
			}
			printLine(cmd, "Profile %s: journal set to %s", name, journalURL)
			return nil
		}),
	}
}

func newConfigAliasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alias",
		Aliases: []string{"aliases"},
		Short:   "Manage named endpoints for 'trest call'",
	}
	cmd.AddCommand(newAliasSetCmd())
	cmd.AddCommand(newAliasRemoveCmd())
	cmd.AddCommand(newAliasListCmd())
	return cmd
}

func newAliasSetCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:     "set <name> <method> <path>",
		Short:   "Save an endpoint alias",
		Example: "trest config alias set user GET '/users/{id}' --description 'Fetch one user'",
		Args:    cobra.ExactArgs(3),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[1])
			if !validMethods[method] {
				return fmt.Errorf("invalid HTTP method %q: must be one of GET, POST, PUT, PATCH, DELETE, HEAD", args[1])
			}
			name, err := targetProfile()
			if err != nil {
				return err
			}
			alias := config.Alias{Method: method, Path: args[2], Description: description}
			if err := config.SetAlias(name, args[0], alias); err != nil {
				return err
			}
			printLine(cmd, "Profile %s: alias %s -> %s %s", name, args[0], method, args[2])
			return nil
		}),
	}

	cmd.Flags().StringVar(&description, "description", "", "Alias description")
	flagAlias(cmd.Flags(), "description", "desc")
	return cmd
}

func newAliasRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove an endpoint alias",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name, err := targetProfile()
			if err != nil {
				return err
			}
			if err := config.RemoveAlias(name, args[0]); err != nil {
				return err
			}
			printLine(cmd, "Profile %s: alias %s removed", name, args[0])
			return nil
		}),
	}
}

func newAliasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List endpoint aliases",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name, err := targetProfile()
			if err != nil {
				return err
			}
			p, err := config.LoadProfile(name)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				aliases := p.Aliases
				if aliases == nil {
					aliases = map[string]config.Alias{}
				}
				return printJSON(cmd, aliases)
			}

			f := newFormatter(cmd)
			if len(p.Aliases) == 0 {
				f.Empty("No aliases configured. Run 'trest config alias set' to add one.")
				return nil
			}
			f.StartTable([]string{"NAME", "METHOD", "PATH", "DESCRIPTION"})
			for _, alias := range p.AliasNames() {
				a := p.Aliases[alias]
				f.Row(alias, a.Method, a.Path, a.Description)
			}
			return f.EndTable()
		}),
	}
}

func newConfigProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"ls"},
		Short:   "List configured profiles",
		Example: "trest config profiles",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			profiles, err := config.ListProfiles()
			if err != nil {
				return err
			}
			current, _ := config.CurrentProfile()

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"current":  current,
					"profiles": profiles,
				})
			}

			f := newFormatter(cmd)
			if len(profiles) == 0 {
				f.Empty("No profiles configured. Run 'trest config set-url <url>' to add one.")
				return nil
			}
			f.StartTable([]string{"CURRENT", "PROFILE", "BASE_URL"})
			for _, profile := range profiles {
				marker := ""
				if profile == current {
					marker = "*"
				}
				baseURL := "-"
				if p, err := config.LoadProfile(profile); err == nil && p.BaseURL != "" {
					baseURL = p.BaseURL
				}
				f.Row(marker, profile, baseURL)
			}
			return f.EndTable()
		}),
	}
}

func newConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "use <name>",
		Short:   "Switch active profile",
		Example: "trest config use staging",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			p, err := config.LoadProfile(name)
			if err != nil {
				return fmt.Errorf("profile %q not found: %w", name, err)
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			printLine(cmd, "Current profile: %s (%s)", name, p.BaseURL)
			return nil
		}),
	}
}

func newConfigDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteProfile(args[0]); err != nil {
				return err
			}
			printLine(cmd, "Profile %s deleted", args[0])
			return nil
		}),
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/iocontext"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API token of a profile",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		baseURL   string
		token     string
		fromStdin bool
		envFile   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a bearer token to the keyring",
		Long: strings.TrimSpace(`
Save an API token for the current profile (or --profile) in the OS keyring.
The token is sent as "Authorization: Bearer <token>" unless the profile
defines its own Authorization header.
`),
		Example: strings.TrimSpace(`
  trest auth login --url https://api.example.com --token YOUR_TOKEN
  echo "$TOKEN" | trest auth login --stdin
  trest auth login --env-file .env --profile staging
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if envFile != "" {
				envVars, err := loadAuthEnvFile(envFile)
				if err != nil {
					return err
				}
				applyAuthEnvFileRuntimeVars(envVars)
				if baseURL == "" {
					baseURL = strings.TrimSpace(envVars[config.EnvBaseURL])
				}
				if token == "" {
					token = strings.TrimSpace(envVars[config.EnvToken])
				}
				if flags.Profile == "" {
					flags.Profile = strings.TrimSpace(envVars[config.EnvProfile])
				}
			}
			if fromStdin {
				if token != "" {
					return fmt.Errorf("--token and --stdin cannot be used together")
				}
				data, err := iocontext.ReadInput(cmd.Context(), "-")
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = strings.TrimSpace(string(data))
			}
			if token == "" {
				return fmt.Errorf("--token is required (or use --stdin / --env-file)")
			}
			if baseURL != "" {
				normalized, err := validateBaseURL(baseURL)
				if err != nil {
					return err
				}
				baseURL = normalized
			}

			name, err := updateTarget(func(p *config.Profile) error {
				if baseURL != "" {
					p.BaseURL = baseURL
				}
				if p.BaseURL == "" {
					return fmt.Errorf("--url is required for a new profile")
				}
				p.Token = token
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			printLine(cmd, "Credentials saved for profile %s", name)
			printLine(cmd, "  Token: %s", maskToken(token))
			return nil
		}),
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Base URL (required when the profile is new)")
	cmd.Flags().StringVar(&token, "token", "", "API token")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the token from standard input")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load TREST_BASE_URL, TREST_TOKEN and TREST_KEYRING_* from a .env file")
	flagAlias(cmd.Flags(), "url", "ur")
	flagAlias(cmd.Flags(), "token", "tk")
	flagAlias(cmd.Flags(), "env-file", "env")

	return cmd
}

func loadAuthEnvFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--env-file requires a file path")
	}

	envVars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read --env-file %q: %w", path, err)
	}

	return envVars, nil
}

// applyAuthEnvFileRuntimeVars copies keyring settings from --env-file into
// the process environment when they are not already exported.
func applyAuthEnvFileRuntimeVars(envVars map[string]string) {
	keys := []string{
		"TREST_KEYRING_BACKEND",
		"TREST_KEYRING_PASSWORD",
		"TREST_CREDENTIALS_DIR",
	}

	for _, key := range keys {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		value := strings.TrimSpace(envVars[key])
		if value == "" {
			continue
		}
		_ = os.Setenv(key, value)
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the effective credentials",
		Long:  "Display the base URL and token that requests would use (the token is masked).",
		Example: strings.TrimSpace(`
  trest auth status
  trest auth status --json
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			resolved, err := config.Resolve(config.Overrides{Profile: flags.Profile, BaseURL: flags.BaseURL})
			if err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					if isJSON(cmd) {
						return printJSON(cmd, map[string]any{
							"authenticated": false,
							"message":       "Not configured. Run 'trest config set-url <url>' first.",
						})
					}
					printLine(cmd, "Not configured.")
					printLine(cmd, "Run 'trest config set-url <url>' first.")
					return nil
				}
				return err
			}

			source := "keyring"
			if strings.TrimSpace(os.Getenv(config.EnvToken)) != "" {
				source = "env"
			}
			authenticated := resolved.Token != "" || resolved.Header().Get("Authorization") != ""

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"authenticated": authenticated,
					"profile":       resolved.Name,
					"base_url":      resolved.BaseURL,
					"token":         maskToken(resolved.Token),
					"source":        source,
				})
			}

			if authenticated {
				printLine(cmd, "Authenticated")
			} else {
				printLine(cmd, "No token configured")
			}
			printLine(cmd, "  Profile: %s", resolved.Name)
			printLine(cmd, "  Base URL: %s", resolved.BaseURL)
			if resolved.Token != "" {
				printLine(cmd, "  Token: %s", maskToken(resolved.Token))
				printLine(cmd, "  Source: %s", source)
			}
			return nil
		}),
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the token from the keyring",
		Long:  "Delete the stored token of the current profile (or --profile). Other profile settings are kept.",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			name, err := targetProfile()
			if err != nil {
				return err
			}
			p, err := config.LoadProfile(name)
			if err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					printLine(cmd, "No credentials found.")
					return nil
				}
				return err
			}
			if p.Token == "" {
				printLine(cmd, "No credentials found.")
				return nil
			}
			p.Token = ""
			if err := config.SaveProfile(name, p); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			printLine(cmd, "Token removed from profile %s.", name)
			return nil
		}),
	}
}

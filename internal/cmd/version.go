package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/typedrest/typedrest/internal/update"
)

// version is set at build time via ldflags
var version = "dev"

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if isJSON(cmd) {
				payload := map[string]any{
					"version": version,
					"go":      runtime.Version(),
				}
				if check {
					if result := update.CheckForUpdate(cmd.Context(), version); result != nil {
						payload["latest"] = result.LatestVersion
						payload["update_available"] = result.UpdateAvailable
						payload["update_url"] = result.UpdateURL
					}
				}
				_ = printJSON(cmd, payload)
				return
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trest version %s\n", version)
			if !check {
				return
			}

			// Fails silently; a release check never breaks the command.
			result := update.CheckForUpdate(cmd.Context(), version)
			if result != nil && result.UpdateAvailable {
				errOut := cmd.ErrOrStderr()
				_, _ = fmt.Fprintf(errOut, "\nUpdate available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)
				_, _ = fmt.Fprintf(errOut, "Download: %s\n", result.UpdateURL)
			}
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")
	return cmd
}

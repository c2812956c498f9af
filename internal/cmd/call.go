package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/resolve"
)

func newCallCmd() *cobra.Command {
	in := &requestInput{}

	cmd := &cobra.Command{
		Use:   "call <alias> [args...]",
		Short: "Send a request to a named endpoint",
		Long: `Send a request to an endpoint saved with 'trest config alias set'.

The alias name is matched fuzzily against the profile's aliases. Positional
arguments fill {placeholders} in the alias path, in order.`,
		Example: `  trest config alias set user GET '/users/{id}'
  trest call user 42
  trest call usr 42 --jq .name`,
		Args: cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			factory := newClientFactory()
			resolved, err := config.Resolve(factory.overrides)
			if err != nil {
				return err
			}
			names := resolved.AliasNames()
			if len(names) == 0 {
				return fmt.Errorf("%w: profile %q has no aliases (add one with 'trest config alias set')", config.ErrAliasNotFound, resolved.Name)
			}
			name, err := resolve.Name("alias", args[0], names)
			if err != nil {
				return err
			}
			alias := resolved.Aliases[name]

			path, err := expandPath(alias.Path, args[1:])
			if err != nil {
				return fmt.Errorf("alias %s: %w", name, err)
			}
			if !cmd.Flags().Changed("method") {
				in.method = alias.Method
			}
			req, err := in.build(cmd, path)
			if err != nil {
				return err
			}
			return runRequest(cmd, factory, req, in)
		}),
	}

	in.register(cmd.Flags(), "")
	return cmd
}

// expandPath replaces {name} placeholders in path with args, in order.
func expandPath(path string, args []string) (string, error) {
	var b strings.Builder
	used := 0
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			b.WriteString(path)
			break
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", path)
		}
		name := path[start+1 : start+end]
		if used >= len(args) {
			return "", fmt.Errorf("missing value for {%s}", name)
		}
		b.WriteString(path[:start])
		b.WriteString(url.PathEscape(args[used]))
		used++
		path = path[start+end+1:]
	}
	if used < len(args) {
		return "", fmt.Errorf("got %d arguments, path has %d placeholders", len(args), used)
	}
	return b.String(), nil
}

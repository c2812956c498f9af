package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/typedrest/typedrest/internal/iocontext"
	"github.com/typedrest/typedrest/internal/outfmt"
	"github.com/typedrest/typedrest/internal/rest"
)

// errAlreadyHandled signals that the error was already printed to stderr.
// Cobra still sees a failure (for the exit code) but does not print it again.
var errAlreadyHandled = errors.New("error already handled")

type handledError struct {
	err      error
	exitCode int
}

func (e *handledError) Error() string {
	return e.err.Error()
}

func (e *handledError) Unwrap() []error {
	return []error{errAlreadyHandled, e.err}
}

func (e *handledError) ExitCode() int {
	return e.exitCode
}

// RunE wraps a command function with structured error reporting.
func RunE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil {
			return nil
		}
		errOut := iocontext.GetIO(cmd.Context()).ErrOut
		if isJSON(cmd) {
			if structured := rest.StructuredErrorFromError(err); structured != nil {
				_ = outfmt.WriteJSON(errOut, structured, flags.Compact)
			}
		} else {
			_, _ = fmt.Fprint(errOut, HandleError(err))
		}
		return &handledError{err: err, exitCode: ExitCode(err)}
	}
}

// isJSON checks if the command context wants JSON output
func isJSON(cmd *cobra.Command) bool {
	return outfmt.IsJSON(cmd.Context())
}

func newFormatter(cmd *cobra.Command) *outfmt.Formatter {
	streams := iocontext.GetIO(cmd.Context())
	return outfmt.NewFormatter(cmd.Context(), streams.Out, streams.ErrOut)
}

// printJSON outputs data through the --jq/--template pipeline.
func printJSON(cmd *cobra.Command, v any) error {
	return newFormatter(cmd).Output(v)
}

func printLine(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(iocontext.GetIO(cmd.Context()).Out, format+"\n", args...)
}

// aliasBridgeValue wraps a pflag.Value so that Set() on the alias also
// marks the canonical flag as Changed.
type aliasBridgeValue struct {
	pflag.Value
	canonical *pflag.Flag
}

func (v *aliasBridgeValue) Set(s string) error {
	if err := v.Value.Set(s); err != nil {
		return err
	}
	v.canonical.Changed = true
	return nil
}

type aliasBridgeSliceValue struct {
	aliasBridgeValue
	slice pflag.SliceValue
}

func (v *aliasBridgeSliceValue) Append(s string) error     { return v.slice.Append(s) }
func (v *aliasBridgeSliceValue) Replace(ss []string) error { return v.slice.Replace(ss) }
func (v *aliasBridgeSliceValue) GetSlice() []string        { return v.slice.GetSlice() }

// flagAlias registers a hidden alias sharing the named flag's value.
func flagAlias(fs *pflag.FlagSet, name, alias string) {
	f := fs.Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("flagAlias: flag %q not found", name))
	}
	a := *f
	a.Name = alias
	a.Shorthand = ""
	a.Usage = ""
	a.Hidden = true
	bridge := &aliasBridgeValue{Value: f.Value, canonical: f}
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		a.Value = &aliasBridgeSliceValue{aliasBridgeValue: *bridge, slice: sv}
	} else {
		a.Value = bridge
	}
	a.Annotations = map[string][]string{"alias-of": {name}}
	fs.AddFlag(&a)
}

// flagOrAliasChanged returns true if the named flag or any of its hidden
// aliases was explicitly set.
func flagOrAliasChanged(cmd *cobra.Command, name string) bool {
	if cmd.Flags().Changed(name) || cmd.InheritedFlags().Changed(name) {
		return true
	}
	aliasChanged := func(fs *pflag.FlagSet) bool {
		found := false
		fs.VisitAll(func(f *pflag.Flag) {
			if ann := f.Annotations["alias-of"]; len(ann) > 0 && ann[0] == name && fs.Changed(f.Name) {
				found = true
			}
		})
		return found
	}
	return aliasChanged(cmd.Flags()) || aliasChanged(cmd.InheritedFlags())
}

func maskToken(token string) string {
	if len(token) < 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

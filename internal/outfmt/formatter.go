package outfmt

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
)

// Formatter handles output formatting for commands.
type Formatter struct {
	ctx       context.Context
	out       io.Writer
	errOut    io.Writer
	tabWriter *tabwriter.Writer
}

// NewFormatter creates a new Formatter
func NewFormatter(ctx context.Context, out, errOut io.Writer) *Formatter {
	return &Formatter{
		ctx:       ctx,
		out:       out,
		errOut:    errOut,
		tabWriter: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0),
	}
}

// Output filters data with the context query and renders it by mode.
// In JSONL mode a slice result is written one element per line.
func (f *Formatter) Output(data any) error {
	filtered, err := ApplyQuery(data, GetQuery(f.ctx))
	if err != nil {
		return err
	}
	if tmpl := GetTemplate(f.ctx); tmpl != "" {
		return WriteTemplate(f.out, filtered, tmpl)
	}

	switch ModeFromContext(f.ctx) {
	case JSONL:
		items, ok := filtered.([]any)
		if !ok {
			return WriteJSON(f.out, filtered, true)
		}
		for _, item := range items {
			if err := WriteJSON(f.out, item, true); err != nil {
				return err
			}
		}
		return nil
	case JSON:
		return WriteJSON(f.out, filtered, IsCompact(f.ctx))
	default:
		if s, ok := filtered.(string); ok {
			_, err := fmt.Fprintln(f.out, s)
			return err
		}
		return WriteJSON(f.out, filtered, IsCompact(f.ctx))
	}
}

// Bytes writes a raw body followed by a newline when it lacks one.
func (f *Formatter) Bytes(body []byte) error {
	if _, err := f.out.Write(body); err != nil {
		return err
	}
	if len(body) > 0 && body[len(body)-1] != '\n' {
		_, err := fmt.Fprintln(f.out)
		return err
	}
	return nil
}

// StartTable writes table headers. Returns true if in text mode.
func (f *Formatter) StartTable(headers []string) bool {
	if IsJSON(f.ctx) {
		return false
	}
	f.Row(headers...)
	return true
}

// Row writes a single row to the table.
func (f *Formatter) Row(columns ...string) {
	for i, col := range columns {
		if i > 0 {
			_, _ = fmt.Fprint(f.tabWriter, "\t")
		}
		_, _ = fmt.Fprint(f.tabWriter, col)
	}
	_, _ = fmt.Fprintln(f.tabWriter)
}

// EndTable flushes the table output.
func (f *Formatter) EndTable() error {
	return f.tabWriter.Flush()
}

// Empty writes a message to stderr indicating no results.
func (f *Formatter) Empty(message string) {
	_, _ = fmt.Fprintln(f.errOut, message)
}

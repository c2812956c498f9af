// Package iocontext carries a command's I/O streams on its context.
package iocontext

import (
	"context"
	"fmt"
	"io"
	"os"
)

// IO holds the input/output streams for commands.
type IO struct {
	Out    io.Writer
	ErrOut io.Writer
	In     io.Reader
}

// DefaultIO returns the standard IO streams.
func DefaultIO() *IO {
	return &IO{Out: os.Stdout, ErrOut: os.Stderr, In: os.Stdin}
}

type ioKey struct{}

// WithIO adds IO streams to a context.
func WithIO(ctx context.Context, streams *IO) context.Context {
	return context.WithValue(ctx, ioKey{}, streams)
}

// GetIO retrieves IO streams from context, defaulting to standard streams.
func GetIO(ctx context.Context) *IO {
	if streams, ok := ctx.Value(ioKey{}).(*IO); ok && streams != nil {
		return streams
	}
	return DefaultIO()
}

// ReadInput reads path, or the context's stdin when path is "-".
func ReadInput(ctx context.Context, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(GetIO(ctx).In)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

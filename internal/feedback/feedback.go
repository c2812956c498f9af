// Package feedback provides rest.Feedback implementations for terminals.
package feedback

import (
	"io"
	"sync"

	"github.com/typedrest/typedrest/internal/rest"
)

var (
	_ rest.Feedback = Nop{}
	_ rest.Feedback = (*Bell)(nil)
)

// Nop ignores all signals.
type Nop struct{}

func (Nop) Success() {}
func (Nop) Failure() {}

// Bell rings the terminal bell: once on success, twice on failure.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell returns a Bell writing to w, usually stderr.
func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

func (b *Bell) Success() { b.ring(1) }
func (b *Bell) Failure() { b.ring(2) }

func (b *Bell) ring(times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < times; i++ {
		_, _ = io.WriteString(b.w, "\a")
	}
}

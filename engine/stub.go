package engine

import (
	"context"

	"github.com/kitevm/kite-runtime/frame"
)

// Outcome is the result of one resume step.
type Outcome struct {
	// Done marks the resumable as finished. Value then holds the final
	// result and Next is ignored.
	Done bool

	// Value is the yielded (or final) word.
	Value uint64

	// Next is the resume address to suspend at for the following step.
	// Zero means "resume at the same address again".
	Next uint64
}

// Stub executes the code at one resume address. The frame is live for the
// duration of the call; stubs read and write its locals and payload but
// never destroy it.
type Stub interface {
	Invoke(ctx context.Context, fr *frame.Frame) (Outcome, error)
}

// StubFunc adapts a function to the Stub interface.
type StubFunc func(ctx context.Context, fr *frame.Frame) (Outcome, error)

// Invoke implements Stub.
func (f StubFunc) Invoke(ctx context.Context, fr *frame.Frame) (Outcome, error) {
	return f(ctx, fr)
}

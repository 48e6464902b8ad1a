package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the frame lifecycle the error occurred
type Phase string

const (
	PhaseAlloc    Phase = "alloc"    // arena allocation and release
	PhaseCreate   Phase = "create"   // frame creation (fresh or clone)
	PhaseResume   Phase = "resume"   // resume address/offset access
	PhaseDestroy  Phase = "destroy"  // frame destruction
	PhaseRegister Phase = "register" // function/stub registration
	PhaseRuntime  Phase = "runtime"  // everything else at run time
)

// Kind categorizes the error
type Kind string

const (
	KindContract      Kind = "contract"       // caller violated a precondition
	KindOutOfBounds   Kind = "out_of_bounds"  // offset outside bytecode bounds
	KindExhausted     Kind = "exhausted"      // arena limit reached
	KindInvalidFree   Kind = "invalid_free"   // free of an unknown block
	KindSizeMismatch  Kind = "size_mismatch"  // freed size != allocated size
	KindReleased      Kind = "released"       // handle already consumed
	KindNotFound      Kind = "not_found"      // unknown function or address
	KindInvalidInput  Kind = "invalid_input"  // malformed argument
	KindNotResumable  Kind = "not_resumable"  // function lacks the resumable attr
	KindStackOverflow Kind = "stack_overflow" // execution stack exhausted
	KindTrap          Kind = "trap"           // compiled step aborted
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Func   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != "" {
		b.WriteString(" in ")
		b.WriteString(e.Func)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Func sets the function name the error relates to
func (b *Builder) Func(name string) *Builder {
	b.err.Func = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Contract creates a precondition-violation error
func Contract(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindContract,
		Detail: detail,
	}
}

// OffsetOutOfBounds creates an out-of-bounds error for a bytecode offset
func OffsetOutOfBounds(phase Phase, fn string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Func:   fn,
		Detail: fmt.Sprintf("resume offset %d outside bytecode bounds [0, %d)", offset, length),
		Value:  offset,
	}
}

// NotResumable creates an error for a function without the resumable attribute
func NotResumable(phase Phase, fn string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotResumable,
		Func:   fn,
		Detail: "function is not resumable",
	}
}

// Exhausted creates an arena-limit error
func Exhausted(size, limit uint32) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindExhausted,
		Detail: fmt.Sprintf("allocation of %d bytes exceeds arena limit %d", size, limit),
		Value:  size,
	}
}

// InvalidFree creates an error for a free of an address the arena never issued
func InvalidFree(ptr uint32) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindInvalidFree,
		Detail: fmt.Sprintf("free of unknown block at 0x%x", ptr),
		Value:  ptr,
	}
}

// SizeMismatch creates an error for a free whose size does not replay the allocation
func SizeMismatch(ptr, got, want uint32) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindSizeMismatch,
		Detail: fmt.Sprintf("free of block at 0x%x with size %d, allocated with %d", ptr, got, want),
		Value:  got,
	}
}

// Released creates an error for use of a consumed frame handle
func Released(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: "frame handle already destroyed",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what string, id any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %v not found", what, id),
		Value:  id,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

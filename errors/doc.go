// Package errors provides structured error types for the kite runtime.
//
// Errors are categorized by Phase (where in the frame lifecycle the error
// occurred) and Kind (error category). The Error type carries the function
// name involved, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCreate, errors.KindContract).
//		Func("makeRange").
//		Detail("caller frame already suspended").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OffsetOutOfBounds(errors.PhaseResume, "makeRange", 150, 100)
//	err := errors.SizeMismatch(ptr, 160, 144)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

// Package bytecode holds the compiled-function metadata the frame core
// consumes: function identity, local-slot count, bytecode bounds, and
// attribute flags. The frame core reads this metadata to size locals regions
// and to validate resume offsets; it never defines or mutates it.
package bytecode

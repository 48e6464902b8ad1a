// Package emit builds the minimal WASM binaries backing compiled resume
// stubs: one module, one exported function (i64) -> (i64).
package emit

// WASM binary format constants.
const (
	sectionType     = 0x01
	sectionFunction = 0x03
	sectionExport   = 0x07
	sectionCode     = 0x0a

	typeFunc = 0x60
	valI64   = 0x7e

	exportKindFunc = 0x00

	opLocalGet = 0x20
	opI64Const = 0x42
	opI64Add   = 0x7c
	opI64Sub   = 0x7d
	opI64Mul   = 0x7e
	opEnd      = 0x0b
)

// StepName is the export every step module carries.
const StepName = "step"

// StepModule emits a complete WASM module with a single exported function
//
//	(func (export "step") (param i64) (result i64) <body>)
//
// The body is raw instruction bytes without the trailing end opcode.
func StepModule(body []byte) []byte {
	w := NewWriter()

	// Magic and version.
	w.WriteBytes([]byte{0x00, 0x61, 0x73, 0x6d})
	w.WriteBytes([]byte{0x01, 0x00, 0x00, 0x00})

	// Type section: one functype (i64) -> (i64).
	sec := NewWriter()
	sec.WriteU32(1)
	sec.Byte(typeFunc)
	sec.WriteU32(1)
	sec.Byte(valI64)
	sec.WriteU32(1)
	sec.Byte(valI64)
	writeSection(w, sectionType, sec)

	// Function section: one function using type 0.
	sec = NewWriter()
	sec.WriteU32(1)
	sec.WriteU32(0)
	writeSection(w, sectionFunction, sec)

	// Export section.
	sec = NewWriter()
	sec.WriteU32(1)
	sec.WriteName(StepName)
	sec.Byte(exportKindFunc)
	sec.WriteU32(0)
	writeSection(w, sectionExport, sec)

	// Code section: one body, no extra locals.
	fn := NewWriter()
	fn.WriteU32(0)
	fn.WriteBytes(body)
	fn.Byte(opEnd)

	sec = NewWriter()
	sec.WriteU32(1)
	sec.WriteU32(uint32(fn.Len()))
	sec.WriteBytes(fn.Bytes())
	writeSection(w, sectionCode, sec)

	return w.Bytes()
}

func writeSection(w *Writer, id byte, contents *Writer) {
	w.Byte(id)
	w.WriteU32(uint32(contents.Len()))
	w.WriteBytes(contents.Bytes())
}

// Identity returns a body passing the parameter through unchanged.
func Identity() []byte {
	return []byte{opLocalGet, 0x00}
}

// AddConst returns a body computing param + n.
func AddConst(n int64) []byte {
	w := NewWriter()
	w.Byte(opLocalGet)
	w.WriteU32(0)
	w.Byte(opI64Const)
	w.WriteS64(n)
	w.Byte(opI64Add)
	return w.Bytes()
}

// MulConst returns a body computing param * n.
func MulConst(n int64) []byte {
	w := NewWriter()
	w.Byte(opLocalGet)
	w.WriteU32(0)
	w.Byte(opI64Const)
	w.WriteS64(n)
	w.Byte(opI64Mul)
	return w.Bytes()
}

// SubConst returns a body computing param - n.
func SubConst(n int64) []byte {
	w := NewWriter()
	w.Byte(opLocalGet)
	w.WriteU32(0)
	w.Byte(opI64Const)
	w.WriteS64(n)
	w.Byte(opI64Sub)
	return w.Bytes()
}

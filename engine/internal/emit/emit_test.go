package emit

import (
	"bytes"
	"testing"
)

func TestStepModuleShape(t *testing.T) {
	mod := StepModule(Identity())

	if !bytes.HasPrefix(mod, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}) {
		t.Fatal("missing wasm magic and version")
	}
	if !bytes.Contains(mod, []byte(StepName)) {
		t.Fatal("missing step export name")
	}

	// Sections appear in order: type, function, export, code.
	off := 8
	for _, want := range []byte{sectionType, sectionFunction, sectionExport, sectionCode} {
		if off >= len(mod) {
			t.Fatalf("module truncated before section %#x", want)
		}
		if mod[off] != want {
			t.Fatalf("expected section %#x at %d, got %#x", want, off, mod[off])
		}
		size, n := readU32(t, mod[off+1:])
		off += 1 + n + int(size)
	}
	if off != len(mod) {
		t.Fatalf("trailing bytes after code section: %d != %d", off, len(mod))
	}
}

func TestBodies(t *testing.T) {
	cases := []struct {
		name string
		body []byte
		last byte
	}{
		{"identity", Identity(), 0x00},
		{"add", AddConst(5), opI64Add},
		{"sub", SubConst(1), opI64Sub},
		{"mul", MulConst(-3), opI64Mul},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.body[0] != opLocalGet {
				t.Fatalf("body must start with local.get, got %#x", tc.body[0])
			}
			if tc.body[len(tc.body)-1] != tc.last {
				t.Fatalf("expected final opcode %#x, got %#x", tc.last, tc.body[len(tc.body)-1])
			}
		})
	}
}

func TestWriterLEB128(t *testing.T) {
	w := NewWriter()
	w.WriteU32(624485)
	if !bytes.Equal(w.Bytes(), []byte{0xe5, 0x8e, 0x26}) {
		t.Fatalf("uleb 624485 encoded as % x", w.Bytes())
	}

	w = NewWriter()
	w.WriteS64(-1)
	if !bytes.Equal(w.Bytes(), []byte{0x7f}) {
		t.Fatalf("sleb -1 encoded as % x", w.Bytes())
	}

	w = NewWriter()
	w.WriteName("step")
	if !bytes.Equal(w.Bytes(), []byte{0x04, 's', 't', 'e', 'p'}) {
		t.Fatalf("name encoded as % x", w.Bytes())
	}
}

func readU32(t *testing.T, b []byte) (uint32, int) {
	t.Helper()
	var v uint32
	var shift uint
	for i, c := range b {
		v |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	t.Fatal("unterminated leb128")
	return 0, 0
}

package layout

import (
	"testing"

	"github.com/kitevm/kite-runtime/heap"
)

func newMem(t *testing.T) *heap.Heap {
	t.Helper()
	h, err := heap.New(heap.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestActRecOffIsZero(t *testing.T) {
	// The activation record must sit at the very start of the header.
	if ActRecOff != 0 {
		t.Fatalf("ActRecOff = %d, want 0", ActRecOff)
	}
}

func TestRegionSizesAligned(t *testing.T) {
	for name, size := range map[string]uint32{
		"NodeSize":   NodeSize,
		"ActRecSize": ActRecSize,
		"HeaderSize": HeaderSize,
	} {
		if size%Align != 0 {
			t.Fatalf("%s = %d, not a multiple of %d", name, size, Align)
		}
	}
}

func TestTotalSize(t *testing.T) {
	// 3 slots of 16 bytes, 40-byte payload.
	got := TotalSize(48, 40)
	want := uint32(NodeSize + 48 + HeaderSize + 40)
	if got != want {
		t.Fatalf("TotalSize(48, 40) = %d, want %d", got, want)
	}
}

func TestPackUnpackSizeOffset(t *testing.T) {
	tests := []struct{ size, offset uint32 }{
		{0, 0},
		{168, 12},
		{1 << 20, 55},
		{0xffffffff, 0xffffffff},
	}
	for _, tt := range tests {
		size, offset := UnpackSizeOffset(PackSizeOffset(tt.size, tt.offset))
		if size != tt.size || offset != tt.offset {
			t.Fatalf("round trip (%d, %d) = (%d, %d)", tt.size, tt.offset, size, offset)
		}
	}
}

func TestBaseFromPayload(t *testing.T) {
	const frameSize, payloadSize = 48, 40
	base := uint32(0x100)
	total := TotalSize(frameSize, payloadSize)
	payload := PayloadAddr(base, frameSize)

	if got := BaseFromPayload(payload, total, payloadSize); got != base {
		t.Fatalf("BaseFromPayload = 0x%x, want 0x%x", got, base)
	}
}

func TestNodeRoundTrip(t *testing.T) {
	mem := newMem(t)
	base, _ := mem.Alloc(NodeSize)

	if err := WriteNode(mem, base, 48, KindResumableFrame); err != nil {
		t.Fatal(err)
	}
	frameSize, kind, err := ReadNode(mem, base)
	if err != nil {
		t.Fatal(err)
	}
	if frameSize != 48 || kind != KindResumableFrame {
		t.Fatalf("node = (%d, %d)", frameSize, kind)
	}
}

func TestActRecRoundTrip(t *testing.T) {
	mem := newMem(t)
	addr, _ := mem.Alloc(ActRecSize)

	ar := ActivationRecord{
		SavedFP:    0x40,
		SavedRet:   0xdeadbeefcafef00d,
		FuncID:     7,
		Flags:      FlagSuspended | FlagHasVarEnv,
		VarEnvID:   3,
		CallOffset: 21,
		NumArgs:    2,
	}
	if err := WriteActRec(mem, addr, ar); err != nil {
		t.Fatal(err)
	}
	got, err := ReadActRec(mem, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got != ar {
		t.Fatalf("record round trip\n got %+v\nwant %+v", got, ar)
	}
	if !got.Suspended() || !got.HasVarEnv() {
		t.Fatal("flag accessors disagree with flags")
	}
}

func TestWriteActRecFromFunc_PreservesLinkage(t *testing.T) {
	mem := newMem(t)
	addr, _ := mem.Alloc(ActRecSize)

	orig := ActivationRecord{SavedFP: 0x1111, SavedRet: 0x2222}
	if err := WriteActRec(mem, addr, orig); err != nil {
		t.Fatal(err)
	}

	// Partial write must leave the two linkage fields untouched.
	partial := ActivationRecord{
		SavedFP:  0x9999, // must NOT land in memory
		SavedRet: 0x8888, // must NOT land in memory
		FuncID:   5,
		Flags:    FlagSuspended,
	}
	if err := WriteActRecFromFunc(mem, addr, partial); err != nil {
		t.Fatal(err)
	}

	got, _ := ReadActRec(mem, addr)
	if got.SavedFP != 0x1111 || got.SavedRet != 0x2222 {
		t.Fatalf("linkage clobbered: %+v", got)
	}
	if got.FuncID != 5 || !got.Suspended() {
		t.Fatalf("non-linkage fields not written: %+v", got)
	}
}

func TestHeaderTailRoundTrip(t *testing.T) {
	mem := newMem(t)
	headerAddr, _ := mem.Alloc(HeaderSize)

	if err := WriteHeaderTail(mem, headerAddr, 0xabcd1234, 168, 12); err != nil {
		t.Fatal(err)
	}

	addr, err := ReadResumeAddr(mem, headerAddr)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0xabcd1234 {
		t.Fatalf("resume addr = 0x%x", addr)
	}

	size, offset, err := ReadSizeOffset(mem, headerAddr)
	if err != nil {
		t.Fatal(err)
	}
	if size != 168 || offset != 12 {
		t.Fatalf("size/offset = (%d, %d)", size, offset)
	}
}

func TestCopy(t *testing.T) {
	mem := newMem(t)
	src, _ := mem.Alloc(64)
	dst, _ := mem.Alloc(64)

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	if err := mem.Write(src, data); err != nil {
		t.Fatal(err)
	}
	if err := Copy(mem, dst, src, 64); err != nil {
		t.Fatal(err)
	}

	got, _ := mem.Read(dst, 64)
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}

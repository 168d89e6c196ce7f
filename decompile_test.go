package decompile

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/lua-family/delua/internal/reader"
)

// byteBuilder mirrors internal/reader's own test helper: decompile_test
// exercises the reader through the public Decompile entry point, so it
// needs the same wire-format primitives to construct a fixture, not a
// stub of the format.
type byteBuilder struct{ buf []byte }

func (b *byteBuilder) u8(v byte) *byteBuilder {
	b.buf = append(b.buf, v)
	return b
}

func (b *byteBuilder) varint(v int32) *byteBuilder {
	u := uint32(v)
	for {
		c := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			c |= 0x80
		}
		b.buf = append(b.buf, c)
		if u == 0 {
			break
		}
	}
	return b
}

func (b *byteBuilder) word(op reader.Op, a, x, y byte) *byteBuilder {
	w := uint32(op) | uint32(a)<<8 | uint32(x)<<16 | uint32(y)<<24
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], w)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *byteBuilder) wordBx(op reader.Op, a byte, bx uint16) *byteBuilder {
	w := uint32(op) | uint32(a)<<8 | uint32(bx)<<16
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], w)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *byteBuilder) double(v float64) *byteBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// buildReturnConstant builds: one prototype, ClearStackFull; LoadConst 0,0;
// Return 0,2, one Number constant, selected as main. This is spec.md §8
// scenario 3: a bare `return <n>`.
func buildReturnConstant(constant float64) []byte {
	b := &byteBuilder{}
	b.u8(1)
	b.varint(0) // string table: 0 entries
	b.varint(1) // 1 prototype

	b.u8(1).u8(0).u8(0).u8(0) // maxReg, argCount, upvalCount, isVararg

	b.varint(3)
	b.word(reader.OpClearStackFull, 0, 0, 0)
	b.wordBx(reader.OpLoadConst, 0, 0)
	b.word(reader.OpReturn, 0, 2, 0)

	b.varint(1)
	b.u8(2) // constantNumber tag
	b.double(constant)

	b.varint(0) // 0 children
	b.varint(0) // anonymous
	b.varint(3)
	b.varint(1).varint(0).varint(0)
	b.u8(0) // trailing byte

	b.varint(0) // main prototype index
	return b.buf
}

func TestDecompileReturnConstant(t *testing.T) {
	var sb strings.Builder
	err := Decompile(buildReturnConstant(42), &sb)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if sb.String() != "return 42\n" {
		t.Fatalf("got %q", sb.String())
	}
}

func TestDecompileString(t *testing.T) {
	got, err := DecompileString(buildReturnConstant(7))
	if err != nil {
		t.Fatalf("DecompileString: %v", err)
	}
	if got != "return 7\n" {
		t.Fatalf("got %q", got)
	}
}

func TestDecompileRejectsCompileErrorStatus(t *testing.T) {
	bytecode := append([]byte{0}, "boom"...)
	err := Decompile(bytecode, &strings.Builder{})
	var be *reader.BytecodeError
	if !errors.As(err, &be) {
		t.Fatalf("expected *reader.BytecodeError, got %v (%T)", err, err)
	}
}

func TestDecompileRejectsVersionMismatch(t *testing.T) {
	err := Decompile([]byte{2}, &strings.Builder{})
	var vm *reader.VersionMismatch
	if !errors.As(err, &vm) {
		t.Fatalf("expected *reader.VersionMismatch, got %v (%T)", err, err)
	}
}

func TestDecompileRejectsTruncatedStream(t *testing.T) {
	err := Decompile([]byte{1}, &strings.Builder{})
	var m *reader.BytecodeMalformed
	if !errors.As(err, &m) {
		t.Fatalf("expected *reader.BytecodeMalformed, got %v (%T)", err, err)
	}
}

func TestFormatNormalizesSource(t *testing.T) {
	got, err := FormatString("if   a   then\nf()\nend")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	want := "if a then\n    f()\nend\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormatIsIdempotent(t *testing.T) {
	first, err := FormatString("local a = 1 + 2\nreturn a")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	second, err := FormatString(first)
	if err != nil {
		t.Fatalf("Format second pass: %v", err)
	}
	if first != second {
		t.Fatalf("not idempotent: %q vs %q", first, second)
	}
}

func TestFormatRejectsSyntaxError(t *testing.T) {
	_, err := FormatString("local = 1")
	if err == nil {
		t.Fatalf("expected error")
	}
}

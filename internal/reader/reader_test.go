package reader

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/lua-family/delua/internal/arena"
	"github.com/lua-family/delua/internal/ast"
	"github.com/lua-family/delua/internal/names"
)

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

func (b *byteBuilder) word(op Op, a, x, y byte) *byteBuilder {
	w := uint32(op) | uint32(a)<<8 | uint32(x)<<16 | uint32(y)<<24
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], w)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *byteBuilder) wordBx(op Op, a byte, bx uint16) *byteBuilder {
	w := uint32(op) | uint32(a)<<8 | uint32(bx)<<16
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], w)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *byteBuilder) rawWord(w uint32) *byteBuilder {
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

func (b *byteBuilder) str(s string) *byteBuilder {
	b.varint(int32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

func setup() (*arena.Arena, *names.Table) {
	a := arena.New()
	return a, names.New(a)
}

func TestReadRejectsCompileErrorStatus(t *testing.T) {
	b := &byteBuilder{}
	b.u8(0).buf = append(b.buf, "compile error: x"...)
	a, tbl := setup()
	_, err := Read(a, tbl, b.buf)
	if err == nil {
		t.Fatal("expected error")
	}
	var be *BytecodeError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BytecodeError, got %v (%T)", err, err)
	}
}

func TestReadRejectsVersionMismatch(t *testing.T) {
	b := &byteBuilder{}
	b.u8(2)
	a, tbl := setup()
	_, err := Read(a, tbl, b.buf)
	var vm *VersionMismatch
	if !errors.As(err, &vm) {
		t.Fatalf("expected *VersionMismatch, got %v (%T)", err, err)
	}
	if vm.Status != 2 {
		t.Fatalf("expected status 2, got %d", vm.Status)
	}
}

func TestReadTruncatedStreamIsMalformed(t *testing.T) {
	a, tbl := setup()
	_, err := Read(a, tbl, []byte{1})
	var m *BytecodeMalformed
	if !errors.As(err, &m) {
		t.Fatalf("expected *BytecodeMalformed, got %v (%T)", err, err)
	}
}

// buildMinimalProgram builds: status=1, empty string table, one prototype
// (studio mode, forced via a leading ClearStackFull) containing
// LoadConst 0,0 ; Return 0,2, one Number constant 42, and selects that
// prototype as main.
func buildMinimalProgram(constant float64) []byte {
	b := &byteBuilder{}
	b.u8(1)
	b.varint(0) // string table: 0 entries
	b.varint(1) // 1 prototype

	b.u8(1).u8(0).u8(0).u8(0) // maxReg, argCount, upvalCount, isVararg

	b.varint(3) // instrCount: ClearStackFull, LoadConst, Return
	b.word(OpClearStackFull, 0, 0, 0)
	b.wordBx(OpLoadConst, 0, 0)
	b.word(OpReturn, 0, 2, 0)

	b.varint(1) // 1 constant
	b.u8(byte(constantNumber))
	b.double(constant)

	b.varint(0) // 0 children
	b.varint(0) // anonymous
	b.varint(3) // 3 line-info entries, one per instruction slot
	b.varint(1).varint(0).varint(0)
	b.u8(0) // trailing byte

	b.varint(0) // main prototype index
	return b.buf
}

func TestReadSimplePrototypeStudioMode(t *testing.T) {
	a, tbl := setup()
	res, err := Read(a, tbl, buildMinimalProgram(42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Flagged {
		t.Fatalf("did not expect the flag to be set")
	}
	if !res.Main.IsMain {
		t.Fatalf("expected main prototype to be marked IsMain")
	}
	if len(res.Main.Code) != 3 {
		t.Fatalf("expected 3 code slots, got %d", len(res.Main.Code))
	}
	if res.Main.Code[0].Op != OpClearStackFull {
		t.Fatalf("expected first op to remain ClearStackFull in studio mode, got %v", res.Main.Code[0].Op)
	}
	if res.Main.Code[1].Op != OpLoadConst {
		t.Fatalf("expected second op to be LoadConst, got %v", res.Main.Code[1].Op)
	}
	num, ok := res.Main.Constants[0].(*ast.ConstantNumber)
	if !ok || num.Value != 42 {
		t.Fatalf("expected constant 42, got %#v", res.Main.Constants[0])
	}
}

func TestReadAuxiliaryWordSharesInstrCountBudget(t *testing.T) {
	// GetGlobal consumes one auxiliary word; the loop counter must absorb
	// it rather than treat it additively (spec.md §4.2).
	b := &byteBuilder{}
	b.u8(1)
	b.varint(1).varint(1).buf = append(b.buf, "x"...) // string table: {"x"}
	b.varint(1)                                       // 1 prototype
	b.u8(1).u8(0).u8(0).u8(0)
	b.varint(3) // ClearStackFull, GetGlobal, aux word
	b.word(OpClearStackFull, 0, 0, 0)
	b.word(OpGetGlobal, 0, 0, 0)
	b.rawWord(0) // aux word: constant index 0
	b.varint(1)  // 1 constant
	b.u8(byte(constantString))
	b.varint(1) // 1-based index into string table
	b.varint(0) // 0 children
	b.varint(0)
	b.varint(3) // one line-info entry per Code slot, aux slot included
	b.varint(0).varint(0).varint(0)
	b.u8(0)
	b.varint(0)

	a, tbl := setup()
	res, err := Read(a, tbl, b.buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Main.Code) != 3 {
		t.Fatalf("expected 3 code slots (op + aux), got %d", len(res.Main.Code))
	}
	if res.Main.Code[2].Encoded != 0 {
		t.Fatalf("expected raw aux word to be preserved, got %d", res.Main.Code[2].Encoded)
	}
}

func TestGlobalConstantEncodingBuildsDottedPath(t *testing.T) {
	b := &byteBuilder{}
	b.u8(1)
	b.varint(2).varint(1).buf = append(b.buf, "a"...)
	b.varint(1)
	b.buf = append(b.buf, "b"...)
	b.varint(1)
	b.u8(1).u8(0).u8(0).u8(0)
	b.varint(1)
	b.word(OpClearStackFull, 0, 0, 0)

	b.varint(3)
	b.u8(byte(constantString)).varint(1) // constants[0] = "a"
	b.u8(byte(constantString)).varint(2) // constants[1] = "b"

	// constants[2] = Global referencing indices 0 and 1: v=2 => idx1<<20 | idx2<<10
	w := (uint32(2) << 30) | (uint32(0) << 20) | (uint32(1) << 10)
	b.u8(byte(constantGlobal)).rawWord(w)

	b.varint(0)
	b.varint(0)
	b.varint(1)
	b.varint(0)
	b.u8(0)
	b.varint(0)

	a, tbl := setup()
	res, err := Read(a, tbl, b.buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx, ok := res.Main.Constants[2].(*ast.IndexName)
	if !ok {
		t.Fatalf("expected *ast.IndexName, got %#v", res.Main.Constants[2])
	}
	if idx.Index.String() != "b" {
		t.Fatalf("expected field name 'b', got %q", idx.Index.String())
	}
	glob, ok := idx.Expr.(*ast.GlobalRef)
	if !ok || glob.Name.String() != "a" {
		t.Fatalf("expected GlobalRef 'a', got %#v", idx.Expr)
	}
}

func TestConstantNilAndBooleanSetFlag(t *testing.T) {
	b := &byteBuilder{}
	b.u8(1)
	b.varint(0)
	b.varint(1)
	b.u8(1).u8(0).u8(0).u8(0)
	b.varint(1)
	b.word(OpClearStackFull, 0, 0, 0)

	b.varint(2)
	b.u8(byte(constantNil))
	b.u8(byte(constantBoolean)).u8(1)

	b.varint(0)
	b.varint(0)
	b.varint(1)
	b.varint(0)
	b.u8(0)
	b.varint(0)

	a, tbl := setup()
	res, err := Read(a, tbl, b.buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Flagged {
		t.Fatalf("expected Nil/Boolean constants to raise the flag")
	}
	if _, ok := res.Main.Constants[0].(*ast.ConstantNil); !ok {
		t.Fatalf("expected ConstantNil")
	}
	boolConst, ok := res.Main.Constants[1].(*ast.ConstantBool)
	if !ok || !boolConst.Value {
		t.Fatalf("expected ConstantBool(true), got %#v", res.Main.Constants[1])
	}
}

func TestHashTableConstantIsConsumedAndDiscarded(t *testing.T) {
	b := &byteBuilder{}
	b.u8(1)
	b.varint(0)
	b.varint(1)
	b.u8(1).u8(0).u8(0).u8(0)
	b.varint(1)
	b.word(OpClearStackFull, 0, 0, 0)

	b.varint(1)
	b.u8(byte(constantHashTable)).varint(2).varint(10).varint(20)

	b.varint(0)
	b.varint(0)
	b.varint(1)
	b.varint(0)
	b.u8(0)
	b.varint(0)

	a, tbl := setup()
	res, err := Read(a, tbl, b.buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Main.Constants) != 1 {
		t.Fatalf("expected the hashtable slot to still occupy a constant index")
	}
}

func TestOpcodeRemapIsInvolutionOverReachableBytes(t *testing.T) {
	for i := 0; i < int(opcodeEnd); i++ {
		wire := byte(227 * i)
		if got := Remap(wire); got != Op(i) {
			t.Fatalf("Remap(%d) = %v, want %v", wire, got, Op(i))
		}
	}
}

// Package reader implements the bytecode reader (spec.md §4.2): it undoes
// the opcode permutation, decodes the varint-heavy wire format, and
// promotes the constant pool to AST expressions eagerly so that later
// pipeline stages never see a raw constant tag.
package reader

import (
	"encoding/binary"
	"math"

	"github.com/lua-family/delua/internal/arena"
	"github.com/lua-family/delua/internal/ast"
	"github.com/lua-family/delua/internal/names"
)

// Prototype is one function prototype, fields kept in the order they are
// serialized (spec.md §3).
type Prototype struct {
	MaxRegCount byte
	ArgCount    byte
	UpvalCount  byte
	IsVararg    bool
	Code        []Instruction
	Constants   []ast.Expression
	Children    []*Prototype
	Name        string
	LineInfo    []int
	IsMain      bool

	// Args and Upvalues are populated by internal/lifter, not by this
	// package: Args once the lifter pre-binds this prototype's parameter
	// registers, Upvalues by the *enclosing* prototype's lifter as it
	// consumes this prototype's Closure capture descriptors (spec.md §3,
	// §4.3 "Closure lift").
	Args     []*ast.Local
	Upvalues []*ast.Local
}

// Result is everything the reader recovers from one bytecode stream.
type Result struct {
	Prototypes []*Prototype
	Main       *Prototype
	// Flagged reports whether any advisory condition fired while reading
	// (spec.md §5, §6): an unresolvable constant type is fatal, but the
	// conditions listed in §4.2 (Nil/Boolean constants, a negative
	// accumulated line total, a nonzero trailing byte) only raise this.
	Flagged bool
}

const wireVersion = 1

type reader struct {
	data        []byte
	pos         int
	arena       *arena.Arena
	names       *names.Table
	flagged     bool
	stringTable []string
}

// Read parses a complete bytecode stream (spec.md §4.2). AST nodes
// produced for promoted constants are allocated from a, and identifiers
// are interned into tbl.
func Read(a *arena.Arena, tbl *names.Table, bytecode []byte) (*Result, error) {
	r := &reader{data: bytecode, arena: a, names: tbl}
	return r.read()
}

func (r *reader) read() (*Result, error) {
	status, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if status == 0 {
		return nil, bytecodeError(string(r.data[r.pos:]))
	}
	if status > wireVersion {
		return nil, versionMismatch(status)
	}

	if _, err := r.readStringTable(); err != nil {
		return nil, err
	}
	strings := r.stringTable

	protoCount, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	protos := make([]*Prototype, 0, protoCount)
	for i := int32(0); i < protoCount; i++ {
		p, err := r.readPrototype(strings, protos)
		if err != nil {
			return nil, err
		}
		protos = append(protos, p)
	}

	mainIdx, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	if mainIdx < 0 || int(mainIdx) >= len(protos) {
		return nil, malformed(r.pos, "main prototype index %d out of range (have %d prototypes)", mainIdx, len(protos))
	}
	main := protos[mainIdx]
	main.IsMain = true

	return &Result{Prototypes: protos, Main: main, Flagged: r.flagged}, nil
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, malformed(r.pos, "unexpected end of stream")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// readVarint decodes a little-endian base-128 varint (spec.md §4.2). The
// accumulator is 32-bit and wraps exactly the way the source's plain
// `int` accumulator does, so an oversized/malicious varint can legitimately
// decode to a negative index — callers must range-check the result rather
// than assume it is non-negative.
func (r *reader) readVarint() (int32, error) {
	var res uint32
	shift := uint(0)
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		res |= uint32(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift > 34 {
			return 0, malformed(r.pos, "varint exceeds 5 bytes")
		}
	}
	return int32(res), nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, malformed(r.pos, "unexpected end of stream reading %d bytes", n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readWord() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readDouble() (float64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// stringTable is populated once, at the front of the stream.
func (r *reader) readStringTable() ([]string, error) {
	count, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, malformed(r.pos, "negative string table count")
	}
	out := make([]string, count)
	for i := range out {
		length, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, malformed(r.pos, "negative string length")
		}
		raw, err := r.readBytes(int(length))
		if err != nil {
			return nil, err
		}
		out[i] = r.arena.CopyString(raw)
	}
	r.stringTable = out
	return out, nil
}

func (r *reader) readPrototype(strings []string, priorProtos []*Prototype) (*Prototype, error) {
	p := &Prototype{}

	maxReg, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.MaxRegCount = maxReg

	argCount, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.ArgCount = argCount

	upvalCount, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.UpvalCount = upvalCount

	isVararg, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.IsVararg = isVararg != 0

	if err := r.readCode(p); err != nil {
		return nil, err
	}
	if err := r.readConstants(p, strings); err != nil {
		return nil, err
	}
	if err := r.readChildren(p, priorProtos); err != nil {
		return nil, err
	}
	if err := r.readName(p, strings); err != nil {
		return nil, err
	}
	if err := r.readLineInfo(p); err != nil {
		return nil, err
	}

	trailing, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if trailing != 0 {
		r.flagged = true
	}

	return p, nil
}

// readCode implements the shared instrCount/auxiliary-word loop budget:
// consuming an auxiliary word advances the loop counter an extra time,
// rather than the auxiliary words being additive on top of instrCount
// (spec.md §4.2).
func (r *reader) readCode(p *Prototype) error {
	instrCount, err := r.readVarint()
	if err != nil {
		return err
	}
	if instrCount < 0 {
		return malformed(r.pos, "negative instruction count")
	}
	code := make([]Instruction, 0, instrCount)
	studio := false
	for j := int32(0); j < instrCount; j++ {
		word, err := r.readWord()
		if err != nil {
			return err
		}
		rawOp := byte(word)
		if j == 0 && rawOp == unpermutedClearStackFull {
			studio = true
		}
		instr := decodeInstruction(word)
		if !studio {
			instr.Op = Remap(rawOp)
		}
		code = append(code, instr)

		if HasAuxiliaryWord(instr.Op) {
			j++
			if j >= instrCount {
				return malformed(r.pos, "auxiliary word runs past instruction count")
			}
			auxWord, err := r.readWord()
			if err != nil {
				return err
			}
			code = append(code, decodeInstruction(auxWord))
		}
	}
	p.Code = code
	return nil
}

type constantTag byte

const (
	constantNil constantTag = iota
	constantBoolean
	constantNumber
	constantString
	constantGlobal
	constantHashTable
)

func (r *reader) readConstants(p *Prototype, strings []string) error {
	count, err := r.readVarint()
	if err != nil {
		return err
	}
	if count < 0 {
		return malformed(r.pos, "negative constant count")
	}
	consts := make([]ast.Expression, 0, count)
	for i := int32(0); i < count; i++ {
		tagByte, err := r.readByte()
		if err != nil {
			return err
		}
		var expr ast.Expression
		switch constantTag(tagByte) {
		case constantNil:
			r.flagged = true
			expr = &ast.ConstantNil{}

		case constantBoolean:
			r.flagged = true
			b, err := r.readByte()
			if err != nil {
				return err
			}
			expr = &ast.ConstantBool{Value: b != 0}

		case constantNumber:
			v, err := r.readDouble()
			if err != nil {
				return err
			}
			expr = &ast.ConstantNumber{Value: v}

		case constantString:
			idx, err := r.readVarint()
			if err != nil {
				return err
			}
			s, err := indexString(strings, idx, r.pos)
			if err != nil {
				return err
			}
			expr = &ast.ConstantString{Value: s}

		case constantGlobal:
			expr, err = r.readGlobalConstant(consts)
			if err != nil {
				return err
			}

		case constantHashTable:
			hashSize, err := r.readVarint()
			if err != nil {
				return err
			}
			if hashSize < 0 {
				return malformed(r.pos, "negative hashtable size")
			}
			for j := int32(0); j < hashSize; j++ {
				if _, err := r.readVarint(); err != nil {
					return err
				}
			}
			// Discarded and unused by every downstream stage; the source
			// leaves this slot's payload unset, so a placeholder nil
			// keeps Constants and its index space aligned without
			// introducing a nil expression pointer.
			expr = &ast.ConstantNil{}

		default:
			return malformed(r.pos, "unknown constant tag %d", tagByte)
		}

		consts = append(consts, expr)
	}
	p.Constants = consts
	return nil
}

// readGlobalConstant decodes the 3-index dotted-path encoding (spec.md
// §4.2): idx1/idx2/idx3 each name a *prior* entry in this same
// prototype's constant pool, and must be ConstantString.
func (r *reader) readGlobalConstant(consts []ast.Expression) (ast.Expression, error) {
	w, err := r.readWord()
	if err != nil {
		return nil, err
	}
	v := w >> 30

	idx1 := int32(-1)
	if v > 0 {
		idx1 = int32((w >> 20) & 0x3FF)
	}
	idx2 := int32(-1)
	if v > 1 {
		idx2 = int32((w >> 10) & 0x3FF)
	}
	idx3 := int32(-1)
	if v > 2 {
		idx3 = int32(w & 0x3FF)
	}

	name1, err := r.constantStringAt(consts, idx1)
	if err != nil {
		return nil, err
	}
	var expr ast.Expression = &ast.GlobalRef{Name: r.names.GetOrAdd(name1)}

	if idx2 >= 0 {
		name2, err := r.constantStringAt(consts, idx2)
		if err != nil {
			return nil, err
		}
		expr = &ast.IndexName{Expr: expr, Index: r.names.GetOrAdd(name2)}
	}
	if idx3 >= 0 {
		name3, err := r.constantStringAt(consts, idx3)
		if err != nil {
			return nil, err
		}
		expr = &ast.IndexName{Expr: expr, Index: r.names.GetOrAdd(name3)}
	}
	return expr, nil
}

func (r *reader) constantStringAt(consts []ast.Expression, idx int32) (string, error) {
	if idx < 0 || int(idx) >= len(consts) {
		return "", malformed(r.pos, "global constant index %d out of range (have %d)", idx, len(consts))
	}
	s, ok := consts[idx].(*ast.ConstantString)
	if !ok {
		return "", malformed(r.pos, "global constant index %d does not name a string constant", idx)
	}
	return s.Value, nil
}

func indexString(table []string, idx1based int32, pos int) (string, error) {
	if idx1based <= 0 || int(idx1based) > len(table) {
		return "", malformed(pos, "string index %d out of range (have %d)", idx1based, len(table))
	}
	return table[idx1based-1], nil
}

func (r *reader) readChildren(p *Prototype, priorProtos []*Prototype) error {
	count, err := r.readVarint()
	if err != nil {
		return err
	}
	if count < 0 {
		return malformed(r.pos, "negative closure count")
	}
	children := make([]*Prototype, 0, count)
	for i := int32(0); i < count; i++ {
		idx, err := r.readVarint()
		if err != nil {
			return err
		}
		if idx < 0 || int(idx) >= len(priorProtos) {
			return malformed(r.pos, "child prototype index %d out of range (have %d prior prototypes)", idx, len(priorProtos))
		}
		children = append(children, priorProtos[idx])
	}
	p.Children = children
	return nil
}

func (r *reader) readName(p *Prototype, strings []string) error {
	idx, err := r.readVarint()
	if err != nil {
		return err
	}
	if idx != 0 {
		name, err := indexString(strings, idx, r.pos)
		if err != nil {
			return err
		}
		p.Name = name
	}
	return nil
}

func (r *reader) readLineInfo(p *Prototype) error {
	count, err := r.readVarint()
	if err != nil {
		return err
	}
	if count < 0 {
		return malformed(r.pos, "negative line info count")
	}
	lines := make([]int, count)
	last := int32(0)
	for i := range lines {
		delta, err := r.readVarint()
		if err != nil {
			return err
		}
		last += delta
		lines[i] = int(last)
	}
	if last < 0 {
		r.flagged = true
	}
	p.LineInfo = lines
	return nil
}

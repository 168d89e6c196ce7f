// Package lifter implements the per-prototype register-machine interpreter
// that turns a reader.Prototype's instruction stream into an AST block
// (spec.md §4.3): it resolves closures' upvalue captures, tracks tail-call
// and self-call temporaries, and detects loop and conditional regions by
// watching where backward jumps and Test/NotTest frames close.
package lifter

import (
	"strconv"

	"github.com/lua-family/delua/internal/arena"
	"github.com/lua-family/delua/internal/ast"
	"github.com/lua-family/delua/internal/names"
	"github.com/lua-family/delua/internal/optimizer"
	"github.com/lua-family/delua/internal/reader"
)

// Lifter lifts every prototype of one decompilation job. A single instance
// is shared across a closure's parent and all its descendants so that
// synthetic-local numbering (var<N>) stays monotonic for the whole job —
// the same counter the optimizer's split pass draws fresh locals from.
type Lifter struct {
	arena   *arena.Arena
	names   *names.Table
	counter int
	flagged bool
}

// New returns a Lifter that allocates names into tbl (backed by a).
func New(a *arena.Arena, tbl *names.Table) *Lifter {
	return &Lifter{arena: a, names: tbl}
}

// Flagged reports whether any advisory condition fired while lifting.
func (l *Lifter) Flagged() bool { return l.flagged }

func (l *Lifter) setFlagged() { l.flagged = true }

func (l *Lifter) newLocal(loc ast.Location) *ast.Local {
	name := "var" + strconv.Itoa(l.counter)
	l.counter++
	return &ast.Local{Name: l.names.GetOrAdd(name), Location: loc}
}

// Lift recovers p's body as a statement block, recursing into every child
// prototype reachable through a Closure opcode. The returned block's
// Location spans p's first to last recorded line, matching the prototype's
// own line table rather than a synthesized position.
func (l *Lifter) Lift(p *reader.Prototype) (*ast.Block, error) {
	return l.liftPrototype(p)
}

// controlFlow is one pending Test/NotTest frame, closed either by the
// LoopJump that targets it or by the generic end-of-instruction check.
// Frames close in the order they were opened: a FIFO queue, not a stack —
// nested Test/NotTest regions in this bytecode format never interleave in
// a way that would require innermost-first closing.
type controlFlow struct {
	codeStart int
	bodyStart int
	codeEnd   int
	local     *ast.Local
	isTest    bool
	loc       ast.Location
}

// frame is the register-machine state for one prototype invocation.
type frame struct {
	regs map[byte]*ast.Local

	isTail   bool
	tailBase byte
	tailExpr ast.Expression

	self     bool
	selfExpr ast.Expression

	pending []*controlFlow
}

// readReg resolves the Local bound at reg, synthesizing one and raising the
// flag if reg has never been written — the register state at this point is
// something the lifter could not explain (spec.md §3 "Synthetic locals").
func (l *Lifter) readReg(f *frame, reg byte, loc ast.Location) *ast.Local {
	if local, ok := f.regs[reg]; ok {
		return local
	}
	local := l.newLocal(loc)
	f.regs[reg] = local
	l.setFlagged()
	return local
}

// writeReg resolves the Local bound at reg for a write, synthesizing one
// with no flag if this is the register's first use — a target register
// index simply means "this is the spelling that register now has".
func (l *Lifter) writeReg(f *frame, reg byte, loc ast.Location) (local *ast.Local, created bool) {
	if local, ok := f.regs[reg]; ok {
		return local, false
	}
	local = l.newLocal(loc)
	f.regs[reg] = local
	return local, true
}

// mustReadReg resolves a register that the instruction set requires to
// already be bound (Call's callee/arguments, Return's values): unlike
// readReg, an unbound register here is not explainable by lazy synthesis
// and is an asserted invariant violation (spec.md §7, §8).
func mustReadReg(f *frame, reg byte) (*ast.Local, error) {
	local, ok := f.regs[reg]
	if !ok {
		return nil, fail("missing Local for register %d", reg)
	}
	return local, nil
}

func deleteReg(f *frame, reg byte) { delete(f.regs, reg) }

func localRef(loc ast.Location, local *ast.Local, upvalue bool) *ast.LocalRef {
	lr := &ast.LocalRef{Local: local, Upvalue: upvalue}
	lr.SetLoc(loc)
	return lr
}

// assignOrLocal builds the statement that binds values to local: a fresh
// LocalStatement if this is the register's first binding, otherwise an
// Assign to the existing Local (spec.md's `generateLocalAssign`).
func assignOrLocal(loc ast.Location, local *ast.Local, created bool, values []ast.Expression) ast.Statement {
	if created {
		ls := &ast.LocalStatement{Vars: []*ast.Local{local}, Values: values}
		ls.SetLoc(loc)
		return ls
	}
	as := &ast.Assign{Lvalues: []ast.Expression{localRef(loc, local, false)}, Rvalues: values}
	as.SetLoc(loc)
	return as
}

type locatable interface{ SetLoc(ast.Location) }

func at[T locatable](n T, loc ast.Location) T {
	n.SetLoc(loc)
	return n
}

func (l *Lifter) liftPrototype(p *reader.Prototype) (*ast.Block, error) {
	f := &frame{regs: make(map[byte]*ast.Local)}

	for i := byte(0); i < p.ArgCount; i++ {
		local := &ast.Local{Name: l.names.GetOrAdd("a" + strconv.Itoa(int(i)))}
		f.regs[i] = local
		p.Args = append(p.Args, local)
	}

	var body []ast.Statement
	bodyAt := make([]int, len(p.Code))

	for i := 0; i < len(p.Code); i++ {
		instr := p.Code[i]
		line := 0
		if i < len(p.LineInfo) {
			line = p.LineInfo[i]
		}
		loc := ast.At(line)
		bodyAt[i] = len(body)

		switch instr.Op {
		case reader.OpNop:
			l.setFlagged()

		case reader.OpSaveCode, reader.OpSaveRegisters:
			// Consumed silently; no AST effect (spec.md §4.3).

		case reader.OpLoadNil:
			local, created := l.writeReg(f, instr.A, loc)
			body = append(body, assignOrLocal(loc, local, created,
				[]ast.Expression{at(&ast.ConstantNil{}, loc)}))

		case reader.OpLoadBool:
			local, created := l.writeReg(f, instr.A, loc)
			body = append(body, assignOrLocal(loc, local, created,
				[]ast.Expression{at(&ast.ConstantBool{Value: instr.B != 0}, loc)}))

		case reader.OpLoadShort:
			local, created := l.writeReg(f, instr.A, loc)
			body = append(body, assignOrLocal(loc, local, created,
				[]ast.Expression{at(&ast.ConstantNumber{Value: float64(instr.SBx)}, loc)}))

		case reader.OpLoadConst:
			local, created := l.writeReg(f, instr.A, loc)
			expr, err := constantAt(p, int(instr.Bx))
			if err != nil {
				return nil, err
			}
			body = append(body, assignOrLocal(loc, local, created, []ast.Expression{expr}))

		case reader.OpMove:
			toLocal, toCreated := l.writeReg(f, instr.A, loc)
			var expr ast.Expression
			if f.isTail && instr.B >= f.tailBase {
				if instr.B == f.tailBase {
					expr = f.tailExpr
					f.isTail = false
				} else {
					expr = at(&ast.ConstantNil{}, loc)
				}
			} else {
				fromLocal := l.readReg(f, instr.B, loc)
				expr = localRef(loc, fromLocal, false)
			}
			body = append(body, assignOrLocal(loc, toLocal, toCreated, []ast.Expression{expr}))

		case reader.OpGetGlobal:
			local, created := l.writeReg(f, instr.A, loc)
			name, err := l.auxGlobalName(p, &i)
			if err != nil {
				return nil, err
			}
			body = append(body, assignOrLocal(loc, local, created,
				[]ast.Expression{at(&ast.GlobalRef{Name: name}, loc)}))

		case reader.OpSetGlobal:
			valueLocal := l.readReg(f, instr.A, loc)
			name, err := l.auxGlobalName(p, &i)
			if err != nil {
				return nil, err
			}
			as := &ast.Assign{
				Lvalues: []ast.Expression{at(&ast.GlobalRef{Name: name}, loc)},
				Rvalues: []ast.Expression{localRef(loc, valueLocal, false)},
			}
			as.SetLoc(loc)
			body = append(body, as)

		case reader.OpGetUpvalue:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			up, err := upvalueAt(p, instr.B)
			if err != nil {
				return nil, err
			}
			body = append(body, assignOrLocal(loc, resLocal, resCreated,
				[]ast.Expression{localRef(loc, up, true)}))

		case reader.OpSetUpvalue:
			valueLocal := l.readReg(f, instr.A, loc)
			up, err := upvalueAt(p, instr.B)
			if err != nil {
				return nil, err
			}
			body = append(body, assignOrLocal(loc, up, false,
				[]ast.Expression{localRef(loc, valueLocal, true)}))

		case reader.OpGetGlobalConst:
			local, created := l.writeReg(f, instr.A, loc)
			expr, err := constantAt(p, int(instr.Bx))
			if err != nil {
				return nil, err
			}
			body = append(body, assignOrLocal(loc, local, created, []ast.Expression{expr}))
			i++ // aux is a hash check the lifter does not verify

		case reader.OpGetTableIndex:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			tableLocal := l.readReg(f, instr.B, loc)
			indexLocal := l.readReg(f, instr.C, loc)
			idx := at(&ast.IndexExpr{
				Expr:  localRef(loc, tableLocal, false),
				Index: localRef(loc, indexLocal, false),
			}, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{idx}))

		case reader.OpSetTableIndex:
			valueLocal := l.readReg(f, instr.A, loc)
			tableLocal := l.readReg(f, instr.B, loc)
			indexLocal := l.readReg(f, instr.C, loc)
			idx := at(&ast.IndexExpr{
				Expr:  localRef(loc, tableLocal, false),
				Index: localRef(loc, indexLocal, false),
			}, loc)
			as := &ast.Assign{
				Lvalues: []ast.Expression{idx},
				Rvalues: []ast.Expression{localRef(loc, valueLocal, false)},
			}
			as.SetLoc(loc)
			body = append(body, as)

		case reader.OpGetTableIndexConstant:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			tableLocal := l.readReg(f, instr.B, loc)
			index, err := l.auxConstant(p, &i)
			if err != nil {
				return nil, err
			}
			idx := at(&ast.IndexExpr{Expr: localRef(loc, tableLocal, false), Index: index}, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{idx}))

		case reader.OpSetTableIndexConstant:
			valueLocal := l.readReg(f, instr.A, loc)
			tableLocal := l.readReg(f, instr.B, loc)
			index, err := l.auxConstant(p, &i)
			if err != nil {
				return nil, err
			}
			idx := at(&ast.IndexExpr{Expr: localRef(loc, tableLocal, false), Index: index}, loc)
			as := &ast.Assign{
				Lvalues: []ast.Expression{idx},
				Rvalues: []ast.Expression{localRef(loc, valueLocal, false)},
			}
			as.SetLoc(loc)
			body = append(body, as)

		case reader.OpGetTableIndexByte:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			tableLocal := l.readReg(f, instr.B, loc)
			index := at(&ast.ConstantNumber{Value: float64(instr.C) + 1}, loc)
			idx := at(&ast.IndexExpr{Expr: localRef(loc, tableLocal, false), Index: index}, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{idx}))

		case reader.OpSetTableIndexByte:
			valueLocal := l.readReg(f, instr.A, loc)
			tableLocal := l.readReg(f, instr.B, loc)
			index := at(&ast.ConstantNumber{Value: float64(instr.C) + 1}, loc)
			idx := at(&ast.IndexExpr{Expr: localRef(loc, tableLocal, false), Index: index}, loc)
			as := &ast.Assign{
				Lvalues: []ast.Expression{idx},
				Rvalues: []ast.Expression{localRef(loc, valueLocal, false)},
			}
			as.SetLoc(loc)
			body = append(body, as)

		case reader.OpClosure:
			stat, err := l.liftClosure(p, f, instr, &i, loc)
			if err != nil {
				return nil, err
			}
			body = append(body, stat)

		case reader.OpSelf:
			if err := l.liftSelf(p, f, instr, &i, loc); err != nil {
				return nil, err
			}

		case reader.OpCall:
			stat, err := l.liftCall(f, instr, loc)
			if err != nil {
				return nil, err
			}
			if stat != nil {
				body = append(body, stat)
			}

		case reader.OpReturn:
			stat, err := l.liftReturn(p, f, instr, i, loc)
			if err != nil {
				return nil, err
			}
			if stat != nil {
				body = append(body, stat)
			}

		case reader.OpJump:
			l.setFlagged()

		case reader.OpLoopJump:
			body = l.closeLoopJump(f, body, bodyAt, instr, i, loc)

		case reader.OpTest, reader.OpNotTest:
			local := l.readReg(f, instr.A, loc)
			f.pending = append(f.pending, &controlFlow{
				codeStart: i,
				bodyStart: len(body),
				codeEnd:   i + int(instr.SBx),
				local:     local,
				isTest:    instr.Op == reader.OpTest,
				loc:       loc,
			})

		case reader.OpEqual, reader.OpLesserOrEqual, reader.OpLesserThan,
			reader.OpNotEqual, reader.OpGreaterThan, reader.OpGreaterOrEqual:
			l.setFlagged()
			i++

		case reader.OpAdd, reader.OpSub, reader.OpMul, reader.OpDiv, reader.OpMod, reader.OpPow:
			left := l.readReg(f, instr.B, loc)
			right := l.readReg(f, instr.C, loc)
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			bin := at(&ast.Binary{
				Op:    ast.BinaryOp(instr.Op - reader.OpAdd),
				Left:  localRef(loc, left, false),
				Right: localRef(loc, right, false),
			}, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{bin}))

		case reader.OpAddByte, reader.OpSubByte, reader.OpMulByte,
			reader.OpDivByte, reader.OpModByte, reader.OpPowByte:
			left := l.readReg(f, instr.B, loc)
			right, err := constantAt(p, int(instr.C))
			if err != nil {
				return nil, err
			}
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			bin := at(&ast.Binary{
				Op:    ast.BinaryOp(instr.Op - reader.OpAddByte),
				Left:  localRef(loc, left, false),
				Right: right,
			}, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{bin}))

		case reader.OpOr, reader.OpAnd, reader.OpOrByte, reader.OpAndByte:
			l.setFlagged()

		case reader.OpConcat:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			start := l.readReg(f, instr.B, loc)
			expr := ast.Expression(localRef(loc, start, false))
			for j := instr.B + 1; j <= instr.C; j++ {
				rhs := l.readReg(f, j, loc)
				expr = at(&ast.Binary{Op: ast.BinaryConcat, Left: expr, Right: localRef(loc, rhs, false)}, loc)
			}
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{expr}))

		case reader.OpNot, reader.OpUnaryMinus, reader.OpLen:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			operand := l.readReg(f, instr.B, loc)
			un := at(&ast.Unary{
				Op:   ast.UnaryOp(instr.Op - reader.OpNot),
				Expr: localRef(loc, operand, false),
			}, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated, []ast.Expression{un}))

		case reader.OpNewTable:
			i++ // size-hint aux, discarded
			fallthrough
		case reader.OpNewTableConst:
			resLocal, resCreated := l.writeReg(f, instr.A, loc)
			body = append(body, assignOrLocal(loc, resLocal, resCreated,
				[]ast.Expression{at(&ast.Table{}, loc)}))

		case reader.OpSetList:
			i++ // consumed and ignored; positional init falls back to SetTableIndex*

		case reader.OpForPrep, reader.OpForLoop, reader.OpLoopJumpIPairs,
			reader.OpLoopJumpNext, reader.OpTForLoopIPairs, reader.OpTForLoopNext,
			reader.OpFarJump, reader.OpBuiltinCall:
			l.setFlagged()

		case reader.OpTForLoop:
			l.setFlagged()
			i++ // declared aux-bearing; skip it rather than reinterpret it as code

		case reader.OpLoadConstLarge:
			l.setFlagged()
			i++

		case reader.OpLoadVarargs:
			stat, err := l.liftLoadVarargs(f, instr, loc)
			if err != nil {
				return nil, err
			}
			if stat != nil {
				body = append(body, stat)
			}

		case reader.OpClearStack, reader.OpClearStackFull:
			// No-op.

		default:
		}

		if len(f.pending) > 0 && f.pending[0].codeEnd == i {
			cf := f.pending[0]
			f.pending = f.pending[1:]

			var inner []ast.Statement
			if cf.bodyStart <= len(body) {
				inner = append([]ast.Statement(nil), body[cf.bodyStart:]...)
				body = body[:cf.bodyStart]
			}
			inner = optimizer.Optimize(inner, l.newLocal)

			cond := ast.Expression(localRef(cf.loc, cf.local, false))
			if cf.isTest {
				cond = at(&ast.Unary{Op: ast.UnaryNot, Expr: cond}, cf.loc)
			}
			ifStat := at(&ast.If{Condition: cond, Then: ast.NewBlock(cf.loc, inner)}, cf.loc)
			body = append(body, ifStat)
		}
	}

	if f.isTail {
		return nil, fail("isTail still set at end of prototype")
	}

	body = optimizer.Optimize(body, l.newLocal)

	var blockLoc ast.Location
	if len(p.LineInfo) > 0 {
		blockLoc = ast.Location{
			Begin: ast.Position{Line: p.LineInfo[0]},
			End:   ast.Position{Line: p.LineInfo[len(p.LineInfo)-1]},
		}
	}
	return ast.NewBlock(blockLoc, body), nil
}

func constantAt(p *reader.Prototype, idx int) (ast.Expression, error) {
	if idx < 0 || idx >= len(p.Constants) {
		return nil, fail("constant index %d out of range (have %d)", idx, len(p.Constants))
	}
	return p.Constants[idx], nil
}

func upvalueAt(p *reader.Prototype, idx byte) (*ast.Local, error) {
	if int(idx) >= len(p.Upvalues) {
		return nil, fail("upvalue index %d out of range (have %d)", idx, len(p.Upvalues))
	}
	return p.Upvalues[idx], nil
}

// auxConstant advances *i past the auxiliary word and returns the constant
// it names, for the opcodes whose aux slot is a raw constant-pool index.
func (l *Lifter) auxConstant(p *reader.Prototype, i *int) (ast.Expression, error) {
	*i++
	if *i >= len(p.Code) {
		return nil, fail("auxiliary word runs past code end")
	}
	return constantAt(p, int(p.Code[*i].Encoded))
}

func (l *Lifter) auxGlobalName(p *reader.Prototype, i *int) (*names.Name, error) {
	expr, err := l.auxConstant(p, i)
	if err != nil {
		return nil, err
	}
	str, ok := expr.(*ast.ConstantString)
	if !ok {
		return nil, fail("global name constant is not a string")
	}
	return l.names.GetOrAdd(str.Value), nil
}

// liftClosure implements the Closure opcode and its trailing capture
// descriptors (spec.md §4.3 "Closure lift").
func (l *Lifter) liftClosure(p *reader.Prototype, f *frame, instr reader.Instruction, i *int, loc ast.Location) (ast.Statement, error) {
	resLocal, resCreated := l.writeReg(f, instr.A, loc)

	if int(instr.Bx) >= len(p.Children) {
		return nil, fail("closure child index %d out of range", instr.Bx)
	}
	child := p.Children[instr.Bx]

	useLocalFunction := false
	for j := byte(0); j < child.UpvalCount; j++ {
		*i++
		if *i >= len(p.Code) {
			return nil, fail("closure capture descriptor runs past code end")
		}
		upInstr := p.Code[*i]
		switch upInstr.Op {
		case reader.OpMove:
			upLocal := l.readReg(f, upInstr.B, loc)
			if upLocal == resLocal {
				useLocalFunction = true
			}
			child.Upvalues = append(child.Upvalues, upLocal)
		case reader.OpGetUpvalue:
			up, err := upvalueAt(p, upInstr.B)
			if err != nil {
				return nil, err
			}
			child.Upvalues = append(child.Upvalues, up)
		default:
			l.setFlagged()
		}
	}

	childBlock, err := l.liftPrototype(child)
	if err != nil {
		return nil, err
	}

	fn := at(&ast.Function{Args: child.Args, Vararg: child.IsVararg, Body: childBlock}, loc)

	if useLocalFunction && resCreated {
		return at(&ast.LocalFunction{Var: resLocal, Body: fn}, loc), nil
	}
	return assignOrLocal(loc, resLocal, resCreated, []ast.Expression{fn}), nil
}

// liftSelf implements Self: it stashes an IndexName receiver expression for
// the Call that must immediately follow, and emits no statement of its own.
func (l *Lifter) liftSelf(p *reader.Prototype, f *frame, instr reader.Instruction, i *int, loc ast.Location) error {
	f.self = true
	// Registers the write to R(A) even though it is never read again,
	// matching the register-state model a following instruction would see.
	l.writeReg(f, instr.A, loc)

	tableLocal := l.readReg(f, instr.B, loc)
	index, err := l.auxConstant(p, i)
	if err != nil {
		return err
	}
	strConst, ok := index.(*ast.ConstantString)
	if !ok {
		return fail("self field name is not a string constant")
	}
	idxName := at(&ast.IndexName{
		Expr:  localRef(loc, tableLocal, false),
		Index: l.names.GetOrAdd(strConst.Value),
	}, loc)
	f.selfExpr = idxName
	return nil
}

func (l *Lifter) liftCall(f *frame, instr reader.Instruction, loc ast.Location) (ast.Statement, error) {
	callBase := instr.A

	var funcExpr ast.Expression
	if f.self {
		funcExpr = f.selfExpr
	} else {
		funcLocal, err := mustReadReg(f, callBase)
		if err != nil {
			return nil, err
		}
		funcExpr = localRef(loc, funcLocal, false)
	}
	deleteReg(f, callBase)

	selfOffset := byte(0)
	if f.self {
		selfOffset = 1
	}

	var args []ast.Expression
	if instr.B != 0 {
		for j := byte(1) + selfOffset; j < instr.B; j++ {
			reg := callBase + j
			local, err := mustReadReg(f, reg)
			if err != nil {
				return nil, err
			}
			args = append(args, localRef(loc, local, false))
			deleteReg(f, reg)
		}
	} else {
		for j := callBase + 1 + selfOffset; j < f.tailBase; j++ {
			local, err := mustReadReg(f, j)
			if err != nil {
				return nil, err
			}
			args = append(args, localRef(loc, local, false))
			deleteReg(f, j)
		}
		args = append(args, f.tailExpr)
		f.isTail = false
	}

	call := at(&ast.Call{Func: funcExpr, Args: args, Self: f.self}, loc)
	f.self = false

	switch {
	case instr.C == 0:
		f.isTail = true
		f.tailBase = callBase
		f.tailExpr = call
		return nil, nil
	case instr.C == 1:
		return at(&ast.ExprStatement{Expr: call}, loc), nil
	default:
		locals := make([]*ast.Local, 0, instr.C-1)
		for j := byte(0); j < instr.C-1; j++ {
			local, _ := l.writeReg(f, callBase+j, loc)
			locals = append(locals, local)
		}
		return at(&ast.LocalStatement{Vars: locals, Values: []ast.Expression{call}}, loc), nil
	}
}

func (l *Lifter) liftReturn(p *reader.Prototype, f *frame, instr reader.Instruction, i int, loc ast.Location) (ast.Statement, error) {
	if instr.B == 1 && (p.IsMain || i == len(p.Code)-1) {
		return nil, nil
	}

	var values []ast.Expression
	if instr.B == 0 {
		if !f.isTail {
			return nil, fail("return expects a tail expression")
		}
		for j := instr.A; j < f.tailBase; j++ {
			local, err := mustReadReg(f, j)
			if err != nil {
				return nil, err
			}
			values = append(values, localRef(loc, local, false))
			deleteReg(f, j)
		}
		values = append(values, f.tailExpr)
		f.isTail = false
	} else {
		for j := byte(0); j < instr.B-1; j++ {
			reg := instr.A + j
			local, err := mustReadReg(f, reg)
			if err != nil {
				return nil, err
			}
			values = append(values, localRef(loc, local, false))
			deleteReg(f, reg)
		}
	}

	return at(&ast.Return{Values: values}, loc), nil
}

func (l *Lifter) liftLoadVarargs(f *frame, instr reader.Instruction, loc ast.Location) (ast.Statement, error) {
	va := at(&ast.Varargs{}, loc)

	if instr.B == 0 {
		f.isTail = true
		f.tailBase = instr.A
		f.tailExpr = va
		return nil, nil
	}

	locals := make([]*ast.Local, 0, instr.B-1)
	allCreated := true
	for j := byte(0); j < instr.B-1; j++ {
		local, created := l.writeReg(f, instr.A+j, loc)
		locals = append(locals, local)
		if j == 0 {
			allCreated = created
		} else if created != allCreated {
			return nil, fail("inconsistent register state in LoadVarargs")
		}
	}
	if !allCreated {
		return nil, fail("LoadVarargs result registers were already bound")
	}
	return at(&ast.LocalStatement{Vars: locals, Values: []ast.Expression{va}}, loc), nil
}

// closeLoopJump implements LoopJump's backward-jump-to-While construction,
// including its own FIFO check against a pending Test/NotTest frame that
// ends exactly here (spec.md §4.3 "LoopJump").
func (l *Lifter) closeLoopJump(f *frame, body []ast.Statement, bodyAt []int, instr reader.Instruction, i int, loc ast.Location) []ast.Statement {
	target := i + int(instr.SBx)
	bodyStart := 0
	if target >= 0 && target < len(bodyAt) {
		bodyStart = bodyAt[target]
	} else {
		l.setFlagged()
	}

	cond := ast.Expression(at(&ast.ConstantBool{Value: true}, loc))
	if len(f.pending) > 0 && f.pending[0].codeEnd == i {
		cf := f.pending[0]
		f.pending = f.pending[1:]
		cond = localRef(cf.loc, cf.local, false)
		bodyStart = cf.bodyStart
	}

	if bodyStart > len(body) {
		bodyStart = len(body)
	}
	inner := append([]ast.Statement(nil), body[bodyStart:]...)
	body = body[:bodyStart]
	inner = optimizer.Optimize(inner, l.newLocal)

	wh := at(&ast.While{Condition: cond, Body: ast.NewBlock(loc, inner)}, loc)
	return append(body, wh)
}

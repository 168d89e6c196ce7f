// Package optimizer implements the two-pass block optimizer described in
// spec.md §4.4: it splits a register-reused synthetic local into distinct
// lexical bindings, then inlines any binding left with exactly one
// remaining reference. Both passes run bottom-up, once per lifted block,
// before the lifter wraps that block into its parent statement.
package optimizer

import "github.com/lua-family/delua/internal/ast"

// Optimize runs both passes over body and returns the resulting statement
// slice. newLocal mints a fresh synthetic Local for Pass 1's split
// bindings; the lifter passes in a closure over its own per-job counter so
// split-generated locals share the same `var<N>` numbering as every other
// synthetic local (spec.md §4.3, §9 "Synthetic local counter").
func Optimize(body []ast.Statement, newLocal func(ast.Location) *ast.Local) []ast.Statement {
	body = splitPass(body, newLocal)
	body = inlinePass(body)
	return body
}

// collectRefs records, for each Local, every statement whose expression
// tree contains a reference to it, in traversal order. Unlike the
// substitution walk below, this descends everywhere — including into
// nested function bodies and table constructors — because a Local shared
// with a closure via upvalue capture is the *same* Local pointer, and
// under-counting its uses there would make Pass 2 inline a value that is
// still read later through the closure.
func collectRefs(body []ast.Statement) map[*ast.Local][]ast.Statement {
	c := &collector{refs: make(map[*ast.Local][]ast.Statement)}
	for _, s := range body {
		ast.Walk(c, s)
	}
	return c.refs
}

type collector struct {
	ctx  ast.Statement
	refs map[*ast.Local][]ast.Statement
}

func (c *collector) Visit(n ast.Node) ast.Visitor {
	if stmt, ok := n.(ast.Statement); ok {
		c.ctx = stmt
	}
	if lr, ok := n.(*ast.LocalRef); ok {
		c.refs[lr.Local] = append(c.refs[lr.Local], c.ctx)
	}
	return c
}

// splitPass rewrites a second (or later) assignment to a Local that was
// already read or reassigned since its `local x = ...` declaration into a
// fresh `local x' = ...` binding, redirecting every subsequent reference
// to x within body to x' instead. This mirrors Decompiler.cpp's
// candidate-scan state machine exactly: a Local is split only where a
// tracked reference sequence shows a read (or an intervening local
// declaration) immediately followed by a write back to the same Local,
// not merely "any second assignment".
func splitPass(body []ast.Statement, newLocal func(ast.Location) *ast.Local) []ast.Statement {
	refs := collectRefs(body)
	toSplit := make(map[*ast.Assign]bool)

	for _, s := range body {
		localStat, ok := s.(*ast.LocalStatement)
		if !ok || len(localStat.Vars) != 1 {
			continue
		}
		local := localStat.Vars[0]
		info := refs[local]
		if len(info) <= 1 {
			continue
		}

		lastAssign := false
		for _, ref := range info {
			assignRef, isAssign := ref.(*ast.Assign)
			_, isLocalStat := ref.(*ast.LocalStatement)
			switch {
			case lastAssign && isAssign:
				for _, v := range assignRef.Lvalues {
					if lr, ok := v.(*ast.LocalRef); ok && lr.Local == local {
						toSplit[assignRef] = true
						break
					}
				}
				lastAssign = false
			case isAssign:
				lastAssign = true
				for _, v := range assignRef.Lvalues {
					if lr, ok := v.(*ast.LocalRef); ok && lr.Local == local {
						lastAssign = false
					}
				}
			case isLocalStat:
				lastAssign = true
			default:
				lastAssign = false
			}
		}
	}

	if len(toSplit) == 0 {
		return body
	}

	type substitution struct {
		find    *ast.Local
		replace ast.Expression
	}
	var subs []substitution

	out := make([]ast.Statement, len(body))
	copy(out, body)
	for i, s := range out {
		for _, sub := range subs {
			substituteStmt(s, sub.find, sub.replace)
		}

		assignStat, ok := s.(*ast.Assign)
		if !ok || !toSplit[assignStat] || len(assignStat.Lvalues) == 0 {
			continue
		}
		lr, ok := assignStat.Lvalues[0].(*ast.LocalRef)
		if !ok {
			continue
		}

		loc := assignStat.Loc()
		fresh := newLocal(loc)
		replacement := &ast.LocalRef{Local: fresh}
		replacement.SetLoc(loc)
		subs = append(subs, substitution{find: lr.Local, replace: replacement})

		split := &ast.LocalStatement{Vars: []*ast.Local{fresh}, Values: assignStat.Rvalues}
		split.SetLoc(loc)
		out[i] = split
	}
	return out
}

// inlinePass removes any `local x = e` whose sole remaining reference is
// not itself an assignment target, substituting e directly at that
// reference and dropping the binding statement.
func inlinePass(body []ast.Statement) []ast.Statement {
	refs := collectRefs(body)

	out := body[:0:0]
	for _, s := range body {
		if !inlineStatement(s, refs) {
			out = append(out, s)
		}
	}
	return out
}

// inlineStatement reports whether s is a LocalStatement every one of whose
// vars was successfully inlined (so s itself should be dropped).
func inlineStatement(s ast.Statement, refs map[*ast.Local][]ast.Statement) bool {
	localStat, ok := s.(*ast.LocalStatement)
	if !ok || len(localStat.Values) == 0 {
		return false
	}

	lastVal := localStat.Values[len(localStat.Values)-1]
	isTailResult := isTailProducing(lastVal)
	if isTailResult && len(localStat.Vars) > 1 {
		return false
	}

	optimized := 0
	for i, local := range localStat.Vars {
		if i >= len(localStat.Values) {
			continue
		}
		info := refs[local]
		if len(info) != 1 {
			continue
		}
		refStat := info[0]
		if assignStat, ok := refStat.(*ast.Assign); ok && assignsTo(assignStat, local) {
			continue
		}
		substituteStmt(refStat, local, localStat.Values[i])
		if len(collectRefs([]ast.Statement{refStat})[local]) > 0 {
			continue
		}
		optimized++
	}
	return optimized == len(localStat.Vars)
}

func isTailProducing(e ast.Expression) bool {
	switch e.(type) {
	case *ast.Call, *ast.Varargs:
		return true
	default:
		return false
	}
}

func assignsTo(a *ast.Assign, local *ast.Local) bool {
	for _, v := range a.Lvalues {
		if lr, ok := v.(*ast.LocalRef); ok && lr.Local == local {
			return true
		}
	}
	return false
}

// substituteStmt and substituteExpr implement the bounded substitution
// visitor from spec.md §4.4: it walks expressions reachable from If/While
// conditions, Return/ExprStatement/Local-init values, and Assign LHS/RHS,
// but does not descend into nested function bodies, table constructors,
// or For/ForIn/Repeat bodies — those boundaries can trap a substitution,
// in which case inlineStatement keeps the binding, which is accepted as
// the cost of a one-pass optimizer.
func substituteStmt(s ast.Statement, find *ast.Local, replace ast.Expression) {
	switch st := s.(type) {
	case *ast.If:
		st.Condition = substituteExpr(st.Condition, find, replace)
		substituteBlock(st.Then, find, replace)
		for i := range st.ElseIfs {
			st.ElseIfs[i].Condition = substituteExpr(st.ElseIfs[i].Condition, find, replace)
			substituteBlock(st.ElseIfs[i].Then, find, replace)
		}
		if st.Else != nil {
			substituteBlock(st.Else, find, replace)
		}
	case *ast.While:
		st.Condition = substituteExpr(st.Condition, find, replace)
		substituteBlock(st.Body, find, replace)
	case *ast.Return:
		for i := range st.Values {
			st.Values[i] = substituteExpr(st.Values[i], find, replace)
		}
	case *ast.ExprStatement:
		st.Expr = substituteExpr(st.Expr, find, replace)
	case *ast.LocalStatement:
		for i := range st.Values {
			st.Values[i] = substituteExpr(st.Values[i], find, replace)
		}
	case *ast.Assign:
		for i := range st.Rvalues {
			st.Rvalues[i] = substituteExpr(st.Rvalues[i], find, replace)
		}
		for i := range st.Lvalues {
			st.Lvalues[i] = substituteExpr(st.Lvalues[i], find, replace)
		}
	}
	// Break, Repeat, For, ForIn, LocalFunction, FunctionStatement: boundary,
	// no descent.
}

func substituteBlock(b *ast.Block, find *ast.Local, replace ast.Expression) {
	if b == nil {
		return
	}
	for _, s := range b.Body {
		substituteStmt(s, find, replace)
	}
}

func substituteExpr(e ast.Expression, find *ast.Local, replace ast.Expression) ast.Expression {
	switch ex := e.(type) {
	case *ast.LocalRef:
		if ex.Local == find {
			return replace
		}
	case *ast.Group:
		ex.Inner = substituteExpr(ex.Inner, find, replace)
	case *ast.Call:
		ex.Func = substituteExpr(ex.Func, find, replace)
		for i := range ex.Args {
			ex.Args[i] = substituteExpr(ex.Args[i], find, replace)
		}
	case *ast.IndexName:
		ex.Expr = substituteExpr(ex.Expr, find, replace)
	case *ast.IndexExpr:
		ex.Expr = substituteExpr(ex.Expr, find, replace)
		ex.Index = substituteExpr(ex.Index, find, replace)
	case *ast.Unary:
		ex.Expr = substituteExpr(ex.Expr, find, replace)
	case *ast.Binary:
		ex.Left = substituteExpr(ex.Left, find, replace)
		ex.Right = substituteExpr(ex.Right, find, replace)
	case *ast.Logical:
		ex.Left = substituteExpr(ex.Left, find, replace)
		ex.Right = substituteExpr(ex.Right, find, replace)
		// Table, Function, Varargs, ConstantNil/Bool/Number/String, GlobalRef:
		// boundary or leaf, no descent.
	}
	return e
}

// Package parser builds an ast.Block from Lua-family source text, the
// counterpart to internal/lifter (which builds the same AST shape from
// bytecode). Grounded on Parser.cpp's Parser class: same precedence
// table, the same scope/shadowing discipline around locals, and the
// same statement grammar, adapted to return Go errors instead of
// throwing.
package parser

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/lua-family/delua/internal/ast"
	"github.com/lua-family/delua/internal/lexer"
	"github.com/lua-family/delua/internal/names"
	"github.com/lua-family/delua/internal/token"
)

// ParseError is a syntax error encountered while parsing.
type ParseError struct {
	Reason string
	Pos    token.Position
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Reason)
}

// frame tracks the per-function-body state needed to validate `break`
// (only legal inside a loop, and the check resets at a function
// boundary) and `...` (only legal inside a vararg function).
type frame struct {
	loopDepth int
	vararg    bool
}

// Parser is a single-use recursive-descent parser over one token stream.
type Parser struct {
	lex   *lexer.Lexer
	names *names.Table

	cur  token.Token
	peek token.Token

	localMap   map[*names.Name]*ast.Local
	localStack []*ast.Local
	depth      int
	frames     []*frame
}

// New returns a Parser reading source and interning identifiers into tbl.
func New(source string, tbl *names.Table) *Parser {
	p := &Parser{
		lex:      lexer.New(source),
		names:    tbl,
		localMap: make(map[*names.Name]*ast.Local),
	}
	p.next()
	p.next()
	return p
}

// Parse parses source as a complete chunk.
func Parse(source string, tbl *names.Table) (*ast.Block, error) {
	p := New(source, tbl)
	p.pushFrame(true)
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != token.EOF {
		return nil, p.errorf("unexpected %s after chunk", p.cur.Type)
	}
	p.popFrame()
	return block, nil
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return errors.WithStack(&ParseError{Reason: fmt.Sprintf(format, args...), Pos: p.cur.Start})
}

func (p *Parser) expect(t token.Type) error {
	if p.cur.Type != t {
		return p.errorf("expected %q, got %q", t, p.cur.Type)
	}
	p.next()
	return nil
}

func (p *Parser) expectName() (token.Token, error) {
	if p.cur.Type != token.Name {
		return token.Token{}, p.errorf("expected a name, got %q", p.cur.Type)
	}
	tok := p.cur
	p.next()
	return tok, nil
}

// ---- scope management ----

func (p *Parser) pushFrame(vararg bool) {
	p.frames = append(p.frames, &frame{vararg: vararg})
	p.depth++
}

func (p *Parser) popFrame() {
	p.frames = p.frames[:len(p.frames)-1]
	p.depth--
}

func (p *Parser) currentFrame() *frame {
	return p.frames[len(p.frames)-1]
}

func (p *Parser) enterLoop() { p.currentFrame().loopDepth++ }
func (p *Parser) exitLoop()  { p.currentFrame().loopDepth-- }

func (p *Parser) saveLocals() int {
	return len(p.localStack)
}

func (p *Parser) restoreLocals(mark int) {
	for i := len(p.localStack) - 1; i >= mark; i-- {
		loc := p.localStack[i]
		if loc.Shadow != nil {
			p.localMap[loc.Name] = loc.Shadow
		} else {
			delete(p.localMap, loc.Name)
		}
	}
	p.localStack = p.localStack[:mark]
}

func (p *Parser) pushLocalNamed(name string, line int) *ast.Local {
	interned := p.names.GetOrAdd(name)
	loc := &ast.Local{
		Name:   interned,
		Shadow: p.localMap[interned],
		Depth:  p.depth,
	}
	loc.Location = ast.At(line)
	p.localMap[interned] = loc
	p.localStack = append(p.localStack, loc)
	return loc
}

func (p *Parser) pushLocal(tok token.Token) *ast.Local {
	return p.pushLocalNamed(tok.Literal, tok.Start.Line)
}

func (p *Parser) resolveName(tok token.Token) ast.Expression {
	name := p.names.GetOrAdd(tok.Literal)
	if loc, ok := p.localMap[name]; ok {
		ref := &ast.LocalRef{Local: loc, Upvalue: loc.Depth != p.depth}
		ref.SetLoc(ast.At(tok.Start.Line))
		return ref
	}
	ref := &ast.GlobalRef{Name: name}
	ref.SetLoc(ast.At(tok.Start.Line))
	return ref
}

// ---- blocks and statements ----

func blockFollow(t token.Type) bool {
	switch t {
	case token.EOF, token.End, token.Else, token.Elseif, token.Until:
		return true
	default:
		return false
	}
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	startLine := p.cur.Start.Line
	var body []ast.Statement
	for !blockFollow(p.cur.Type) {
		if p.cur.Type == token.Semi {
			p.next()
			continue
		}
		stmt, isLast, err := p.parseStat()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
		if isLast {
			if p.cur.Type == token.Semi {
				p.next()
			}
			break
		}
	}
	return ast.NewBlock(ast.At(startLine), body), nil
}

func (p *Parser) parseStat() (ast.Statement, bool, error) {
	switch p.cur.Type {
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.Do:
		return p.parseDo()
	case token.For:
		return p.parseFor()
	case token.Repeat:
		return p.parseRepeat()
	case token.Function:
		return p.parseFunctionStat()
	case token.Local:
		return p.parseLocal()
	case token.Return:
		return p.parseReturn()
	case token.Break:
		return p.parseBreak()
	default:
		return p.parseAssignOrCall()
	}
}

func (p *Parser) parseIf() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.Then); err != nil {
		return nil, false, err
	}
	then, err := p.parseScopedBlock()
	if err != nil {
		return nil, false, err
	}
	var elseifs []ast.ElseIf
	for p.cur.Type == token.Elseif {
		p.next()
		c, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		if err := p.expect(token.Then); err != nil {
			return nil, false, err
		}
		b, err := p.parseScopedBlock()
		if err != nil {
			return nil, false, err
		}
		elseifs = append(elseifs, ast.ElseIf{Condition: c, Then: b})
	}
	var elseBlock *ast.Block
	if p.cur.Type == token.Else {
		p.next()
		elseBlock, err = p.parseScopedBlock()
		if err != nil {
			return nil, false, err
		}
	}
	if err := p.expect(token.End); err != nil {
		return nil, false, err
	}
	stmt := &ast.If{Condition: cond, Then: then, ElseIfs: elseifs, Else: elseBlock}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

// parseScopedBlock parses a block whose locals go out of scope at its end;
// used for every body except a repeat loop, whose condition can still
// see the body's locals.
func (p *Parser) parseScopedBlock() (*ast.Block, error) {
	mark := p.saveLocals()
	b, err := p.parseBlock()
	p.restoreLocals(mark)
	return b, err
}

func (p *Parser) parseWhile() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.Do); err != nil {
		return nil, false, err
	}
	mark := p.saveLocals()
	p.enterLoop()
	body, err := p.parseBlock()
	p.exitLoop()
	p.restoreLocals(mark)
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.End); err != nil {
		return nil, false, err
	}
	stmt := &ast.While{Condition: cond, Body: body}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func (p *Parser) parseRepeat() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	mark := p.saveLocals()
	p.enterLoop()
	body, err := p.parseBlock()
	if err != nil {
		p.exitLoop()
		return nil, false, err
	}
	if err := p.expect(token.Until); err != nil {
		p.exitLoop()
		return nil, false, err
	}
	// the condition is still within the body's scope; restore after.
	cond, err := p.parseExpr()
	p.exitLoop()
	p.restoreLocals(mark)
	if err != nil {
		return nil, false, err
	}
	stmt := &ast.Repeat{Body: body, Condition: cond}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func (p *Parser) parseDo() (ast.Statement, bool, error) {
	p.next()
	body, err := p.parseScopedBlock()
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.End); err != nil {
		return nil, false, err
	}
	return body, false, nil
}

func (p *Parser) parseFor() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	firstTok, err := p.expectName()
	if err != nil {
		return nil, false, err
	}
	if p.cur.Type == token.Assign {
		return p.parseNumericFor(loc, firstTok)
	}
	return p.parseGenericFor(loc, firstTok)
}

func (p *Parser) parseNumericFor(loc ast.Location, varTok token.Token) (ast.Statement, bool, error) {
	p.next()
	from, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.Comma); err != nil {
		return nil, false, err
	}
	to, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	var step ast.Expression
	if p.cur.Type == token.Comma {
		p.next()
		step, err = p.parseExpr()
		if err != nil {
			return nil, false, err
		}
	}
	if err := p.expect(token.Do); err != nil {
		return nil, false, err
	}
	mark := p.saveLocals()
	v := p.pushLocal(varTok)
	p.enterLoop()
	body, err := p.parseBlock()
	p.exitLoop()
	p.restoreLocals(mark)
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.End); err != nil {
		return nil, false, err
	}
	stmt := &ast.For{Var: v, From: from, To: to, Step: step, Body: body}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func (p *Parser) parseGenericFor(loc ast.Location, firstTok token.Token) (ast.Statement, bool, error) {
	nameToks := []token.Token{firstTok}
	for p.cur.Type == token.Comma {
		p.next()
		tok, err := p.expectName()
		if err != nil {
			return nil, false, err
		}
		nameToks = append(nameToks, tok)
	}
	if err := p.expect(token.In); err != nil {
		return nil, false, err
	}
	values, err := p.parseExprList()
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.Do); err != nil {
		return nil, false, err
	}
	mark := p.saveLocals()
	vars := make([]*ast.Local, len(nameToks))
	for i, tok := range nameToks {
		vars[i] = p.pushLocal(tok)
	}
	p.enterLoop()
	body, err := p.parseBlock()
	p.exitLoop()
	p.restoreLocals(mark)
	if err != nil {
		return nil, false, err
	}
	if err := p.expect(token.End); err != nil {
		return nil, false, err
	}
	stmt := &ast.ForIn{Vars: vars, Values: values, Body: body}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func (p *Parser) parseFunctionStat() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	nameTok, err := p.expectName()
	if err != nil {
		return nil, false, err
	}
	var target ast.Expression = p.resolveName(nameTok)
	for p.cur.Type == token.Dot {
		p.next()
		idxTok, err := p.expectName()
		if err != nil {
			return nil, false, err
		}
		idx := &ast.IndexName{Expr: target, Index: p.names.GetOrAdd(idxTok.Literal)}
		idx.SetLoc(ast.At(idxTok.Start.Line))
		target = idx
	}
	hasSelf := false
	if p.cur.Type == token.Colon {
		p.next()
		idxTok, err := p.expectName()
		if err != nil {
			return nil, false, err
		}
		idx := &ast.IndexName{Expr: target, Index: p.names.GetOrAdd(idxTok.Literal)}
		idx.SetLoc(ast.At(idxTok.Start.Line))
		target = idx
		hasSelf = true
	}
	body, err := p.parseFunctionBody(hasSelf)
	if err != nil {
		return nil, false, err
	}
	stmt := &ast.FunctionStatement{Target: target, Body: body}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func (p *Parser) parseLocal() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	if p.cur.Type == token.Function {
		p.next()
		nameTok, err := p.expectName()
		if err != nil {
			return nil, false, err
		}
		v := p.pushLocal(nameTok)
		body, err := p.parseFunctionBody(false)
		if err != nil {
			return nil, false, err
		}
		stmt := &ast.LocalFunction{Var: v, Body: body}
		stmt.SetLoc(loc)
		return stmt, false, nil
	}

	nameTok, err := p.expectName()
	if err != nil {
		return nil, false, err
	}
	nameToks := []token.Token{nameTok}
	for p.cur.Type == token.Comma {
		p.next()
		tok, err := p.expectName()
		if err != nil {
			return nil, false, err
		}
		nameToks = append(nameToks, tok)
	}
	var values []ast.Expression
	if p.cur.Type == token.Assign {
		p.next()
		values, err = p.parseExprList()
		if err != nil {
			return nil, false, err
		}
	}
	vars := make([]*ast.Local, len(nameToks))
	for i, tok := range nameToks {
		vars[i] = p.pushLocal(tok)
	}
	stmt := &ast.LocalStatement{Vars: vars, Values: values}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func (p *Parser) parseReturn() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	p.next()
	var values []ast.Expression
	if !blockFollow(p.cur.Type) && p.cur.Type != token.Semi {
		var err error
		values, err = p.parseExprList()
		if err != nil {
			return nil, false, err
		}
	}
	stmt := &ast.Return{Values: values}
	stmt.SetLoc(loc)
	return stmt, true, nil
}

func (p *Parser) parseBreak() (ast.Statement, bool, error) {
	if p.currentFrame().loopDepth == 0 {
		return nil, false, p.errorf("'break' outside a loop")
	}
	loc := ast.At(p.cur.Start.Line)
	p.next()
	stmt := &ast.Break{}
	stmt.SetLoc(loc)
	return stmt, true, nil
}

func (p *Parser) parseAssignOrCall() (ast.Statement, bool, error) {
	loc := ast.At(p.cur.Start.Line)
	expr, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, false, err
	}
	if call, ok := expr.(*ast.Call); ok {
		stmt := &ast.ExprStatement{Expr: call}
		stmt.SetLoc(loc)
		return stmt, false, nil
	}
	if !isExprVar(expr) {
		return nil, false, p.errorf("syntax error: expression must be a variable or a field")
	}
	lvalues := []ast.Expression{expr}
	for p.cur.Type == token.Comma {
		p.next()
		e, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, false, err
		}
		if !isExprVar(e) {
			return nil, false, p.errorf("syntax error: expression must be a variable or a field")
		}
		lvalues = append(lvalues, e)
	}
	if err := p.expect(token.Assign); err != nil {
		return nil, false, err
	}
	rvalues, err := p.parseExprList()
	if err != nil {
		return nil, false, err
	}
	stmt := &ast.Assign{Lvalues: lvalues, Rvalues: rvalues}
	stmt.SetLoc(loc)
	return stmt, false, nil
}

func isExprVar(e ast.Expression) bool {
	switch e.(type) {
	case *ast.LocalRef, *ast.GlobalRef, *ast.IndexName, *ast.IndexExpr:
		return true
	default:
		return false
	}
}

// ---- functions ----

func (p *Parser) parseFunctionBody(hasSelf bool) (*ast.Function, error) {
	loc := ast.At(p.cur.Start.Line)
	if err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	mark := p.saveLocals()
	p.pushFrame(false)

	var selfLocal *ast.Local
	if hasSelf {
		selfLocal = p.pushLocalNamed("self", loc.Begin.Line)
	}

	var args []*ast.Local
	vararg := false
	if p.cur.Type != token.RParen {
		for {
			if p.cur.Type == token.Dot3 {
				p.next()
				vararg = true
				break
			}
			nameTok, err := p.expectName()
			if err != nil {
				return nil, err
			}
			args = append(args, p.pushLocal(nameTok))
			if p.cur.Type != token.Comma {
				break
			}
			p.next()
		}
	}
	p.currentFrame().vararg = vararg
	if err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.End); err != nil {
		return nil, err
	}
	p.popFrame()
	p.restoreLocals(mark)

	fn := &ast.Function{Self: selfLocal, Args: args, Vararg: vararg, Body: body}
	fn.SetLoc(loc)
	return fn, nil
}

// ---- expressions ----

type opInfo struct{ left, right int }

var binaryPriority = map[token.Type]opInfo{
	token.Plus:      {6, 6},
	token.Minus:     {6, 6},
	token.Star:      {7, 7},
	token.Slash:     {7, 7},
	token.Percent:   {7, 7},
	token.Caret:     {10, 9},
	token.Dot2:      {5, 4},
	token.NotEqual:  {3, 3},
	token.Equal:     {3, 3},
	token.Less:      {3, 3},
	token.LessEq:    {3, 3},
	token.Greater:   {3, 3},
	token.GreaterEq: {3, 3},
	token.And:       {2, 2},
	token.Or:        {1, 1},
}

const unaryPriority = 8

func binaryOpFor(t token.Type) ast.BinaryOp {
	switch t {
	case token.Plus:
		return ast.BinaryAdd
	case token.Minus:
		return ast.BinarySub
	case token.Star:
		return ast.BinaryMul
	case token.Slash:
		return ast.BinaryDiv
	case token.Percent:
		return ast.BinaryMod
	case token.Caret:
		return ast.BinaryPow
	case token.Dot2:
		return ast.BinaryConcat
	case token.NotEqual:
		return ast.BinaryNe
	case token.Equal:
		return ast.BinaryEq
	case token.Less:
		return ast.BinaryLt
	case token.LessEq:
		return ast.BinaryLe
	case token.Greater:
		return ast.BinaryGt
	default:
		return ast.BinaryGe
	}
}

func (p *Parser) parseExpr() (ast.Expression, error) {
	return p.parseSubExpr(0)
}

func (p *Parser) parseSubExpr(limit int) (ast.Expression, error) {
	var left ast.Expression
	var err error
	switch p.cur.Type {
	case token.Not, token.Minus, token.Hash:
		opTok := p.cur
		p.next()
		operand, err := p.parseSubExpr(unaryPriority)
		if err != nil {
			return nil, err
		}
		u := &ast.Unary{Op: unaryOpFor(opTok.Type), Expr: operand}
		u.SetLoc(ast.At(opTok.Start.Line))
		left = u
	default:
		left, err = p.parseSimpleExpr()
		if err != nil {
			return nil, err
		}
	}

	for {
		info, ok := binaryPriority[p.cur.Type]
		if !ok || info.left <= limit {
			break
		}
		opTok := p.cur
		p.next()
		right, err := p.parseSubExpr(info.right)
		if err != nil {
			return nil, err
		}
		loc := ast.At(opTok.Start.Line)
		switch opTok.Type {
		case token.And:
			n := &ast.Logical{Op: ast.LogicalAnd, Left: left, Right: right}
			n.SetLoc(loc)
			left = n
		case token.Or:
			n := &ast.Logical{Op: ast.LogicalOr, Left: left, Right: right}
			n.SetLoc(loc)
			left = n
		default:
			n := &ast.Binary{Op: binaryOpFor(opTok.Type), Left: left, Right: right}
			n.SetLoc(loc)
			left = n
		}
	}
	return left, nil
}

func unaryOpFor(t token.Type) ast.UnaryOp {
	switch t {
	case token.Not:
		return ast.UnaryNot
	case token.Hash:
		return ast.UnaryLen
	default:
		return ast.UnaryMinus
	}
}

func (p *Parser) parseSimpleExpr() (ast.Expression, error) {
	tok := p.cur
	switch tok.Type {
	case token.Nil:
		p.next()
		n := &ast.ConstantNil{}
		n.SetLoc(ast.At(tok.Start.Line))
		return n, nil
	case token.True, token.False:
		p.next()
		n := &ast.ConstantBool{Value: tok.Type == token.True}
		n.SetLoc(ast.At(tok.Start.Line))
		return n, nil
	case token.Number:
		p.next()
		v, err := parseNumberLiteral(tok.Literal)
		if err != nil {
			return nil, p.errorf("malformed number near %q", tok.Literal)
		}
		n := &ast.ConstantNumber{Value: v}
		n.SetLoc(ast.At(tok.Start.Line))
		return n, nil
	case token.String:
		p.next()
		n := &ast.ConstantString{Value: tok.Literal}
		n.SetLoc(ast.At(tok.Start.Line))
		return n, nil
	case token.Dot3:
		if !p.currentFrame().vararg {
			return nil, p.errorf("cannot use '...' outside a vararg function")
		}
		p.next()
		n := &ast.Varargs{}
		n.SetLoc(ast.At(tok.Start.Line))
		return n, nil
	case token.Function:
		p.next()
		return p.parseFunctionBody(false)
	case token.LBrace:
		return p.parseTableConstructor()
	default:
		return p.parsePrimaryExpr()
	}
}

func (p *Parser) parsePrefixExpr() (ast.Expression, error) {
	switch p.cur.Type {
	case token.LParen:
		loc := ast.At(p.cur.Start.Line)
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		g := &ast.Group{Inner: inner}
		g.SetLoc(loc)
		return g, nil
	case token.Name:
		tok := p.cur
		p.next()
		return p.resolveName(tok), nil
	default:
		return nil, p.errorf("unexpected symbol %q", p.cur.Type)
	}
}

func (p *Parser) parsePrimaryExpr() (ast.Expression, error) {
	expr, err := p.parsePrefixExpr()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Type {
		case token.Dot:
			p.next()
			idxTok, err := p.expectName()
			if err != nil {
				return nil, err
			}
			idx := &ast.IndexName{Expr: expr, Index: p.names.GetOrAdd(idxTok.Literal)}
			idx.SetLoc(ast.At(idxTok.Start.Line))
			expr = idx
		case token.LBracket:
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			ix := &ast.IndexExpr{Expr: expr, Index: key}
			ix.SetLoc(expr.Loc())
			expr = ix
		case token.Colon:
			p.next()
			nameTok, err := p.expectName()
			if err != nil {
				return nil, err
			}
			idx := &ast.IndexName{Expr: expr, Index: p.names.GetOrAdd(nameTok.Literal)}
			idx.SetLoc(ast.At(nameTok.Start.Line))
			args, err := p.parseFunctionArgs()
			if err != nil {
				return nil, err
			}
			call := &ast.Call{Func: idx, Args: args, Self: true}
			call.SetLoc(idx.Loc())
			expr = call
		case token.LParen, token.String, token.LBrace:
			loc := expr.Loc()
			args, err := p.parseFunctionArgs()
			if err != nil {
				return nil, err
			}
			call := &ast.Call{Func: expr, Args: args}
			call.SetLoc(loc)
			expr = call
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseFunctionArgs() ([]ast.Expression, error) {
	switch p.cur.Type {
	case token.LParen:
		p.next()
		var args []ast.Expression
		if p.cur.Type != token.RParen {
			var err error
			args, err = p.parseExprList()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return args, nil
	case token.LBrace:
		t, err := p.parseTableConstructor()
		if err != nil {
			return nil, err
		}
		return []ast.Expression{t}, nil
	case token.String:
		tok := p.cur
		p.next()
		s := &ast.ConstantString{Value: tok.Literal}
		s.SetLoc(ast.At(tok.Start.Line))
		return []ast.Expression{s}, nil
	default:
		return nil, p.errorf("function arguments expected")
	}
}

func (p *Parser) parseExprList() ([]ast.Expression, error) {
	var exprs []ast.Expression
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.cur.Type != token.Comma {
			return exprs, nil
		}
		p.next()
	}
}

func (p *Parser) parseTableConstructor() (ast.Expression, error) {
	loc := ast.At(p.cur.Start.Line)
	if err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var pairs []ast.TablePair
	for p.cur.Type != token.RBrace {
		var pair ast.TablePair
		switch {
		case p.cur.Type == token.LBracket:
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			if err := p.expect(token.Assign); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pair = ast.TablePair{Key: key, Value: val}
		case p.cur.Type == token.Name && p.peek.Type == token.Assign:
			nameTok := p.cur
			p.next()
			p.next()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			key := &ast.ConstantString{Value: nameTok.Literal}
			key.SetLoc(ast.At(nameTok.Start.Line))
			pair = ast.TablePair{Key: key, Value: val}
		default:
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pair = ast.TablePair{Value: val}
		}
		pairs = append(pairs, pair)
		if p.cur.Type == token.Comma || p.cur.Type == token.Semi {
			p.next()
			continue
		}
		break
	}
	if err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	t := &ast.Table{Pairs: pairs}
	t.SetLoc(loc)
	return t, nil
}

// parseNumberLiteral converts a lexed number span to a float64. Decimal
// literals use strconv.ParseFloat directly; a 0x-prefixed span that
// ParseFloat rejects is retried as a hex integer, matching readNumber's
// strtod-then-strtoul fallback.
func parseNumberLiteral(lit string) (float64, error) {
	if v, err := strconv.ParseFloat(lit, 64); err == nil {
		return v, nil
	}
	if len(lit) > 2 && (lit[:2] == "0x" || lit[:2] == "0X") {
		if v, err := strconv.ParseUint(lit[2:], 16, 64); err == nil {
			return float64(v), nil
		}
	}
	return 0, fmt.Errorf("malformed number %q", lit)
}

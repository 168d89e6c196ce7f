// Package printer renders an ast.Block as Lua-family source text, matching
// the output CodeFormat.cpp's CodeVisitor produces from the same AST shape:
// same indentation, same string-quoting rules, same (lack of) precedence
// parenthesization, and the same dotted/bracket sugar for table and index
// access.
package printer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lua-family/delua/internal/ast"
)

// Printer writes formatted source text to an underlying io.Writer.
type Printer struct {
	w           io.Writer
	indent      int
	mainWritten bool
	err         error
}

// New returns a Printer that writes to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print renders block as the outermost chunk: its statements are written
// flat, with no enclosing `do ... end`. Any subsequent Block value printed
// through the same Printer (a nested `do ... end` appearing as a bare
// statement) is wrapped.
func (p *Printer) Print(block *ast.Block) error {
	p.writeBlock(block)
	return p.err
}

func (p *Printer) writef(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, err := fmt.Fprintf(p.w, format, args...)
	if err != nil {
		p.err = err
	}
}

func (p *Printer) writeIndent() {
	p.writef("%s", strings.Repeat("    ", p.indent))
}

// writeBlock renders a block's statements. The first call (the chunk root)
// is flat; every later call wraps in `do ... end` at the current indent.
func (p *Printer) writeBlock(b *ast.Block) {
	if !p.mainWritten {
		p.mainWritten = true
		p.writeStatements(b.Body)
		return
	}
	p.writef("do\n")
	p.indent++
	p.writeStatements(b.Body)
	p.indent--
	p.writeIndent()
	p.writef("end\n")
}

// writeIndentedBody renders a nested block's statements (an If/While/For
// body, never the chunk root) at one deeper indent, with no do/end wrapper
// of its own — the caller supplies the surrounding keywords.
func (p *Printer) writeIndentedBody(b *ast.Block) {
	p.indent++
	p.writeStatements(b.Body)
	p.indent--
}

func (p *Printer) writeStatements(body []ast.Statement) {
	if len(body) == 0 {
		p.writef(" ")
		return
	}
	for _, s := range body {
		p.writeStatement(s)
	}
}

func (p *Printer) writeStatement(s ast.Statement) {
	switch st := s.(type) {
	case *ast.Block:
		p.writeIndent()
		p.writeBlock(st)
	case *ast.If:
		p.writeIndent()
		p.writef("if ")
		p.writeExpr(st.Condition)
		p.writef(" then\n")
		p.writeIndentedBody(st.Then)
		for _, ei := range st.ElseIfs {
			p.writeIndent()
			p.writef("elseif ")
			p.writeExpr(ei.Condition)
			p.writef(" then\n")
			p.writeIndentedBody(ei.Then)
		}
		if st.Else != nil {
			p.writeIndent()
			p.writef("else\n")
			p.writeIndentedBody(st.Else)
		}
		p.writeIndent()
		p.writef("end\n")
	case *ast.While:
		p.writeIndent()
		p.writef("while ")
		p.writeExpr(st.Condition)
		p.writef(" do\n")
		p.writeIndentedBody(st.Body)
		p.writeIndent()
		p.writef("end\n")
	case *ast.Repeat:
		p.writeIndent()
		p.writef("repeat\n")
		p.writeIndentedBody(st.Body)
		p.writeIndent()
		p.writef("until ")
		p.writeExpr(st.Condition)
		p.writef("\n")
	case *ast.For:
		p.writeIndent()
		p.writef("for %s = ", st.Var.Name.String())
		p.writeExpr(st.From)
		p.writef(", ")
		p.writeExpr(st.To)
		if st.Step != nil {
			p.writef(", ")
			p.writeExpr(st.Step)
		}
		p.writef(" do\n")
		p.writeIndentedBody(st.Body)
		p.writeIndent()
		p.writef("end\n")
	case *ast.ForIn:
		p.writeIndent()
		p.writef("for ")
		p.writeLocalNames(st.Vars)
		p.writef(" in ")
		p.writeExprList(st.Values)
		p.writef(" do\n")
		p.writeIndentedBody(st.Body)
		p.writeIndent()
		p.writef("end\n")
	case *ast.Break:
		p.writeIndent()
		p.writef("break\n")
	case *ast.Return:
		p.writeIndent()
		p.writef("return ")
		p.writeExprList(st.Values)
		p.writef("\n")
	case *ast.ExprStatement:
		p.writeIndent()
		p.writeExpr(st.Expr)
		p.writef("\n")
	case *ast.LocalStatement:
		p.writeIndent()
		p.writef("local ")
		p.writeLocalNames(st.Vars)
		if len(st.Values) == 1 {
			if _, ok := st.Values[0].(*ast.ConstantNil); ok {
				p.writef("\n")
				return
			}
		}
		if len(st.Values) == 0 {
			p.writef("\n")
			return
		}
		p.writef(" = ")
		p.writeExprList(st.Values)
		p.writef("\n")
	case *ast.LocalFunction:
		p.writeIndent()
		p.writef("local function %s(", st.Var.Name.String())
		p.writeLocalNames(st.Body.Args)
		if st.Body.Vararg {
			p.writeVarargParam(len(st.Body.Args) > 0)
		}
		p.writef(")\n")
		p.writeIndentedBody(st.Body.Body)
		p.writeIndent()
		p.writef("end\n")
	case *ast.FunctionStatement:
		p.writeIndent()
		p.writef("function ")
		if st.Body.Self != nil {
			p.writeMethodTarget(st.Target)
		} else {
			p.writeExpr(st.Target)
		}
		p.writef("(")
		p.writeLocalNames(st.Body.Args)
		if st.Body.Vararg {
			p.writeVarargParam(len(st.Body.Args) > 0)
		}
		p.writef(")\n")
		p.writeIndentedBody(st.Body.Body)
		p.writeIndent()
		p.writef("end\n")
	case *ast.Assign:
		p.writeIndent()
		p.writeExprList(st.Lvalues)
		p.writef(" = ")
		p.writeExprList(st.Rvalues)
		p.writef("\n")
	default:
		p.err = fmt.Errorf("printer: unhandled statement %T", s)
	}
}

// writeMethodTarget prints a.b:c rather than a.b.c for a FunctionStatement
// whose Body declares a receiver (st.Body.Self != nil); Target must be an
// *ast.IndexName in that case.
func (p *Printer) writeMethodTarget(target ast.Expression) {
	idx, ok := target.(*ast.IndexName)
	if !ok {
		p.writeExpr(target)
		return
	}
	p.writeExpr(idx.Expr)
	p.writef(":%s", idx.Index.String())
}

func (p *Printer) writeVarargParam(precededByArgs bool) {
	if precededByArgs {
		p.writef(", ")
	}
	p.writef("...")
}

func (p *Printer) writeLocalNames(locals []*ast.Local) {
	for i, l := range locals {
		if i > 0 {
			p.writef(", ")
		}
		p.writef("%s", l.Name.String())
	}
}

func (p *Printer) writeExprList(exprs []ast.Expression) {
	for i, e := range exprs {
		if i > 0 {
			p.writef(", ")
		}
		p.writeExpr(e)
	}
}

func (p *Printer) writeExpr(e ast.Expression) {
	switch ex := e.(type) {
	case *ast.Group:
		p.writef("(")
		p.writeExpr(ex.Inner)
		p.writef(")")
	case *ast.ConstantNil:
		p.writef("nil")
	case *ast.ConstantBool:
		if ex.Value {
			p.writef("true")
		} else {
			p.writef("false")
		}
	case *ast.ConstantNumber:
		p.writef("%s", strconv.FormatFloat(ex.Value, 'g', 14, 64))
	case *ast.ConstantString:
		p.writeStringLiteral(ex.Value)
	case *ast.LocalRef:
		p.writef("%s", ex.Local.Name.String())
	case *ast.GlobalRef:
		p.writef("%s", ex.Name.String())
	case *ast.Varargs:
		p.writef("...")
	case *ast.Call:
		p.writeCall(ex)
	case *ast.IndexName:
		p.writeExpr(ex.Expr)
		p.writef(".%s", ex.Index.String())
	case *ast.IndexExpr:
		p.writeIndexExpr(ex)
	case *ast.Function:
		p.writef("function(")
		p.writeLocalNames(ex.Args)
		if ex.Vararg {
			p.writeVarargParam(len(ex.Args) > 0)
		}
		p.writef(")\n")
		p.writeIndentedBody(ex.Body)
		p.writeIndent()
		p.writef("end")
	case *ast.Table:
		p.writeTable(ex)
	case *ast.Unary:
		p.writeUnary(ex)
	case *ast.Binary:
		p.writeExpr(ex.Left)
		p.writef("%s", binaryOpText(ex.Op))
		p.writeExpr(ex.Right)
	case *ast.Logical:
		p.writeExpr(ex.Left)
		if ex.Op == ast.LogicalAnd {
			p.writef(" and ")
		} else {
			p.writef(" or ")
		}
		p.writeExpr(ex.Right)
	default:
		p.err = fmt.Errorf("printer: unhandled expression %T", e)
	}
}

func (p *Printer) writeUnary(u *ast.Unary) {
	switch u.Op {
	case ast.UnaryNot:
		p.writef("not ")
	case ast.UnaryMinus:
		p.writef("-")
	case ast.UnaryLen:
		p.writef("#")
	}
	p.writeExpr(u.Expr)
}

func binaryOpText(op ast.BinaryOp) string {
	switch op {
	case ast.BinaryAdd:
		return " + "
	case ast.BinarySub:
		return " - "
	case ast.BinaryMul:
		return " * "
	case ast.BinaryDiv:
		return " / "
	case ast.BinaryMod:
		return " % "
	case ast.BinaryPow:
		return " ^ "
	case ast.BinaryConcat:
		return " .. "
	case ast.BinaryNe:
		return " ~= "
	case ast.BinaryEq:
		return " == "
	case ast.BinaryLt:
		return " < "
	case ast.BinaryLe:
		return " <= "
	case ast.BinaryGt:
		return " > "
	case ast.BinaryGe:
		return " >= "
	default:
		return " ?op? "
	}
}

// writeCall renders a call, preferring `recv:name(args)` method sugar when
// the callee is self-qualified. A callee that isn't one of the textually
// unambiguous forms (a bare name or an index chain) is parenthesized, even
// though some of those forms (e.g. a chained call) would parse fine bare.
func (p *Printer) writeCall(c *ast.Call) {
	if c.Self {
		if idx, ok := c.Func.(*ast.IndexName); ok {
			p.writeExpr(idx.Expr)
			p.writef(":%s(", idx.Index.String())
			p.writeExprList(c.Args)
			p.writef(")")
			return
		}
	}
	if calleeNeedsParens(c.Func) {
		p.writef("(")
		p.writeExpr(c.Func)
		p.writef(")")
	} else {
		p.writeExpr(c.Func)
	}
	p.writef("(")
	p.writeExprList(c.Args)
	p.writef(")")
}

func calleeNeedsParens(e ast.Expression) bool {
	switch e.(type) {
	case *ast.LocalRef, *ast.GlobalRef, *ast.Group, *ast.IndexName, *ast.IndexExpr:
		return false
	default:
		return true
	}
}

// writeIndexExpr degrades `expr["field"]` to `expr.field` when the index
// is a valid-identifier string constant, matching CodeFormat.cpp's sugar;
// anything else prints bracketed.
func (p *Printer) writeIndexExpr(ix *ast.IndexExpr) {
	if name, ok := validNameIndex(ix.Index); ok {
		p.writeExpr(ix.Expr)
		p.writef(".%s", name)
		return
	}
	p.writeExpr(ix.Expr)
	p.writef("[")
	p.writeExpr(ix.Index)
	p.writef("]")
}

func validNameIndex(e ast.Expression) (string, bool) {
	cs, ok := e.(*ast.ConstantString)
	if !ok {
		return "", false
	}
	if !isValidName(cs.Value) {
		return "", false
	}
	return cs.Value, true
}

// tablePairWrapEvery mirrors CodeFormat.cpp's table-constructor line break:
// a newline+reindent is inserted before the 1st, 16th, 31st, ... pair.
const tablePairWrapEvery = 15

func (p *Printer) writeTable(t *ast.Table) {
	p.writef("{")
	if len(t.Pairs) == 0 {
		p.writef("}")
		return
	}
	p.indent++
	for i, pair := range t.Pairs {
		if i%tablePairWrapEvery == 0 {
			p.writef("\n")
			p.writeIndent()
		}
		p.writeTablePair(pair)
		if i == len(t.Pairs)-1 {
			p.writef("\n")
		} else {
			p.writef(", ")
		}
	}
	p.indent--
	p.writeIndent()
	p.writef("}")
}

func (p *Printer) writeTablePair(pair ast.TablePair) {
	if pair.Key == nil {
		p.writeExpr(pair.Value)
		return
	}
	if cs, ok := pair.Key.(*ast.ConstantString); ok && isValidName(cs.Value) {
		p.writef("%s = ", cs.Value)
		p.writeExpr(pair.Value)
		return
	}
	p.writef("[")
	p.writeExpr(pair.Key)
	p.writef("] = ")
	p.writeExpr(pair.Value)
}

// isValidName reports whether text can stand as a bare identifier, used to
// decide dotted-vs-bracket sugar for both index expressions and table keys.
func isValidName(text string) bool {
	if text == "" {
		return false
	}
	for i, r := range text {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 {
			if !isAlpha {
				return false
			}
			continue
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

type quoteStyle int

const (
	quoteDouble quoteStyle = iota
	quoteSingle
	quoteLong
)

// classifyQuote picks the quoting style CodeFormat.cpp's getStringQuoteType
// would: long-bracket form for anything containing a newline or backslash,
// or when the string holds both quote characters (since neither single nor
// double quoting alone would work); otherwise whichever quote character the
// string doesn't contain, preferring double. Mirrors a gap in the source: a
// string needing escaped characters is never actually escaped, it falls
// back to the unescaped long-bracket form instead.
func classifyQuote(s string) quoteStyle {
	if strings.ContainsAny(s, "\n\\") {
		return quoteLong
	}
	hasSingle := strings.Contains(s, "'")
	hasDouble := strings.Contains(s, "\"")
	switch {
	case hasSingle && hasDouble:
		return quoteLong
	case hasDouble && !hasSingle:
		return quoteSingle
	default:
		return quoteDouble
	}
}

func (p *Printer) writeStringLiteral(s string) {
	switch classifyQuote(s) {
	case quoteSingle:
		p.writef("'%s'", s)
	case quoteLong:
		p.writef("[[%s]]", s)
	default:
		p.writef("\"%s\"", s)
	}
}

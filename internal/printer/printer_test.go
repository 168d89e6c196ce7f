package printer

import (
	"strings"
	"testing"

	"github.com/lua-family/delua/internal/arena"
	"github.com/lua-family/delua/internal/ast"
	"github.com/lua-family/delua/internal/names"
)

func render(t *testing.T, body []ast.Statement) string {
	t.Helper()
	var buf strings.Builder
	block := ast.NewBlock(ast.At(0), body)
	if err := New(&buf).Print(block); err != nil {
		t.Fatalf("Print: %v", err)
	}
	return buf.String()
}

func local(tbl *names.Table, n string) *ast.Local {
	return &ast.Local{Name: tbl.GetOrAdd(n)}
}

func TestPrintLocalStatementElidesNilValue(t *testing.T) {
	tbl := names.New(arena.New())
	v := local(tbl, "a")
	out := render(t, []ast.Statement{
		&ast.LocalStatement{Vars: []*ast.Local{v}, Values: []ast.Expression{&ast.ConstantNil{}}},
	})
	if out != "local a\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintLocalStatementWithValue(t *testing.T) {
	tbl := names.New(arena.New())
	v := local(tbl, "a")
	out := render(t, []ast.Statement{
		&ast.LocalStatement{Vars: []*ast.Local{v}, Values: []ast.Expression{&ast.ConstantNumber{Value: 3}}},
	})
	if out != "local a = 3\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintBinaryHasNoPrecedenceParens(t *testing.T) {
	out := render(t, []ast.Statement{
		&ast.Return{Values: []ast.Expression{
			&ast.Binary{
				Op:   ast.BinaryMul,
				Left: &ast.Binary{Op: ast.BinaryAdd, Left: &ast.ConstantNumber{Value: 1}, Right: &ast.ConstantNumber{Value: 2}},
				Right: &ast.ConstantNumber{Value: 3},
			},
		}},
	})
	if out != "return 1 + 2 * 3\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintGroupAddsExplicitParens(t *testing.T) {
	out := render(t, []ast.Statement{
		&ast.Return{Values: []ast.Expression{
			&ast.Binary{
				Op:   ast.BinaryMul,
				Left: &ast.Group{Inner: &ast.Binary{Op: ast.BinaryAdd, Left: &ast.ConstantNumber{Value: 1}, Right: &ast.ConstantNumber{Value: 2}}},
				Right: &ast.ConstantNumber{Value: 3},
			},
		}},
	})
	if out != "return (1 + 2) * 3\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintIndexExprDegradesToDotForValidName(t *testing.T) {
	tbl := names.New(arena.New())
	g := &ast.GlobalRef{Name: tbl.GetOrAdd("t")}
	out := render(t, []ast.Statement{
		&ast.ExprStatement{Expr: &ast.IndexExpr{Expr: g, Index: &ast.ConstantString{Value: "field"}}},
	})
	if out != "t.field\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintIndexExprKeepsBracketsForInvalidName(t *testing.T) {
	tbl := names.New(arena.New())
	g := &ast.GlobalRef{Name: tbl.GetOrAdd("t")}
	out := render(t, []ast.Statement{
		&ast.ExprStatement{Expr: &ast.IndexExpr{Expr: g, Index: &ast.ConstantString{Value: "1field"}}},
	})
	if out != "t[\"1field\"]\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintMethodCallSugar(t *testing.T) {
	tbl := names.New(arena.New())
	g := &ast.GlobalRef{Name: tbl.GetOrAdd("obj")}
	idx := &ast.IndexName{Expr: g, Index: tbl.GetOrAdd("run")}
	out := render(t, []ast.Statement{
		&ast.ExprStatement{Expr: &ast.Call{Func: idx, Self: true}},
	})
	if out != "obj:run()\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintCallOnNonAtomicCalleeIsParenthesized(t *testing.T) {
	fn := &ast.Function{Body: ast.NewBlock(ast.At(0), nil)}
	out := render(t, []ast.Statement{
		&ast.ExprStatement{Expr: &ast.Call{Func: fn}},
	})
	want := "(function()\n end)()\n"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestPrintTableWrapsEveryFifteenPairs(t *testing.T) {
	pairs := make([]ast.TablePair, 0, 16)
	for i := 0; i < 16; i++ {
		pairs = append(pairs, ast.TablePair{Value: &ast.ConstantNumber{Value: float64(i)}})
	}
	out := render(t, []ast.Statement{
		&ast.ExprStatement{Expr: &ast.Table{Pairs: pairs}},
	})
	if strings.Count(out, "\n") < 3 {
		t.Fatalf("expected at least a wrap at pair 0 and pair 15 plus trailing newline, got %q", out)
	}
	if !strings.Contains(out, "0, 1") {
		t.Fatalf("expected first group comma-joined on one run, got %q", out)
	}
}

func TestPrintIfWithElseIfAndElse(t *testing.T) {
	tbl := names.New(arena.New())
	cond1 := &ast.GlobalRef{Name: tbl.GetOrAdd("a")}
	cond2 := &ast.GlobalRef{Name: tbl.GetOrAdd("b")}
	out := render(t, []ast.Statement{
		&ast.If{
			Condition: cond1,
			Then:      ast.NewBlock(ast.At(0), []ast.Statement{&ast.Break{}}),
			ElseIfs: []ast.ElseIf{
				{Condition: cond2, Then: ast.NewBlock(ast.At(0), []ast.Statement{&ast.Break{}})},
			},
			Else: ast.NewBlock(ast.At(0), []ast.Statement{&ast.Break{}}),
		},
	})
	want := "if a then\n    break\nelseif b then\n    break\nelse\n    break\nend\n"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestPrintNestedDoBlockIsWrapped(t *testing.T) {
	out := render(t, []ast.Statement{
		ast.NewBlock(ast.At(0), []ast.Statement{&ast.Break{}}),
	})
	want := "do\n    break\nend\n"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestPrintStringLiteralQuoting(t *testing.T) {
	out := render(t, []ast.Statement{
		&ast.Return{Values: []ast.Expression{&ast.ConstantString{Value: "it's fine"}}},
	})
	if out != "return \"it's fine\"\n" {
		t.Fatalf("got %q", out)
	}
}

func TestPrintStringLiteralWithBothQuotesUsesLongForm(t *testing.T) {
	out := render(t, []ast.Statement{
		&ast.Return{Values: []ast.Expression{&ast.ConstantString{Value: `it's "ok"`}}},
	})
	if out != "return [[it's \"ok\"]]\n" {
		t.Fatalf("got %q", out)
	}
}

package lexer

import (
	"testing"

	"github.com/lua-family/delua/internal/token"
)

func tokenTypes(t *testing.T, src string) []token.Type {
	t.Helper()
	l := New(src)
	var types []token.Type
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == token.EOF {
			return types
		}
	}
}

func assertTypes(t *testing.T, src string, want []token.Type) {
	t.Helper()
	got := tokenTypes(t, src)
	if len(got) != len(want) {
		t.Fatalf("%q: got %v want %v", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q: token %d got %v want %v (full %v)", src, i, got[i], want[i], got)
		}
	}
}

func TestLexKeywordsAndNames(t *testing.T) {
	assertTypes(t, "local x = function end",
		[]token.Type{token.Local, token.Name, token.Assign, token.Function, token.End, token.EOF})
}

func TestLexOperators(t *testing.T) {
	assertTypes(t, "== ~= <= >= < > ..", []token.Type{
		token.Equal, token.NotEqual, token.LessEq, token.GreaterEq,
		token.Less, token.Greater, token.Dot2, token.EOF,
	})
}

func TestLexDot3Vararg(t *testing.T) {
	assertTypes(t, "...", []token.Type{token.Dot3, token.EOF})
}

func TestLexBareTildeIsIllegal(t *testing.T) {
	assertTypes(t, "~", []token.Type{token.Illegal, token.EOF})
}

func TestLexLineComment(t *testing.T) {
	l := New("-- a comment\nlocal x")
	tok := l.NextToken()
	if tok.Type != token.Local {
		t.Fatalf("got %v, want Local", tok.Type)
	}
}

func TestLexLongComment(t *testing.T) {
	l := New("--[[ this is\na long comment ]] local x")
	tok := l.NextToken()
	if tok.Type != token.Local {
		t.Fatalf("got %v, want Local", tok.Type)
	}
}

func TestLexLongCommentWithLevel(t *testing.T) {
	l := New("--[==[ contains ]] inside ]==] local x")
	tok := l.NextToken()
	if tok.Type != token.Local {
		t.Fatalf("got %v, want Local", tok.Type)
	}
}

func TestLexLongStringLiteral(t *testing.T) {
	l := New(`[[hello world]]`)
	tok := l.NextToken()
	if tok.Type != token.String || tok.Literal != "hello world" {
		t.Fatalf("got %v %q", tok.Type, tok.Literal)
	}
}

func TestLexLongStringSkipsLeadingNewline(t *testing.T) {
	l := New("[[\nhello]]")
	tok := l.NextToken()
	if tok.Type != token.String || tok.Literal != "hello" {
		t.Fatalf("got %v %q", tok.Type, tok.Literal)
	}
}

func TestLexLongStringWithLevel(t *testing.T) {
	l := New(`[==[a]]b]==]`)
	tok := l.NextToken()
	if tok.Type != token.String || tok.Literal != "a]]b" {
		t.Fatalf("got %v %q", tok.Type, tok.Literal)
	}
}

func TestLexBareLBracket(t *testing.T) {
	l := New("[x]")
	first := l.NextToken()
	if first.Type != token.LBracket {
		t.Fatalf("got %v, want LBracket", first.Type)
	}
}

func TestLexQuotedStringEscapes(t *testing.T) {
	l := New(`"a\nb\tc\\d\"e"`)
	tok := l.NextToken()
	if tok.Type != token.String {
		t.Fatalf("got %v", tok.Type)
	}
	want := "a\nb\tc\\d\"e"
	if tok.Literal != want {
		t.Fatalf("got %q want %q", tok.Literal, want)
	}
}

func TestLexQuotedStringDecimalEscape(t *testing.T) {
	l := New(`"\65\66"`)
	tok := l.NextToken()
	if tok.Literal != "AB" {
		t.Fatalf("got %q", tok.Literal)
	}
}

func TestLexQuotedStringLineContinuation(t *testing.T) {
	l := New("\"a\\\nb\"")
	tok := l.NextToken()
	if tok.Literal != "a\nb" {
		t.Fatalf("got %q", tok.Literal)
	}
}

func TestLexUnfinishedStringIsIllegal(t *testing.T) {
	l := New("\"abc\n")
	tok := l.NextToken()
	if tok.Type != token.Illegal {
		t.Fatalf("got %v", tok.Type)
	}
}

func TestLexNumberSpans(t *testing.T) {
	cases := []string{"123", "3.14", "1e10", "1.5e-3", "0x1A"}
	for _, c := range cases {
		l := New(c)
		tok := l.NextToken()
		if tok.Type != token.Number || tok.Literal != c {
			t.Fatalf("%q: got %v %q", c, tok.Type, tok.Literal)
		}
	}
}

func TestLexLeadingDotNumber(t *testing.T) {
	l := New(".5")
	tok := l.NextToken()
	if tok.Type != token.Number || tok.Literal != ".5" {
		t.Fatalf("got %v %q", tok.Type, tok.Literal)
	}
}

func TestLexPositionTracksLineAndColumn(t *testing.T) {
	l := New("local\nx")
	first := l.NextToken()
	if first.Start.Line != 1 {
		t.Fatalf("got line %d", first.Start.Line)
	}
	second := l.NextToken()
	if second.Start.Line != 2 {
		t.Fatalf("got line %d", second.Start.Line)
	}
}

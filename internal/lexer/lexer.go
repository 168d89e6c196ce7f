// Package lexer tokenizes Lua-family source text for internal/parser.
// Grounded on Parser.cpp's Lexer class: same comment/long-bracket
// handling, the same string-escape table, and the same "don't actually
// parse the number, just capture its textual span" approach (the parser
// converts the literal to a float64).
package lexer

import (
	"strings"

	"github.com/lua-family/delua/internal/token"
)

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input   string
	offset  int // offset of ch
	readOff int // offset of the next byte to read
	ch      byte
	line    int
	column  int
}

// New creates a lexer over source.
func New(source string) *Lexer {
	l := &Lexer{input: source, line: 1, column: 0}
	l.readByte()
	return l
}

// NextToken returns the next token, skipping whitespace and comments.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return l.tok(token.EOF, "", pos)
	case l.ch == '-':
		l.readByte()
		return l.tok(token.Minus, "-", pos)
	case l.ch == '[':
		return l.readBracketOrLong(pos)
	case l.ch == '=':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return l.tok(token.Equal, "==", pos)
		}
		return l.tok(token.Assign, "=", pos)
	case l.ch == '<':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return l.tok(token.LessEq, "<=", pos)
		}
		return l.tok(token.Less, "<", pos)
	case l.ch == '>':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return l.tok(token.GreaterEq, ">=", pos)
		}
		return l.tok(token.Greater, ">", pos)
	case l.ch == '~':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return l.tok(token.NotEqual, "~=", pos)
		}
		return l.tok(token.Illegal, "~", pos)
	case l.ch == '"' || l.ch == '\'':
		return l.readQuotedString(pos)
	case l.ch == '.':
		return l.readDotOrNumber(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case isAlpha(l.ch):
		return l.readName(pos)
	default:
		ch := l.ch
		l.readByte()
		if t, ok := singleCharTokens[ch]; ok {
			return l.tok(t, string(ch), pos)
		}
		return l.tok(token.Illegal, string(ch), pos)
	}
}

var singleCharTokens = map[byte]token.Type{
	'+': token.Plus, '*': token.Star, '/': token.Slash, '%': token.Percent,
	'^': token.Caret, '#': token.Hash, '(': token.LParen, ')': token.RParen,
	'{': token.LBrace, '}': token.RBrace, ']': token.RBracket,
	';': token.Semi, ':': token.Colon, ',': token.Comma,
}

func (l *Lexer) tok(t token.Type, lit string, start token.Position) token.Token {
	return token.Token{Type: t, Literal: lit, Start: start, End: l.position()}
}

func (l *Lexer) position() token.Position {
	return token.Position{Offset: l.offset, Line: l.line, Column: l.column}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for isSpace(l.ch) {
			l.readByte()
		}
		if l.ch == '-' && l.peekByte() == '-' {
			l.readByte()
			l.readByte()
			l.skipCommentBody()
			continue
		}
		return
	}
}

func (l *Lexer) skipCommentBody() {
	if l.ch == '[' {
		level, ok := l.skipLongSeparator()
		if ok {
			l.readLongString(level)
			return
		}
	}
	for l.ch != 0 && l.ch != '\n' {
		l.readByte()
	}
}

// skipLongSeparator consumes a leading `[` or `]` plus any run of `=`
// and reports the separator's level and whether it is a well-formed
// opener/closer (the next byte, not consumed, equals the byte it
// started with). A malformed run (mismatched `=` count) still consumes
// input, matching Parser.cpp's skipLongSeparator.
func (l *Lexer) skipLongSeparator() (int, bool) {
	start := l.ch
	l.readByte()
	level := 0
	for l.ch == '=' {
		l.readByte()
		level++
	}
	return level, l.ch == start
}

// readLongString consumes a `[[...]]`/`[=[...]=]`-style body at the
// given separator level, assuming the second opening bracket is the
// current byte, and returns the text between the brackets.
func (l *Lexer) readLongString(level int) string {
	l.readByte() // second '['
	if l.ch == '\n' {
		l.readByte()
	}
	startOffset := l.offset
	for l.ch != 0 {
		if l.ch == ']' {
			save := l.save()
			closeLevel, ok := l.skipLongSeparator()
			if ok && closeLevel == level {
				body := l.input[startOffset : l.offset-level-1]
				l.readByte() // second ']'
				return body
			}
			l.restore(save)
		}
		l.readByte()
	}
	return l.input[startOffset:l.offset]
}

func (l *Lexer) readBracketOrLong(pos token.Position) token.Token {
	level, ok := l.skipLongSeparator()
	if ok {
		body := l.readLongString(level)
		return token.Token{Type: token.String, Literal: body, Start: pos, End: l.position()}
	}
	if level == 0 {
		return l.tok(token.LBracket, "[", pos)
	}
	return l.tok(token.Illegal, "[", pos)
}

func (l *Lexer) readQuotedString(pos token.Position) token.Token {
	delim := l.ch
	l.readByte()
	var sb strings.Builder
	for l.ch != delim {
		switch l.ch {
		case 0, '\n':
			return token.Token{Type: token.Illegal, Literal: "unfinished string", Start: pos, End: l.position()}
		case '\\':
			l.readByte()
			sb.WriteByte(l.readEscapedChar())
		default:
			sb.WriteByte(l.ch)
			l.readByte()
		}
	}
	l.readByte()
	return token.Token{Type: token.String, Literal: sb.String(), Start: pos, End: l.position()}
}

func (l *Lexer) readEscapedChar() byte {
	switch {
	case l.ch == '\n':
		l.readByte()
		return '\n'
	case l.ch == '\r':
		l.readByte()
		if l.ch == '\n' {
			l.readByte()
		}
		return '\n'
	case isDigit(l.ch):
		code := 0
		for i := 0; i < 3 && isDigit(l.ch); i++ {
			code = code*10 + int(l.ch-'0')
			l.readByte()
		}
		return byte(code)
	default:
		ch := unescape(l.ch)
		l.readByte()
		return ch
	}
}

func unescape(ch byte) byte {
	switch ch {
	case 'a':
		return '\a'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return '\v'
	default:
		return ch
	}
}

func (l *Lexer) readDotOrNumber(pos token.Position) token.Token {
	l.readByte()
	if l.ch == '.' {
		l.readByte()
		if l.ch == '.' {
			l.readByte()
			return l.tok(token.Dot3, "...", pos)
		}
		return l.tok(token.Dot2, "..", pos)
	}
	if isDigit(l.ch) {
		return l.readNumberFrom(pos, pos.Offset)
	}
	return l.tok(token.Dot, ".", pos)
}

func (l *Lexer) readNumber(pos token.Position) token.Token {
	return l.readNumberFrom(pos, l.offset)
}

// readNumberFrom captures a number-like span without parsing its value,
// mirroring Parser.cpp's readNumber: the parser later converts the
// literal with strconv.
func (l *Lexer) readNumberFrom(pos token.Position, startOffset int) token.Token {
	for isDigit(l.ch) || l.ch == '.' {
		l.readByte()
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readByte()
		if l.ch == '+' || l.ch == '-' {
			l.readByte()
		}
	}
	for isAlpha(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readByte()
	}
	return token.Token{Type: token.Number, Literal: l.input[startOffset:l.offset], Start: pos, End: l.position()}
}

func (l *Lexer) readName(pos token.Position) token.Token {
	start := l.offset
	for isAlpha(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readByte()
	}
	text := l.input[start:l.offset]
	return token.Token{Type: token.LookupIdent(text), Literal: text, Start: pos, End: l.position()}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) peekByte() byte {
	if l.readOff >= len(l.input) {
		return 0
	}
	return l.input[l.readOff]
}

func (l *Lexer) readByte() {
	if l.readOff >= len(l.input) {
		l.offset = l.readOff
		l.ch = 0
		return
	}
	l.ch = l.input[l.readOff]
	l.offset = l.readOff
	l.readOff++
	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

// lexerState is a snapshot used to backtrack a failed long-separator
// probe inside readLongString, where the speculative ']' run turns out
// not to match the opening level.
type lexerState struct {
	offset, readOff, line, column int
	ch                            byte
}

func (l *Lexer) save() lexerState {
	return lexerState{l.offset, l.readOff, l.line, l.column, l.ch}
}

func (l *Lexer) restore(s lexerState) {
	l.offset, l.readOff, l.line, l.column, l.ch = s.offset, s.readOff, s.line, s.column, s.ch
}

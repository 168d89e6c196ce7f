// Package names implements the interned identifier table shared by the
// reader, lifter, and text parser. Two identifier lexemes with identical
// spelling always resolve to the same *Name, so callers may compare names
// by pointer rather than by string content (spec.md §3, "Name").
package names

import (
	"unsafe"

	"github.com/lua-family/delua/internal/arena"
)

// Name is a handle to an interned string. Names are compared by pointer
// identity; two Names are equal iff they came from the same Table for
// equal spellings.
type Name struct {
	text     string
	reserved bool
}

// String returns the identifier's spelling.
func (n *Name) String() string { return n.text }

// IsReserved reports whether the spelling is one of the language's
// reserved words (kReserved in the Luau-family grammar this decompiler
// targets).
func (n *Name) IsReserved() bool { return n.reserved }

// reserved lists the language's keywords, used to classify a spelling at
// intern time. Mirrors Parser.h's kReserved table.
var reserved = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// IsReservedWord reports whether text is one of the language's keywords,
// without requiring an interned Name.
func IsReservedWord(text string) bool {
	return reserved[text]
}

// Table interns identifier spellings against a shared Arena so that
// long-lived AST nodes never hold separately-owned heap strings.
type Table struct {
	arena   *arena.Arena
	entries map[string]*Name
}

// New returns an empty Table backed by a. Names allocated through the
// table live as long as a does.
func New(a *arena.Arena) *Table {
	return &Table{arena: a, entries: make(map[string]*Name)}
}

// GetOrAdd interns text, returning the shared Name for that spelling.
func (t *Table) GetOrAdd(text string) *Name {
	if n, ok := t.entries[text]; ok {
		return n
	}
	n := arena.Alloc[Name](t.arena)
	n.text = t.copyText(text)
	n.reserved = reserved[text]
	t.entries[text] = n
	return n
}

// Lookup returns the interned Name for text, if any has been added, and
// whether it was found.
func (t *Table) Lookup(text string) (*Name, bool) {
	n, ok := t.entries[text]
	return n, ok
}

// copyText duplicates text into arena-owned storage so the returned Name
// does not keep the caller's original backing array (which, for the
// text parser, is a substring of the source text) alive indefinitely.
func (t *Table) copyText(text string) string {
	buf := arena.AllocSlice[byte](t.arena, len(text))
	copy(buf, text)
	if len(buf) == 0 {
		return ""
	}
	return unsafe.String(&buf[0], len(buf))
}

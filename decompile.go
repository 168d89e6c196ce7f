// Package decompile exposes the two public entry points for turning
// bytecode into source text and for pretty-printing source text back
// through the same printer (spec.md §6). Everything downstream of this
// file is an internal package: callers never see an Arena, a Lifter, or
// the reader's Prototype shape.
package decompile

import (
	"fmt"
	"io"
	"strings"

	"github.com/lua-family/delua/internal/arena"
	"github.com/lua-family/delua/internal/lifter"
	"github.com/lua-family/delua/internal/names"
	"github.com/lua-family/delua/internal/parser"
	"github.com/lua-family/delua/internal/printer"
	"github.com/lua-family/delua/internal/reader"
)

// flagPreamble is prepended verbatim, byte-for-byte, above the printed
// source whenever the flag fires (spec.md §6): either the reader saw one
// of the advisory conditions in §4.2, or the lifter raised its own flag
// (for example on an unresolvable upvalue capture descriptor, a read of
// an unknown register, or an opcode it does not lift).
const flagPreamble = "--[[\n\tinput function was flagged as potentially incompatible.\n\tplease private message a developer for support.\n]]\n"

// Decompile reads bytecode and writes reconstructed source text to out.
// It allocates a fresh Arena and name Table per call, so concurrent calls
// never share mutable state (spec.md §5).
//
// A read or lift failure is reported as one of *reader.BytecodeError,
// *reader.VersionMismatch, *reader.BytecodeMalformed, or
// *lifter.LiftFailure; an error from writing to out is returned as is.
func Decompile(bytecode []byte, out io.Writer) error {
	a := arena.New()
	tbl := names.New(a)

	result, err := reader.Read(a, tbl, bytecode)
	if err != nil {
		return err
	}

	l := lifter.New(a, tbl)
	block, err := l.Lift(result.Main)
	if err != nil {
		return err
	}

	if result.Flagged || l.Flagged() {
		if _, err := io.WriteString(out, flagPreamble); err != nil {
			return err
		}
	}

	return printer.New(out).Print(block)
}

// DecompileString is Decompile for callers that want the reconstructed
// source as a string rather than streamed to a writer.
func DecompileString(bytecode []byte) (string, error) {
	var sb strings.Builder
	if err := Decompile(bytecode, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Format parses source text with the bundled text parser and re-emits it
// through the same printer the decompiler uses, normalizing whitespace,
// comments, and quoting style (spec.md §6). Unlike Decompile, there is no
// flag concept here: a parse failure is returned as an error wrapping a
// *parser.ParseError.
func Format(source string, out io.Writer) error {
	a := arena.New()
	tbl := names.New(a)

	block, err := parser.Parse(source, tbl)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	return printer.New(out).Print(block)
}

// FormatString is Format for callers that want the result as a string.
func FormatString(source string) (string, error) {
	var sb strings.Builder
	if err := Format(source, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

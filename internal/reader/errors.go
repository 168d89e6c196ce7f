package reader

import (
	"fmt"

	"github.com/pkg/errors"
)

// BytecodeError is the in-band compile-time rejection reported by the
// status byte at the front of the stream (spec.md §4.1): status 0 means
// the rest of the preamble is a UTF-8 message from the compiler that
// produced the bytecode, not a malformed-stream condition.
type BytecodeError struct {
	Message string
}

func (e *BytecodeError) Error() string { return "compile error: " + e.Message }

// VersionMismatch is returned when the status byte names a bytecode
// version newer than this reader understands.
type VersionMismatch struct {
	Status byte
}

func (e *VersionMismatch) Error() string {
	return fmt.Sprintf("unsupported bytecode version (status byte %d)", e.Status)
}

// BytecodeMalformed covers every other way the stream can fail to parse:
// truncation, an unknown constant tag, or an index pointing outside the
// table it indexes into.
type BytecodeMalformed struct {
	Offset int
	Reason string
}

func (e *BytecodeMalformed) Error() string {
	return fmt.Sprintf("malformed bytecode at offset %d: %s", e.Offset, e.Reason)
}

func malformed(offset int, format string, args ...interface{}) error {
	return errors.WithStack(&BytecodeMalformed{Offset: offset, Reason: fmt.Sprintf(format, args...)})
}

func versionMismatch(status byte) error {
	return errors.WithStack(&VersionMismatch{Status: status})
}

func bytecodeError(msg string) error {
	return errors.WithStack(&BytecodeError{Message: msg})
}

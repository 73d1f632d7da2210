package subdoc

import (
	"errors"
	"fmt"
)

// Per-operation and batch-level failure kinds. Every error produced by the
// engine matches exactly one of these with errors.Is.
var (
	ErrPathNotFound = errors.New("path not found")
	ErrPathMismatch = errors.New("path mismatch")
	ErrPathInvalid  = errors.New("invalid path")
	ErrPathExists   = errors.New("path already exists")
	ErrInvalidValue = errors.New("invalid value")
	ErrNumberTooBig = errors.New("number too big")
	ErrInvalidCombo = errors.New("invalid combination of operations")
	ErrDocNotJSON   = errors.New("document is not JSON")

	// ErrKeyNotFound is returned by a Store when the document key is absent.
	ErrKeyNotFound = errors.New("key not found")
	// ErrCASMismatch is returned by a Store (and by the engine) when the
	// expected CAS does not match the stored one.
	ErrCASMismatch = errors.New("cas mismatch")
)

// PathError records the operation and path that failed.
type PathError struct {
	Op   Opcode
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ParseError describes a malformed path expression.
type ParseError struct {
	Path string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid path %q at offset %d: %s", e.Path, e.Pos, e.Msg)
}

// Is reports ParseError as ErrPathInvalid.
func (e *ParseError) Is(target error) bool { return target == ErrPathInvalid }

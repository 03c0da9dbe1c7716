package ownscript

import "fmt"

// Error is the interface shared by all ownscript errors.
type Error interface {
	error
	Position() Position
}

// baseError provides common error functionality.
type baseError struct {
	pos Position
	msg string
}

func (e *baseError) Position() Position { return e.pos }
func (e *baseError) Error() string {
	return fmt.Sprintf("%s: %s", e.pos, e.msg)
}

// ParseError represents a lexical or syntax error.
type ParseError struct {
	baseError
}

// NewParseError creates a new parse error.
func NewParseError(pos Position, msg string) *ParseError {
	return &ParseError{baseError: baseError{pos: pos, msg: msg}}
}

// NewParseErrorf creates a new parse error with formatting.
func NewParseErrorf(pos Position, format string, args ...any) *ParseError {
	return &ParseError{baseError: baseError{pos: pos, msg: fmt.Sprintf(format, args...)}}
}

// RuntimeError represents an error while executing a program. Cause holds
// the underlying tracker error, if any.
type RuntimeError struct {
	baseError
	Cause error
}

// NewRuntimeErrorf creates a new runtime error with formatting.
func NewRuntimeErrorf(pos Position, format string, args ...any) *RuntimeError {
	return &RuntimeError{baseError: baseError{pos: pos, msg: fmt.Sprintf(format, args...)}}
}

// WrapRuntimeError wraps an underlying error as a runtime error.
func WrapRuntimeError(pos Position, cause error) *RuntimeError {
	return &RuntimeError{
		baseError: baseError{pos: pos},
		Cause:     cause,
	}
}

func (e *RuntimeError) Error() string {
	if e.msg == "" && e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.pos, e.Cause)
	}
	base := e.baseError.Error()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

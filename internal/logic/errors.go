package logic

import (
	"errors"
	"fmt"
)

// SyntaxError reports branching logic that falls outside the supported
// grammar. Pos is a byte offset into Input.
type SyntaxError struct {
	Message string
	Input   string
	Pos     int
}

// Error implements the error interface
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("logic syntax error at offset %d: %s (in %q)", e.Pos, e.Message, e.Input)
}

// ErrorCode returns a stable code for this error kind
func (e *SyntaxError) ErrorCode() string {
	return "LOGIC001"
}

// EvalError reports a well-formed expression that cannot be evaluated
// against a particular record, e.g. arithmetic on a non-numeric value.
type EvalError struct {
	Message string
	Pos     int
}

// Error implements the error interface
func (e *EvalError) Error() string {
	return fmt.Sprintf("logic evaluation error at offset %d: %s", e.Pos, e.Message)
}

// IsSyntaxError checks whether err is, or wraps, a *SyntaxError
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// IsEvalError checks whether err is, or wraps, an *EvalError
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

func syntaxErrorf(input string, pos int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{
		Message: fmt.Sprintf(format, args...),
		Input:   input,
		Pos:     pos,
	}
}

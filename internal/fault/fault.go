// Package fault defines the error taxonomy of the simulation core.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies how the simulation reacts to an error.
type Code int

const (
	// CodeConfiguration marks setup mistakes that abort agent initialisation.
	CodeConfiguration Code = iota
	// CodeTransient marks planning failures that are retried next tick or
	// resolved by re-routing.
	CodeTransient
	// CodeUnimplemented marks behaviour that deliberately falls back to a safe default.
	CodeUnimplemented
	// CodeRace marks a lost concurrent update that is retried internally.
	CodeRace
)

func (c Code) String() string {
	switch c {
	case CodeConfiguration:
		return "configuration"
	case CodeTransient:
		return "transient"
	case CodeUnimplemented:
		return "unimplemented"
	case CodeRace:
		return "race"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error carries a Code, the operation that failed and an optional cause.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error [%s]: %s", e.Code, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Configuration creates a configuration error for op.
func Configuration(op, message string) *Error {
	return &Error{Code: CodeConfiguration, Op: op, Message: message}
}

// Transient creates a transient error for op.
func Transient(op, message string) *Error {
	return &Error{Code: CodeTransient, Op: op, Message: message}
}

// Wrap attaches code and op to err.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Message: "failed", Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return 0, false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeConfiguration
}

// IsTransient reports whether err is a transient error.
func IsTransient(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeTransient
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrRuntimeClosed is returned by any operation on a [Runtime], or on a
	// value created under it, after [Runtime.Close].
	ErrRuntimeClosed = errors.New("jsbridge: runtime closed")

	// ErrReleased is returned by operations on a proxy after [Object.Release].
	ErrReleased = errors.New("jsbridge: value released")

	// ErrUnsafeInteger indicates an integer outside the engine's safe integer
	// range, i.e. a magnitude above 2^53-1. It is a RangeError-class failure.
	ErrUnsafeInteger = errors.New("integer outside safe range")

	// ErrCycle indicates a container value that (transitively) contains itself.
	ErrCycle = errors.New("cyclic value")

	// ErrUnsupportedType indicates a value whose type has no mapping across
	// the boundary.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrTooLarge indicates an engine array whose length exceeds what may be
	// copied to the host, see [WithMemoryLimit].
	ErrTooLarge = errors.New("value too large")

	// ErrHostCallBudget is the cause of a [*CancelledError] raised when the
	// budget configured by [WithHostCallRateLimit] is exhausted.
	ErrHostCallBudget = errors.New("host call budget exhausted")
)

// ConversionError reports a value that could not cross the boundary, in
// either direction.
type ConversionError struct {
	// Value is the value that failed to convert, if available.
	Value any
	// Err is the underlying cause, typically one of [ErrUnsafeInteger],
	// [ErrCycle] or [ErrUnsupportedType].
	Err error
	// Detail is optional extra context, e.g. the parameter being converted.
	Detail string
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	msg := "jsbridge: cannot convert"
	if e.Value != nil {
		msg += fmt.Sprintf(" %T", e.Value)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// JSError is an uncaught exception thrown by JavaScript code.
type JSError struct {
	// Value is the thrown value converted to its host form (best effort).
	Value any
	// thrown is the original engine value, rethrown unchanged if this error
	// crosses back into the engine of rt.
	thrown goja.Value
	rt     *Runtime
	// Name is the error name, e.g. "TypeError". Empty for thrown
	// non-error values.
	Name string
	// Message is the error message, or the string form of a thrown
	// non-error value.
	Message string
	// Stack is the engine stack trace, if any.
	Stack string
}

// Error implements the error interface.
func (e *JSError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// CancelledError reports an evaluation aborted by [Runtime.Interrupt], an
// interrupt handler, a cancelled [context.Context], or an exhausted host call
// budget.
type CancelledError struct {
	// Reason is the value passed to the interrupt, if any.
	Reason any
	// Cause is the error that triggered cancellation, e.g. [context.Canceled].
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	switch {
	case e.Cause != nil:
		return "jsbridge: execution cancelled: " + e.Cause.Error()
	case e.Reason != nil:
		return fmt.Sprintf("jsbridge: execution cancelled: %v", e.Reason)
	default:
		return "jsbridge: execution cancelled"
	}
}

// Unwrap returns the underlying cause.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// MemoryError reports an evaluation that exceeded the configured memory
// ceiling ([WithMemoryLimit]).
type MemoryError struct {
	Limit uint64
	Used  uint64
	// Baseline is the process heap size sampled when the evaluation started.
	// Used is measured from it, so concurrent allocations by other runtimes
	// or goroutines count toward the limit.
	Baseline uint64
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("jsbridge: memory limit exceeded: used %d of %d bytes", e.Used, e.Limit)
}

// RecursionError reports an evaluation that exceeded the engine call stack
// ([WithMaxCallStackSize]) or the host/engine re-entrancy depth
// ([WithMaxDepth]).
type RecursionError struct {
	// Depth is the re-entrancy depth at which the limit was hit, or zero for
	// engine stack overflows.
	Depth int
	Cause error
}

// Error implements the error interface.
func (e *RecursionError) Error() string {
	if e.Depth > 0 {
		return fmt.Sprintf("jsbridge: maximum call depth exceeded (%d)", e.Depth)
	}
	if e.Cause != nil {
		return "jsbridge: maximum call stack size exceeded: " + e.Cause.Error()
	}
	return "jsbridge: maximum call stack size exceeded"
}

// Unwrap returns the underlying cause.
func (e *RecursionError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a value recovered from a panicking host function.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("jsbridge: host panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

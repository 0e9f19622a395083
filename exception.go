// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"errors"
	"reflect"

	"github.com/dop251/goja"
)

// JSErrorNamer may be implemented by host errors to choose the JavaScript
// error constructor they are thrown as, e.g. "TypeError". Unknown names use
// Error with the name property overridden.
type JSErrorNamer interface {
	JSErrorName() string
}

// translate converts an error returned by the engine to its host form:
// interrupts become the interrupt value, stack overflows become
// [*RecursionError], and exceptions become the host error they carry or a
// [*JSError].
func (r *Runtime) translate(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case *CancelledError:
			return v
		case *MemoryError:
			return v
		case error:
			return &CancelledError{Cause: v}
		default:
			return &CancelledError{Reason: v}
		}
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &RecursionError{Cause: err}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		if host := ex.Unwrap(); host != nil && r.hiddenError(ex.Value()) == nil {
			return host
		}
		return r.thrownError(ex.Value(), ex.String())
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &JSError{Name: "SyntaxError", Message: syntax.Error()}
	}

	var reference *goja.CompilerReferenceError
	if errors.As(err, &reference) {
		return &JSError{Name: "ReferenceError", Message: reference.Error()}
	}

	return err
}

// reasonError converts a promise rejection reason to an error.
func (r *Runtime) reasonError(reason goja.Value) error {
	return r.thrownError(reason, "")
}

// thrownError converts a thrown engine value to an error.
func (r *Runtime) thrownError(thrown goja.Value, trace string) error {
	if err := r.hiddenError(thrown); err != nil {
		return err
	}

	jsErr := &JSError{thrown: thrown, rt: r}
	if thrown == nil {
		thrown = goja.Undefined()
		jsErr.thrown = thrown
	}
	_ = r.vm.Try(func() { jsErr.Value, _ = r.defaultContext().export(thrown) })

	obj, ok := thrown.(*goja.Object)
	if !ok || obj.ClassName() != "Error" {
		jsErr.Message = thrown.String()
		jsErr.Stack = trace
		return jsErr
	}

	_ = r.vm.Try(func() {
		jsErr.Name = obj.Get("name").String()
		jsErr.Message = obj.Get("message").String()
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			jsErr.Stack = stack.String()
		}
	})
	if jsErr.Stack == "" {
		jsErr.Stack = trace
	}
	return jsErr
}

// hiddenError returns the host error attached to a thrown value, if any.
func (r *Runtime) hiddenError(thrown goja.Value) error {
	obj, ok := thrown.(*goja.Object)
	if !ok {
		return nil
	}
	if ref := r.hidden(obj, r.symbols.hostErr); ref != nil {
		err, _ := ref.value.(error)
		return err
	}
	return nil
}

// throw raises err in the engine. It must only be called from code running
// inside the engine, e.g. a binder trampoline.
func (r *Runtime) throw(err error) {
	panic(r.errorValue(err))
}

// errorValue returns the engine value thrown for err: the original value for
// a [*JSError] of this runtime, else a new error object that carries err.
func (r *Runtime) errorValue(err error) goja.Value {
	if jsErr, ok := err.(*JSError); ok && jsErr.thrown != nil && jsErr.rt == r {
		return jsErr.thrown
	}

	switch err.(type) {
	case *CancelledError, *MemoryError:
		// keeps the abort uncatchable once control returns to script
		r.vm.Interrupt(err)
	}

	name := errorName(err)
	ctor := r.intrinsics.errors[name]
	if ctor == nil {
		ctor = r.intrinsics.errors["Error"]
	}
	obj, e := r.vm.New(ctor, r.vm.ToValue(err.Error()))
	if e != nil {
		obj = r.vm.NewGoError(err)
	}
	if _, ok := r.intrinsics.errors[name]; !ok {
		_ = obj.DefineDataProperty("name", r.vm.ToValue(name), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	r.setHidden(obj, r.symbols.hostErr, &hostRef{value: err})
	return obj
}

// errorName picks the engine error constructor for a host error.
func errorName(err error) string {
	var namer JSErrorNamer
	if errors.As(err, &namer) {
		if name := namer.JSErrorName(); name != "" {
			return name
		}
	}
	var recursion *RecursionError
	switch {
	case errors.Is(err, ErrUnsafeInteger), errors.Is(err, ErrTooLarge), errors.As(err, &recursion):
		return "RangeError"
	case isConversionError(err):
		return "TypeError"
	}
	var jsErr *JSError
	if errors.As(err, &jsErr) && jsErr.Name != "" {
		return jsErr.Name
	}
	return "Error"
}

// recovered classifies a value recovered from a panicking host function.
// Engine panics (thrown values, exceptions and interrupts) must propagate and
// are reported with ok false.
func recovered(x any) (err error, ok bool) {
	switch v := x.(type) {
	case goja.Value, *goja.Exception, *goja.InterruptedError, *goja.StackOverflowError:
		return nil, false
	case callbackPanic:
		return v.err, true
	}
	if t := reflect.TypeOf(x); t != nil {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.PkgPath() == "github.com/dop251/goja" {
			return nil, false
		}
	}
	return &PanicError{Value: x}, true
}

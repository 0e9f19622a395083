// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

// signature describes the calling convention of a bound Go func.
//
// Supported shapes are func([*Context,] params...) followed by no results,
// (T), (error) or (T, error). A leading *Context parameter receives the
// calling context, and is not an argument.
type signature struct {
	typ         reflect.Type
	withContext bool
	params      []reflect.Type
	variadic    bool
	hasResult   bool
	hasErr      bool
}

func newSignature(typ reflect.Type) (*signature, error) {
	if typ.Kind() != reflect.Func {
		return nil, &ConversionError{Err: ErrUnsupportedType, Detail: typ.String() + " is not a func"}
	}
	sig := &signature{typ: typ, variadic: typ.IsVariadic()}
	for i := range typ.NumIn() {
		in := typ.In(i)
		if i == 0 && in == typeContext {
			sig.withContext = true
			continue
		}
		sig.params = append(sig.params, in)
	}
	switch typ.NumOut() {
	case 0:
	case 1:
		if typ.Out(0) == typeError {
			sig.hasErr = true
		} else {
			sig.hasResult = true
		}
	case 2:
		if typ.Out(1) != typeError {
			return nil, &ConversionError{Err: ErrUnsupportedType, Detail: typ.String() + ": second result must be error"}
		}
		sig.hasResult, sig.hasErr = true, true
	default:
		return nil, &ConversionError{Err: ErrUnsupportedType, Detail: typ.String() + ": too many results"}
	}
	return sig, nil
}

// arity is the number of required arguments.
func (s *signature) arity() int {
	if s.variadic {
		return len(s.params) - 1
	}
	return len(s.params)
}

// param returns the type argument i is coerced to.
func (s *signature) param(i int) reflect.Type {
	if s.variadic && i >= len(s.params)-1 {
		return s.params[len(s.params)-1].Elem()
	}
	return s.params[i]
}

func (s *signature) checkArity(name string, n int) error {
	want := s.arity()
	switch {
	case s.variadic && n < want:
		return fmt.Errorf("%s expects at least %d arguments, got %d", displayName(name), want, n)
	case !s.variadic && n != want:
		return fmt.Errorf("%s expects %d arguments, got %d", displayName(name), want, n)
	}
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "anonymous function"
	}
	return name
}

// bindFunction wraps fn as an engine function. A fn of type
// func(goja.FunctionCall) goja.Value is used as-is.
func (r *Runtime) bindFunction(c *Context, fn any, name string) (*goja.Object, error) {
	if raw, ok := fn.(func(goja.FunctionCall) goja.Value); ok {
		obj := r.vm.ToValue(raw).(*goja.Object)
		r.nameFunction(obj, name, -1)
		return obj, nil
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, &ConversionError{Value: fn, Err: ErrUnsupportedType, Detail: "not a func"}
	}
	sig, err := newSignature(rv.Type())
	if err != nil {
		return nil, err
	}

	obj := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return r.callHost(c, sig, rv, name, call.Arguments)
	}).(*goja.Object)
	r.nameFunction(obj, name, sig.arity())
	return obj, nil
}

// nameFunction sets the name and length of a native function. A negative
// length leaves length unchanged.
func (r *Runtime) nameFunction(obj *goja.Object, name string, length int) {
	_ = obj.DefineDataProperty("name", r.vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	if length >= 0 {
		_ = obj.DefineDataProperty("length", r.vm.ToValue(length), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
}

// callHost is the function trampoline. Failures are thrown into the engine
// as exactly one exception.
func (r *Runtime) callHost(c *Context, sig *signature, fn reflect.Value, name string, args []goja.Value) goja.Value {
	defer r.enterHost(name)()
	cur := c
	if n := len(r.frames); n != 0 {
		cur = r.frames[n-1].ctx
	}

	in := r.hostArgs(cur, sig, name, args)
	out, err := invoke(fn, in)
	if err == nil && sig.hasErr {
		err, _ = out[len(out)-1].Interface().(error)
	}
	if err != nil {
		r.throw(err)
	}
	if !sig.hasResult {
		return goja.Undefined()
	}
	v, err := cur.value(out[0].Interface())
	if err != nil {
		r.throw(err)
	}
	return v
}

// hostArgs checks arity and converts engine arguments to the parameter types
// of sig, throwing a TypeError on failure.
func (r *Runtime) hostArgs(c *Context, sig *signature, name string, args []goja.Value) []reflect.Value {
	if err := sig.checkArity(name, len(args)); err != nil {
		panic(r.vm.NewTypeError(err.Error()))
	}
	in := make([]reflect.Value, 0, len(args)+1)
	if sig.withContext {
		in = append(in, reflect.ValueOf(c))
	}
	for i, arg := range args {
		typ := sig.param(i)
		var host any
		if typ != typeGojaValue {
			var err error
			if host, err = c.export(arg); err != nil {
				r.throw(argumentError(name, i, err))
			}
		}
		v, err := c.coerce(host, arg, typ)
		if err != nil {
			r.throw(argumentError(name, i, err))
		}
		in = append(in, v)
	}
	return in
}

func argumentError(name string, i int, err error) error {
	detail := fmt.Sprintf("argument %d of %s", i+1, displayName(name))
	if ce, ok := err.(*ConversionError); ok {
		if ce.Detail != "" {
			detail += ": " + ce.Detail
		}
		return &ConversionError{Value: ce.Value, Err: ce.Err, Detail: detail}
	}
	return &ConversionError{Err: err, Detail: detail}
}

// invoke calls fn, recovering host panics as errors.
func invoke(fn reflect.Value, in []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if x := recover(); x != nil {
			e, host := recovered(x)
			if !host {
				panic(x)
			}
			out, err = nil, e
		}
	}()
	return fn.Call(in), nil
}

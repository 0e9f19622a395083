// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/dop251/goja"
)

// coerce converts a host value, as produced by [Context.export], to a value
// assignable to typ. raw is the engine value it came from, passed through
// when typ is [goja.Value].
func (c *Context) coerce(host any, raw goja.Value, typ reflect.Type) (reflect.Value, error) {
	if typ == typeGojaValue {
		if raw == nil {
			raw = goja.Undefined()
		}
		return reflect.ValueOf(&raw).Elem(), nil
	}

	if host != nil {
		if hv := reflect.ValueOf(host); hv.Type().AssignableTo(typ) {
			v := reflect.New(typ).Elem()
			v.Set(hv)
			return v, nil
		}
	}

	if host == nil || host == Null {
		switch typ.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, &ConversionError{Value: host, Err: ErrUnsupportedType, Detail: "want " + typ.String()}
	}

	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := integral(host)
		if !ok || reflect.Zero(typ).OverflowInt(n) {
			return reflect.Value{}, &ConversionError{Value: host, Err: ErrUnsupportedType, Detail: "want " + typ.String()}
		}
		return reflect.ValueOf(n).Convert(typ), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := integral(host)
		if !ok || n < 0 || reflect.Zero(typ).OverflowUint(uint64(n)) {
			return reflect.Value{}, &ConversionError{Value: host, Err: ErrUnsupportedType, Detail: "want " + typ.String()}
		}
		return reflect.ValueOf(uint64(n)).Convert(typ), nil

	case reflect.Float32, reflect.Float64:
		switch v := host.(type) {
		case int64:
			return reflect.ValueOf(float64(v)).Convert(typ), nil
		case float64:
			return reflect.ValueOf(v).Convert(typ), nil
		}

	case reflect.String:
		if s, ok := host.(string); ok {
			return reflect.ValueOf(s).Convert(typ), nil
		}

	case reflect.Bool:
		if b, ok := host.(bool); ok {
			return reflect.ValueOf(b).Convert(typ), nil
		}

	case reflect.Slice:
		if items, ok := host.([]any); ok {
			out := reflect.MakeSlice(typ, len(items), len(items))
			for i, item := range items {
				v, err := c.coerce(item, nil, typ.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.Index(i).Set(v)
			}
			return out, nil
		}

	case reflect.Array:
		if items, ok := host.([]any); ok && len(items) == typ.Len() {
			out := reflect.New(typ).Elem()
			for i, item := range items {
				v, err := c.coerce(item, nil, typ.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.Index(i).Set(v)
			}
			return out, nil
		}

	case reflect.Map:
		if m, ok := host.(map[string]any); ok && typ.Key().Kind() == reflect.String {
			out := reflect.MakeMapWithSize(typ, len(m))
			for k, item := range m {
				v, err := c.coerce(item, nil, typ.Elem())
				if err != nil {
					return reflect.Value{}, err
				}
				out.SetMapIndex(reflect.ValueOf(k).Convert(typ.Key()), v)
			}
			return out, nil
		}

	case reflect.Func:
		if fn, ok := host.(*Function); ok {
			return c.makeFunc(fn, typ), nil
		}
	}

	return reflect.Value{}, &ConversionError{Value: host, Err: ErrUnsupportedType, Detail: "want " + typ.String()}
}

// integral returns host as an int64 if it is an integral number.
func integral(host any) (int64, bool) {
	switch v := host.(type) {
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), true
		}
	case *big.Int:
		if v.IsInt64() {
			return v.Int64(), true
		}
	}
	return 0, false
}

// makeFunc adapts fn to the Go func type typ. Results are coerced to the
// declared result types. If typ has a trailing error result, call failures
// are returned through it; otherwise they propagate as a panic, which the
// function binder recovers.
func (c *Context) makeFunc(fn *Function, typ reflect.Type) reflect.Value {
	numOut := typ.NumOut()
	hasErr := numOut > 0 && typ.Out(numOut-1) == typeError
	return reflect.MakeFunc(typ, func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}
		if typ.IsVariadic() && len(in) > 0 {
			last := in[len(in)-1]
			args = args[:len(in)-1]
			for i := range last.Len() {
				args = append(args, last.Index(i).Interface())
			}
		}

		out := make([]reflect.Value, numOut)
		for i := range out {
			out[i] = reflect.Zero(typ.Out(i))
		}
		fail := func(err error) []reflect.Value {
			if !hasErr {
				panic(callbackPanic{err: err})
			}
			out[numOut-1] = reflect.ValueOf(&err).Elem()
			return out
		}

		result, err := fn.Call(args...)
		if err != nil {
			return fail(err)
		}
		if numOut > 0 && !(hasErr && numOut == 1) {
			v, err := c.coerce(result, nil, typ.Out(0))
			if err != nil {
				return fail(fmt.Errorf("result of %s: %w", fn.Name(), err))
			}
			out[0] = v
		}
		return out
	})
}

// callbackPanic carries an error out of a Go func that cannot return it.
type callbackPanic struct {
	err error
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"context"
	"errors"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/dop251/goja"
)

// maxSafeInteger is the largest integer n such that n and n+1 are exactly
// representable as an engine number.
const maxSafeInteger = 1<<53 - 1

const (
	// maxExportLength caps the length of an engine array copied to the host.
	maxExportLength = 1 << 22
	// exportElemBytes is the host size of one exported array element.
	exportElemBytes = 16
	// abortCheckInterval is the number of array elements exported between
	// cancellation checks.
	abortCheckInterval = 1 << 10
)

var (
	typeGojaValue = reflect.TypeFor[goja.Value]()
	typeError     = reflect.TypeFor[error]()
	typeContext   = reflect.TypeFor[*Context]()

	typeGojaPromise = reflect.TypeFor[*goja.Promise]()
)

// ToValue converts a host value to an engine value, using the runtime's
// default context for any proxies. See the package documentation for the
// mapping.
func (r *Runtime) ToValue(host any) (goja.Value, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	return r.defaultContext().value(host)
}

// FromValue converts an engine value to its host form, using the runtime's
// default context for any proxies.
func (r *Runtime) FromValue(v goja.Value) (any, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	c := r.defaultContext()
	return c.do(context.Background(), func() (any, error) { return c.export(v) })
}

// toEngine tracks the containers on the current conversion path.
type toEngine struct {
	c    *Context
	seen map[visit]struct{}
}

// visit identifies a slice or map value; slices sharing a backing array
// but differing in length are distinct.
type visit struct {
	ptr uintptr
	len int
	typ reflect.Type
}

func (c *Context) value(host any) (goja.Value, error) {
	return (&toEngine{c: c}).convert(host)
}

func (t *toEngine) convert(host any) (goja.Value, error) {
	r := t.c.rt
	switch v := host.(type) {
	case nil:
		return goja.Undefined(), nil
	case NullType:
		return goja.Null(), nil
	case goja.Value:
		return v, nil
	case *Object:
		return t.proxy(v)
	case *Function:
		if v == nil {
			return goja.Undefined(), nil
		}
		return t.proxy(v.Object)
	case *Promise:
		if v == nil {
			return goja.Undefined(), nil
		}
		return t.proxy(v.Object)
	case bool:
		return r.vm.ToValue(v), nil
	case string:
		return r.vm.ToValue(v), nil
	case float64:
		return r.vm.ToValue(v), nil
	case float32:
		return r.vm.ToValue(float64(v)), nil
	case *big.Int:
		if v == nil {
			return goja.Undefined(), nil
		}
		return r.vm.ToValue(v), nil
	case time.Time:
		return r.newDate(v)
	case error:
		return r.errorValue(v), nil
	}

	rv := reflect.ValueOf(host)
	switch rv.Kind() {
	case reflect.Bool:
		return r.vm.ToValue(rv.Bool()), nil
	case reflect.String:
		return r.vm.ToValue(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return r.intValue(host, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return r.uintValue(host, rv.Uint())
	case reflect.Float32, reflect.Float64:
		return r.vm.ToValue(rv.Float()), nil
	case reflect.Func:
		if rv.IsNil() {
			return goja.Undefined(), nil
		}
		fn, err := r.bindFunction(t.c, host, "")
		if err != nil {
			return nil, err
		}
		return fn, nil
	case reflect.Slice:
		if rv.IsNil() {
			return goja.Null(), nil
		}
		return t.array(host, rv)
	case reflect.Array:
		return t.array(host, rv)
	case reflect.Map:
		if rv.IsNil() {
			return goja.Null(), nil
		}
		return t.object(host, rv)
	case reflect.Pointer:
		if rv.IsNil() {
			return goja.Undefined(), nil
		}
		if class, ok := r.classes[rv.Type()]; ok {
			return class.instance(host), nil
		}
		if rv.Elem().Kind() != reflect.Struct {
			return t.convert(rv.Elem().Interface())
		}
	}

	if r.opts.opaqueFallback {
		return r.opaque(host), nil
	}
	return nil, &ConversionError{Value: host, Err: ErrUnsupportedType}
}

func (t *toEngine) proxy(o *Object) (goja.Value, error) {
	obj, err := o.engine()
	if err != nil {
		return nil, err
	}
	if o.ctx.rt != t.c.rt {
		return nil, &ConversionError{Value: o, Err: ErrUnsupportedType, Detail: "object belongs to another runtime"}
	}
	return obj, nil
}

func (r *Runtime) intValue(host any, n int64) (goja.Value, error) {
	if n > maxSafeInteger || n < -maxSafeInteger {
		if !r.opts.precisionLoss {
			return nil, &ConversionError{Value: host, Err: ErrUnsafeInteger}
		}
		return r.vm.ToValue(float64(n)), nil
	}
	return r.vm.ToValue(n), nil
}

func (r *Runtime) uintValue(host any, n uint64) (goja.Value, error) {
	if n > maxSafeInteger {
		if !r.opts.precisionLoss {
			return nil, &ConversionError{Value: host, Err: ErrUnsafeInteger}
		}
		return r.vm.ToValue(float64(n)), nil
	}
	return r.vm.ToValue(int64(n)), nil
}

func (r *Runtime) newDate(t time.Time) (goja.Value, error) {
	ms := float64(t.UnixNano()) / float64(time.Millisecond)
	return r.vm.New(r.intrinsics.date, r.vm.ToValue(ms))
}

func (t *toEngine) enter(host any, rv reflect.Value) (func(), error) {
	var key visit
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Len() == 0 {
			return func() {}, nil
		}
		key = visit{ptr: rv.Pointer(), len: rv.Len(), typ: rv.Type()}
	case reflect.Map:
		key = visit{ptr: rv.Pointer(), typ: rv.Type()}
	default:
		return func() {}, nil
	}
	if t.seen == nil {
		t.seen = make(map[visit]struct{})
	}
	if _, ok := t.seen[key]; ok {
		return nil, &ConversionError{Value: host, Err: ErrCycle}
	}
	t.seen[key] = struct{}{}
	return func() { delete(t.seen, key) }, nil
}

func (t *toEngine) array(host any, rv reflect.Value) (goja.Value, error) {
	leave, err := t.enter(host, rv)
	if err != nil {
		return nil, err
	}
	defer leave()
	items := make([]any, rv.Len())
	for i := range items {
		v, err := t.convert(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return t.c.rt.vm.NewArray(items...), nil
}

func (t *toEngine) object(host any, rv reflect.Value) (goja.Value, error) {
	if rv.Type().Key().Kind() != reflect.String {
		if t.c.rt.opts.opaqueFallback {
			return t.c.rt.opaque(host), nil
		}
		return nil, &ConversionError{Value: host, Err: ErrUnsupportedType, Detail: "map keys must be strings"}
	}
	leave, err := t.enter(host, rv)
	if err != nil {
		return nil, err
	}
	defer leave()
	keys := rv.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	obj := t.c.rt.vm.NewObject()
	for _, key := range keys {
		v, err := t.convert(rv.MapIndex(key).Interface())
		if err != nil {
			return nil, err
		}
		if err := obj.Set(key.String(), v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// opaque wraps host as an engine object that converts back to host.
func (r *Runtime) opaque(host any) *goja.Object {
	obj := r.vm.NewObject()
	r.setHidden(obj, r.symbols.opaque, &hostRef{value: host})
	return obj
}

// toHost tracks the engine containers on the current conversion path.
type toHost struct {
	c    *Context
	seen map[*goja.Object]struct{}
}

func (c *Context) export(v goja.Value) (any, error) {
	return (&toHost{c: c}).convert(v)
}

func (t *toHost) convert(v goja.Value) (any, error) {
	r := t.c.rt
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	if goja.IsNull(v) {
		return Null, nil
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return sym, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return exportPrimitive(v.Export()), nil
	}

	if ref := r.hidden(obj, r.symbols.instance); ref != nil {
		if ref.class != nil && r.classByID(ref.class.id) == ref.class {
			return ref.value, nil
		}
		return r.handles.wrap(t.c, obj), nil
	}
	if ref := r.hidden(obj, r.symbols.opaque); ref != nil {
		return ref.value, nil
	}
	if r.promiseRecord(obj) != nil {
		return &Promise{Object: r.handles.wrap(t.c, obj)}, nil
	}
	if obj.ExportType() == typeGojaPromise {
		return &Promise{Object: r.handles.wrap(t.c, obj)}, nil
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return &Function{Object: r.handles.wrap(t.c, obj)}, nil
	}

	switch obj.ClassName() {
	case "Array":
		return t.array(obj)
	case "Date":
		if tm, ok := obj.Export().(time.Time); ok {
			return tm, nil
		}
	case "Object":
		if proto := obj.Prototype(); proto == nil || proto == r.intrinsics.objectProto {
			return t.object(obj)
		}
	}
	return r.handles.wrap(t.c, obj), nil
}

// exportPrimitive normalizes numbers: integral values in the safe range
// become int64, other numbers float64.
func exportPrimitive(v any) any {
	switch n := v.(type) {
	case int64:
		if n > maxSafeInteger || n < -maxSafeInteger {
			return float64(n)
		}
	case float64:
		if n == math.Trunc(n) && math.Abs(n) <= maxSafeInteger && !(n == 0 && math.Signbit(n)) {
			return int64(n)
		}
	}
	return v
}

func (t *toHost) enter(obj *goja.Object) (func(), error) {
	if t.seen == nil {
		t.seen = make(map[*goja.Object]struct{})
	}
	if _, ok := t.seen[obj]; ok {
		return nil, &ConversionError{Value: t.c.rt.handles.wrap(t.c, obj), Err: ErrCycle}
	}
	t.seen[obj] = struct{}{}
	return func() { delete(t.seen, obj) }, nil
}

func (t *toHost) array(obj *goja.Object) (any, error) {
	leave, err := t.enter(obj)
	if err != nil {
		return nil, err
	}
	defer leave()
	r := t.c.rt
	n := obj.Get("length").ToInteger()
	if n < 0 || n > r.maxExportLength() {
		return nil, &ConversionError{
			Value:  r.handles.wrap(t.c, obj),
			Err:    ErrTooLarge,
			Detail: "array length " + strconv.FormatInt(n, 10),
		}
	}
	items := make([]any, n)
	for i := range items {
		if i%abortCheckInterval == 0 {
			if err := r.checkAbort(); err != nil {
				return nil, err
			}
		}
		v, err := t.convert(obj.Get(strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

// maxExportLength is the longest engine array that may be copied to the
// host, bounded by the memory limit when one is set.
func (r *Runtime) maxExportLength() int64 {
	limit := int64(maxExportLength)
	if m := r.opts.memoryLimit; m != 0 && m/exportElemBytes < uint64(limit) {
		limit = int64(m / exportElemBytes)
	}
	return limit
}

func (t *toHost) object(obj *goja.Object) (any, error) {
	leave, err := t.enter(obj)
	if err != nil {
		return nil, err
	}
	defer leave()
	keys := obj.Keys()
	m := make(map[string]any, len(keys))
	for _, key := range keys {
		v, err := t.convert(obj.Get(key))
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
	return m, nil
}

// hidden returns the hostRef stored on obj itself under sym, if any. A ref
// reached through the prototype chain belongs to another object.
func (r *Runtime) hidden(obj *goja.Object, sym *goja.Symbol) (ref *hostRef) {
	defer func() {
		// proxies may throw from their traps
		if recover() != nil {
			ref = nil
		}
	}()
	ref = lookupRef(obj, sym)
	if ref == nil {
		return nil
	}
	if proto := obj.Prototype(); proto != nil && lookupRef(proto, sym) == ref {
		return nil
	}
	return ref
}

func lookupRef(obj *goja.Object, sym *goja.Symbol) *hostRef {
	v := obj.GetSymbol(sym)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	ref, _ := v.Export().(*hostRef)
	return ref
}

func (r *Runtime) setHidden(obj *goja.Object, sym *goja.Symbol, ref *hostRef) {
	_ = obj.DefineDataPropertySymbol(sym, r.vm.ToValue(ref), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
}

// isConversionError reports whether err is (or wraps) a *ConversionError.
func isConversionError(err error) bool {
	var target *ConversionError
	return errors.As(err, &target)
}

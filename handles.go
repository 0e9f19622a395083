// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"context"
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"
)

// NullType is the type of [Null].
type NullType struct{}

// Null is the host form of the JavaScript null value. The host nil maps to
// undefined.
var Null NullType

// String returns "null".
func (NullType) String() string { return "null" }

// hostRef carries a Go value on an engine object under a hidden symbol.
type hostRef struct {
	value any
	class *JSClass
}

type (
	// Object is a host-side reference to an engine object. It holds one
	// reference to the engine object until [Object.Release] is called, or the
	// Object is garbage collected. The same engine object always maps to the
	// same live Object.
	Object struct {
		ctx *Context
		obj *goja.Object
	}

	// Function is an [Object] that is callable.
	Function struct {
		*Object
	}

	// Promise is an [Object] that is a promise, either one created through
	// the bridge Promise constructor or an engine-native one (e.g. the result
	// of an async function).
	Promise struct {
		*Object
	}
)

// Context returns the context the object was first observed in.
func (o *Object) Context() *Context {
	return o.ctx
}

// Value returns the underlying engine value, or nil if the object has been
// released.
func (o *Object) Value() goja.Value {
	if o == nil || o.obj == nil {
		return nil
	}
	return o.obj
}

func (o *Object) engine() (*goja.Object, error) {
	if o == nil || o.obj == nil {
		return nil, ErrReleased
	}
	if o.ctx.rt.closed {
		return nil, ErrRuntimeClosed
	}
	return o.obj, nil
}

// Get returns the named property, converted to its host form.
func (o *Object) Get(name string) (any, error) {
	obj, err := o.engine()
	if err != nil {
		return nil, err
	}
	return o.ctx.do(context.Background(), func() (any, error) {
		return o.ctx.export(obj.Get(name))
	})
}

// Set converts value and assigns it to the named property.
func (o *Object) Set(name string, value any) error {
	obj, err := o.engine()
	if err != nil {
		return err
	}
	_, err = o.ctx.do(context.Background(), func() (any, error) {
		v, err := o.ctx.value(value)
		if err != nil {
			return nil, err
		}
		return nil, obj.Set(name, v)
	})
	return err
}

// Keys returns the own enumerable string keys of the object.
func (o *Object) Keys() ([]string, error) {
	obj, err := o.engine()
	if err != nil {
		return nil, err
	}
	var keys []string
	_, err = o.ctx.do(context.Background(), func() (any, error) {
		keys = obj.Keys()
		return nil, nil
	})
	return keys, err
}

// ClassName returns the object's Symbol.toStringTag if it is a string,
// e.g. "Map", "Promise" or a bound class name, else the engine class name,
// e.g. "Object", "Array" or "Error". It returns an empty string if the
// object has been released.
func (o *Object) ClassName() string {
	if o == nil || o.obj == nil {
		return ""
	}
	if !o.ctx.rt.closed {
		var tag string
		_ = o.ctx.rt.vm.Try(func() {
			if v := o.obj.GetSymbol(goja.SymToStringTag); v != nil {
				tag, _ = v.Export().(string)
			}
		})
		if tag != "" {
			return tag
		}
	}
	return o.obj.ClassName()
}

// Release drops the reference to the engine object. It is safe to call more
// than once; later operations fail with [ErrReleased].
func (o *Object) Release() {
	if o == nil || o.obj == nil {
		return
	}
	o.ctx.rt.handles.release(o)
	o.obj = nil
}

// String returns the engine string form of the object.
func (o *Object) String() string {
	if o == nil || o.obj == nil {
		return "[released]"
	}
	if o.ctx.rt.closed {
		return "[closed]"
	}
	var s string
	if ex := o.ctx.rt.vm.Try(func() { s = o.obj.String() }); ex != nil {
		return "[" + o.obj.ClassName() + "]"
	}
	return s
}

// Name returns the function name.
func (f *Function) Name() string {
	if f == nil || f.obj == nil || f.ctx.rt.closed {
		return ""
	}
	var name string
	_ = f.ctx.rt.vm.Try(func() { name = f.obj.Get("name").String() })
	return name
}

// Call calls the function with an undefined receiver. Arguments are
// converted to engine values, and the result to its host form.
func (f *Function) Call(args ...any) (any, error) {
	return f.CallContext(context.Background(), args...)
}

// CallContext is [Function.Call] with a context. Cancelling ctx aborts the
// call with a [*CancelledError].
func (f *Function) CallContext(ctx context.Context, args ...any) (any, error) {
	obj, err := f.engine()
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(obj)
	if !ok {
		return nil, &ConversionError{Value: f, Err: ErrUnsupportedType, Detail: "not callable"}
	}
	return f.ctx.do(ctx, func() (any, error) {
		in := make([]goja.Value, len(args))
		for i, arg := range args {
			v, err := f.ctx.value(arg)
			if err != nil {
				return nil, err
			}
			in[i] = v
		}
		result, err := fn(goja.Undefined(), in...)
		if err != nil {
			return nil, err
		}
		return f.ctx.export(result)
	})
}

// State returns the settlement state of the promise.
func (p *Promise) State() PromiseState {
	if p == nil || p.obj == nil || p.ctx.rt.closed {
		return PromisePending
	}
	if rec := p.ctx.rt.promiseRecord(p.obj); rec != nil {
		return rec.state
	}
	if native, ok := p.obj.Export().(*goja.Promise); ok {
		switch native.State() {
		case goja.PromiseStateFulfilled:
			return PromiseFulfilled
		case goja.PromiseStateRejected:
			return PromiseRejected
		}
	}
	return PromisePending
}

// Result returns the fulfillment value of a fulfilled promise, or the
// rejection reason of a rejected promise as an error. A pending promise
// returns (nil, nil).
func (p *Promise) Result() (any, error) {
	obj, err := p.engine()
	if err != nil {
		return nil, err
	}
	var (
		state  PromiseState
		result goja.Value
	)
	if rec := p.ctx.rt.promiseRecord(obj); rec != nil {
		state, result = rec.state, rec.result
	} else if native, ok := obj.Export().(*goja.Promise); ok {
		state, result = p.State(), native.Result()
	}
	switch state {
	case PromiseFulfilled:
		return p.ctx.do(context.Background(), func() (any, error) {
			return p.ctx.export(result)
		})
	case PromiseRejected:
		return nil, p.ctx.rt.reasonError(result)
	default:
		return nil, nil
	}
}

// Then registers callbacks run when the promise settles, like the
// JavaScript then method, and returns the derived promise. Either callback
// may be nil. Callbacks run while the microtask queue drains, e.g. before
// [Context.Eval] returns, or during [Runtime.RunJobs].
func (p *Promise) Then(onFulfilled func(value any) (any, error), onRejected func(reason error) (any, error)) (*Promise, error) {
	obj, err := p.engine()
	if err != nil {
		return nil, err
	}
	result, err := p.ctx.do(context.Background(), func() (any, error) {
		args := []goja.Value{goja.Undefined(), goja.Undefined()}
		if onFulfilled != nil {
			fn, err := p.ctx.rt.bindFunction(p.ctx, onFulfilled, "")
			if err != nil {
				return nil, err
			}
			args[0] = fn
		}
		if onRejected != nil {
			fn, err := p.ctx.rt.bindFunction(p.ctx, func(reason goja.Value) (any, error) {
				return onRejected(p.ctx.rt.reasonError(reason))
			}, "")
			if err != nil {
				return nil, err
			}
			args[1] = fn
		}
		then, ok := goja.AssertFunction(obj.Get("then"))
		if !ok {
			return nil, &ConversionError{Value: p, Err: ErrUnsupportedType, Detail: "then is not callable"}
		}
		derived, err := then(obj, args...)
		if err != nil {
			return nil, err
		}
		return p.ctx.export(derived)
	})
	if err != nil {
		return nil, err
	}
	derived, ok := result.(*Promise)
	if !ok {
		return nil, &ConversionError{Value: result, Err: ErrUnsupportedType, Detail: "then did not return a promise"}
	}
	return derived, nil
}

// handleTable maps engine objects to their live proxies. Keys and values are
// weak, so the table keeps neither side alive.
type handleTable struct {
	mu   sync.Mutex
	live map[weak.Pointer[goja.Object]]weak.Pointer[Object]
}

func newHandleTable() *handleTable {
	return &handleTable{live: make(map[weak.Pointer[goja.Object]]weak.Pointer[Object])}
}

// wrap returns the live proxy for obj, creating one if needed.
func (t *handleTable) wrap(ctx *Context, obj *goja.Object) *Object {
	key := weak.Make(obj)
	t.mu.Lock()
	defer t.mu.Unlock()
	if wp, ok := t.live[key]; ok {
		if p := wp.Value(); p != nil && p.obj != nil {
			return p
		}
	}
	p := &Object{ctx: ctx, obj: obj}
	t.live[key] = weak.Make(p)
	runtime.AddCleanup(p, t.forget, key)
	return p
}

// forget removes the entry for key once its proxy has been collected.
func (t *handleTable) forget(key weak.Pointer[goja.Object]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if wp, ok := t.live[key]; ok && wp.Value() == nil {
		delete(t.live, key)
	}
}

func (t *handleTable) release(p *Object) {
	key := weak.Make(p.obj)
	t.mu.Lock()
	defer t.mu.Unlock()
	if wp, ok := t.live[key]; ok && wp.Value() == p {
		delete(t.live, key)
	}
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *handleTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.live)
}

// instanceTable maps host pointers of bound instances to their engine
// objects. The engine side is weak: an entry is removed when its engine
// object is collected, which also releases the host pointer.
type instanceTable struct {
	mu   sync.Mutex
	live map[any]weak.Pointer[goja.Object]
}

func newInstanceTable() *instanceTable {
	return &instanceTable{live: make(map[any]weak.Pointer[goja.Object])}
}

func (t *instanceTable) lookup(host any) *goja.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	if wp, ok := t.live[host]; ok {
		return wp.Value()
	}
	return nil
}

func (t *instanceTable) bind(host any, obj *goja.Object) {
	t.mu.Lock()
	t.live[host] = weak.Make(obj)
	t.mu.Unlock()
	runtime.AddCleanup(obj, t.forget, host)
}

func (t *instanceTable) forget(host any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if wp, ok := t.live[host]; ok && wp.Value() == nil {
		delete(t.live, host)
	}
}

func (t *instanceTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *instanceTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.live)
}

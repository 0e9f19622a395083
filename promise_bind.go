// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"errors"
	"strconv"

	"github.com/dop251/goja"
)

// installPromise replaces the global Promise with the bridge implementation,
// whose lifecycle is observable by [PromiseHook]. Promises created
// internally by the engine, e.g. by async functions, remain engine-native;
// they interoperate as thenables.
func (r *Runtime) installPromise() error {
	vm := r.vm
	v, err := r.classFactory(goja.Undefined(), vm.ToValue("Promise"), vm.ToValue(r.promiseInit))
	if err != nil {
		return err
	}
	ctor, ok := v.(*goja.Object)
	if !ok {
		return errors.New("class factory did not return a constructor")
	}
	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		return errors.New("promise constructor has no prototype")
	}
	r.nameFunction(ctor, "Promise", 1)
	r.intrinsics.promise, r.intrinsics.promiseProto = ctor, proto

	for _, m := range [...]struct {
		target *goja.Object
		name   string
		length int
		fn     func(goja.FunctionCall) goja.Value
	}{
		{proto, "then", 2, r.promiseThen},
		{proto, "catch", 1, r.promiseCatch},
		{proto, "finally", 1, r.promiseFinally},
		{ctor, "resolve", 1, r.promiseResolveStatic},
		{ctor, "reject", 1, r.promiseReject},
		{ctor, "all", 1, r.promiseAll},
		{ctor, "allSettled", 1, r.promiseAllSettled},
		{ctor, "race", 1, r.promiseRace},
		{ctor, "any", 1, r.promiseAny},
		{ctor, "withResolvers", 0, r.promiseWithResolvers},
		{ctor, "try", 1, r.promiseTry},
	} {
		fn := vm.ToValue(m.fn).(*goja.Object)
		r.nameFunction(fn, m.name, m.length)
		if err := m.target.DefineDataProperty(m.name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return err
		}
	}
	if err := proto.DefineDataPropertySymbol(goja.SymToStringTag, vm.ToValue("Promise"), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}

	return r.intrinsics.global.DefineDataProperty("Promise", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// must returns v, or rethrows err in the engine.
func must(v goja.Value, err error) goja.Value {
	if err != nil {
		panic(err)
	}
	return v
}

func describe(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}

// promiseInit is the constructor body: new Promise(executor).
func (r *Runtime) promiseInit(call goja.FunctionCall) goja.Value {
	this, ok := call.Argument(0).(*goja.Object)
	if !ok {
		panic(r.vm.NewTypeError("Promise: invalid receiver"))
	}
	arg := call.Argument(1).ToObject(r.vm).Get("0")
	executor, ok := goja.AssertFunction(arg)
	if !ok {
		panic(r.vm.NewTypeError("Promise resolver %s is not a function", describe(arg)))
	}
	rec := r.newPromise(this, nil)
	s := &resolvers{rt: r, rec: rec}
	resolve, reject := s.values()
	if _, err := executor(goja.Undefined(), resolve, reject); err != nil {
		ex, ok := err.(*goja.Exception)
		if !ok {
			panic(err)
		}
		s.reject(ex.Value())
	}
	return goja.Undefined()
}

// thisPromise returns the record of a method receiver.
func (r *Runtime) thisPromise(this goja.Value, method string) *promiseRecord {
	obj, _ := this.(*goja.Object)
	if rec := r.promiseRecord(obj); rec != nil {
		return rec
	}
	panic(r.vm.NewTypeError("Method Promise.prototype.%s called on incompatible receiver %s", method, describe(this)))
}

// promiseResolve returns the record for v: v itself if it is a bridge
// promise, else a new promise resolved with v.
func (r *Runtime) promiseResolve(v goja.Value) *promiseRecord {
	if obj, ok := v.(*goja.Object); ok {
		if rec := r.promiseRecord(obj); rec != nil {
			return rec
		}
	}
	rec := r.newPromise(nil, nil)
	r.resolve(rec, v)
	return rec
}

// chain registers handler on rec and returns the derived promise.
func (r *Runtime) chain(rec *promiseRecord, handler reactionFunc) *promiseRecord {
	derived := r.newPromise(nil, rec)
	r.then(rec, handler, derived)
	return derived
}

func (r *Runtime) promiseThen(call goja.FunctionCall) goja.Value {
	rec := r.thisPromise(call.This, "then")
	onFulfilled, _ := goja.AssertFunction(call.Argument(0))
	onRejected, _ := goja.AssertFunction(call.Argument(1))
	return r.chain(rec, func(v goja.Value, rejected bool) (goja.Value, bool, error) {
		handler := onFulfilled
		if rejected {
			handler = onRejected
		}
		if handler == nil {
			return v, rejected, nil
		}
		return r.callJS(handler, goja.Undefined(), v)
	}).obj
}

// invokeThen calls this.then(onFulfilled, onRejected).
func (r *Runtime) invokeThen(this goja.Value, onFulfilled, onRejected goja.Value) goja.Value {
	obj := this.ToObject(r.vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		panic(r.vm.NewTypeError("%s is not a thenable", describe(this)))
	}
	return must(then(obj, onFulfilled, onRejected))
}

func (r *Runtime) promiseCatch(call goja.FunctionCall) goja.Value {
	return r.invokeThen(call.This, goja.Undefined(), call.Argument(0))
}

func (r *Runtime) promiseFinally(call goja.FunctionCall) goja.Value {
	onFinally, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return r.invokeThen(call.This, call.Argument(0), call.Argument(0))
	}
	// waits for the result of onFinally, then passes the original outcome on
	settled := func(outcome goja.Value, rejected bool) goja.Value {
		waiting := r.promiseResolve(must(onFinally(goja.Undefined())))
		return r.chain(waiting, func(v goja.Value, failed bool) (goja.Value, bool, error) {
			if failed {
				return v, true, nil
			}
			return outcome, rejected, nil
		}).obj
	}
	thenFinally := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return settled(call.Argument(0), false)
	})
	catchFinally := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return settled(call.Argument(0), true)
	})
	return r.invokeThen(call.This, thenFinally, catchFinally)
}

func (r *Runtime) promiseResolveStatic(call goja.FunctionCall) goja.Value {
	return r.promiseResolve(call.Argument(0)).obj
}

func (r *Runtime) promiseReject(call goja.FunctionCall) goja.Value {
	rec := r.newPromise(nil, nil)
	r.settle(rec, PromiseRejected, call.Argument(0))
	return rec.obj
}

func (r *Runtime) promiseWithResolvers(goja.FunctionCall) goja.Value {
	rec := r.newPromise(nil, nil)
	resolve, reject := (&resolvers{rt: r, rec: rec}).values()
	obj := r.vm.NewObject()
	_ = obj.Set("promise", rec.obj)
	_ = obj.Set("resolve", resolve)
	_ = obj.Set("reject", reject)
	return obj
}

func (r *Runtime) promiseTry(call goja.FunctionCall) goja.Value {
	rec := r.newPromise(nil, nil)
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		r.settle(rec, PromiseRejected, r.vm.NewTypeError("%s is not a function", describe(call.Argument(0))))
		return rec.obj
	}
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = call.Arguments[1:]
	}
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		ex, ok := err.(*goja.Exception)
		if !ok {
			panic(err)
		}
		r.settle(rec, PromiseRejected, ex.Value())
		return rec.obj
	}
	r.resolve(rec, v)
	return rec.obj
}

// items collects the elements of an iterable. An exception thrown while
// iterating is returned as the rejection reason.
func (r *Runtime) items(iterable goja.Value) ([]goja.Value, goja.Value, bool) {
	v, err := r.intrinsics.arrayFrom(r.intrinsics.array, iterable)
	if err != nil {
		ex, ok := err.(*goja.Exception)
		if !ok {
			panic(err)
		}
		return nil, ex.Value(), false
	}
	arr := v.ToObject(r.vm)
	items := make([]goja.Value, arr.Get("length").ToInteger())
	for i := range items {
		items[i] = arr.Get(strconv.Itoa(i))
	}
	return items, nil, true
}

func (r *Runtime) newArray(values []goja.Value) *goja.Object {
	items := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			v = goja.Undefined()
		}
		items[i] = v
	}
	return r.vm.NewArray(items...)
}

// combine runs a combinator over the elements of iterable. each is called
// with the outcome of every element and returns the value recorded for it,
// or stop once it has settled the result. done is called with the recorded
// values once every element has settled and none stopped.
func (r *Runtime) combine(iterable goja.Value, each func(result *promiseRecord, v goja.Value, rejected bool) (record goja.Value, stop bool), done func(result *promiseRecord, values []goja.Value)) goja.Value {
	result := r.newPromise(nil, nil)
	items, reason, ok := r.items(iterable)
	if !ok {
		r.settle(result, PromiseRejected, reason)
		return result.obj
	}
	values := make([]goja.Value, len(items))
	remaining := len(items)
	if remaining == 0 {
		done(result, values)
		return result.obj
	}
	for i, item := range items {
		src := r.promiseResolve(item)
		r.chain(src, func(v goja.Value, rejected bool) (goja.Value, bool, error) {
			record, stop := each(result, v, rejected)
			if stop {
				return goja.Undefined(), false, nil
			}
			values[i] = record
			if remaining--; remaining == 0 {
				done(result, values)
			}
			return goja.Undefined(), false, nil
		})
	}
	return result.obj
}

func (r *Runtime) promiseAll(call goja.FunctionCall) goja.Value {
	return r.combine(call.Argument(0),
		func(result *promiseRecord, v goja.Value, rejected bool) (goja.Value, bool) {
			if rejected {
				r.settle(result, PromiseRejected, v)
			}
			return v, rejected
		},
		func(result *promiseRecord, values []goja.Value) {
			r.settle(result, PromiseFulfilled, r.newArray(values))
		})
}

func (r *Runtime) promiseAllSettled(call goja.FunctionCall) goja.Value {
	return r.combine(call.Argument(0),
		func(_ *promiseRecord, v goja.Value, rejected bool) (goja.Value, bool) {
			obj := r.vm.NewObject()
			if rejected {
				_ = obj.Set("status", "rejected")
				_ = obj.Set("reason", v)
			} else {
				_ = obj.Set("status", "fulfilled")
				_ = obj.Set("value", v)
			}
			return obj, false
		},
		func(result *promiseRecord, values []goja.Value) {
			r.settle(result, PromiseFulfilled, r.newArray(values))
		})
}

func (r *Runtime) promiseRace(call goja.FunctionCall) goja.Value {
	return r.combine(call.Argument(0),
		func(result *promiseRecord, v goja.Value, rejected bool) (goja.Value, bool) {
			if rejected {
				r.settle(result, PromiseRejected, v)
			} else {
				r.settle(result, PromiseFulfilled, v)
			}
			return v, true
		},
		func(*promiseRecord, []goja.Value) {})
}

func (r *Runtime) promiseAny(call goja.FunctionCall) goja.Value {
	return r.combine(call.Argument(0),
		func(result *promiseRecord, v goja.Value, rejected bool) (goja.Value, bool) {
			if !rejected {
				r.settle(result, PromiseFulfilled, v)
			}
			return v, !rejected
		},
		func(result *promiseRecord, reasons []goja.Value) {
			r.settle(result, PromiseRejected, r.aggregateError(reasons))
		})
}
func (r *Runtime) aggregateError(reasons []goja.Value) goja.Value {
	const message = "All promises were rejected"
	errs := r.newArray(reasons)
	if ctor := r.intrinsics.errors["AggregateError"]; ctor != nil {
		if obj, err := r.vm.New(ctor, errs, r.vm.ToValue(message)); err == nil {
			return obj
		}
	}
	obj, err := r.vm.New(r.intrinsics.errors["Error"], r.vm.ToValue(message))
	if err != nil {
		panic(err)
	}
	_ = obj.DefineDataProperty("name", r.vm.ToValue("AggregateError"), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	_ = obj.DefineDataProperty("errors", errs, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	return obj
}

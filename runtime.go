// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// classFactorySource builds a named class whose constructor delegates to a
// host init function. Class constructors throw a TypeError when invoked
// without new, and the instance is unreachable if init throws.
const classFactorySource = `(function (name, init) {
	return ({ [name]: class { constructor(...args) { init(this, args); } } })[name];
})`

// Runtime owns one engine heap. It holds the class registry, the promise
// hook, the microtask queue for bridge promises, and the module registry.
//
// A Runtime is not safe for concurrent use, with the exception of
// [Runtime.Interrupt].
type Runtime struct {
	vm         *goja.Runtime
	opts       *runtimeOptions
	logger     *logiface.Logger[logiface.Event]
	limiter    *catrate.Limiter
	registry   *require.Registry
	intrinsics intrinsics
	symbols    struct {
		instance *goja.Symbol
		opaque   *goja.Symbol
		promise  *goja.Symbol
		hostErr  *goja.Symbol
	}
	classFactory goja.Callable

	classes     map[reflect.Type]*JSClass
	classIDs    map[uint32]*JSClass
	nextClassID uint32

	hook      PromiseHook
	jobs      []job
	draining  bool
	unhandled []*promiseRecord

	handles   *handleTable
	instances *instanceTable
	modules   map[string]*goja.Object

	frames     []*frame
	depth      int
	closed     bool
	defaultCtx *Context
}

// intrinsics are engine built-ins captured at construction, so that later
// modification of globals by scripts cannot affect the bridge.
type intrinsics struct {
	global       *goja.Object
	objectProto  *goja.Object
	array        *goja.Object
	arrayFrom    goja.Callable
	date         *goja.Object
	errors       map[string]*goja.Object
	promise      *goja.Object
	promiseProto *goja.Object
	require      *goja.Object
}

// MemoryUsage is a snapshot of the resources held by a [Runtime].
type MemoryUsage struct {
	// HeapObjectBytes is the process-wide Go heap object size. The engine
	// heap is part of the Go heap.
	HeapObjectBytes uint64
	// Handles is the number of live engine object proxies.
	Handles int
	// BoundInstances is the number of live bound class instances.
	BoundInstances int
	Classes        int
	Modules        int
	PendingJobs    int
	// Contexts is the number of contexts currently executing.
	Contexts int
}

// NewRuntime creates a new engine heap configured by opts.
func NewRuntime(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("jsbridge: %w", err)
	}

	r := &Runtime{
		vm:        goja.New(),
		opts:      cfg,
		logger:    cfg.logger,
		classes:   make(map[reflect.Type]*JSClass),
		classIDs:  make(map[uint32]*JSClass),
		handles:   newHandleTable(),
		instances: newInstanceTable(),
		modules:   make(map[string]*goja.Object),
	}
	r.vm.SetMaxCallStackSize(cfg.maxCallStackSize)

	if len(cfg.hostCallRates) != 0 {
		if r.limiter, err = newLimiter(cfg.hostCallRates); err != nil {
			return nil, fmt.Errorf("jsbridge: %w", err)
		}
	}

	if err := r.init(); err != nil {
		return nil, fmt.Errorf("jsbridge: %w", err)
	}

	return r, nil
}

func (r *Runtime) init() error {
	vm := r.vm
	r.symbols.instance = goja.NewSymbol("jsbridge.instance")
	r.symbols.opaque = goja.NewSymbol("jsbridge.opaque")
	r.symbols.promise = goja.NewSymbol("jsbridge.promise")
	r.symbols.hostErr = goja.NewSymbol("jsbridge.hostError")

	global := vm.GlobalObject()
	r.intrinsics.global = global
	r.intrinsics.objectProto = global.Get("Object").ToObject(vm).Get("prototype").ToObject(vm)
	r.intrinsics.array = global.Get("Array").ToObject(vm)
	r.intrinsics.date = global.Get("Date").ToObject(vm)
	from, ok := goja.AssertFunction(r.intrinsics.array.Get("from"))
	if !ok {
		return errors.New("Array.from is not a function")
	}
	r.intrinsics.arrayFrom = from

	r.intrinsics.errors = make(map[string]*goja.Object)
	for _, name := range [...]string{"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "EvalError", "URIError", "AggregateError"} {
		if ctor, ok := global.Get(name).(*goja.Object); ok {
			r.intrinsics.errors[name] = ctor
		}
	}

	factory, err := vm.RunString(classFactorySource)
	if err != nil {
		return err
	}
	if r.classFactory, ok = goja.AssertFunction(factory); !ok {
		return errors.New("class factory is not a function")
	}

	if err := r.installPromise(); err != nil {
		return err
	}

	if err := r.enableRequire(); err != nil {
		return err
	}

	if r.opts.console {
		if err := r.installConsole(); err != nil {
			return err
		}
	}
	return nil
}

// Logger returns the configured logger, which may be nil.
func (r *Runtime) Logger() *logiface.Logger[logiface.Event] {
	return r.logger
}

// Class returns the binding registered for the host type typ, which is a
// pointer to a struct type.
func (r *Runtime) Class(typ reflect.Type) (*JSClass, bool) {
	class, ok := r.classes[typ]
	return class, ok
}

func (r *Runtime) classByID(id uint32) *JSClass {
	return r.classIDs[id]
}

// Interrupt aborts the running evaluation with a [*CancelledError] carrying
// reason (as the Cause if it is an error). It is safe to call from any
// goroutine. It has no effect on evaluations started after the current one
// returns.
func (r *Runtime) Interrupt(reason any) {
	if err, ok := reason.(error); ok {
		r.vm.Interrupt(&CancelledError{Cause: err})
		return
	}
	r.vm.Interrupt(&CancelledError{Reason: reason})
}

// MemoryUsage returns a snapshot of the resources held by the runtime.
func (r *Runtime) MemoryUsage() MemoryUsage {
	return MemoryUsage{
		HeapObjectBytes: heapObjectBytes(),
		Handles:         r.handles.len(),
		BoundInstances:  r.instances.len(),
		Classes:         len(r.classes),
		Modules:         len(r.modules),
		PendingJobs:     len(r.jobs),
		Contexts:        len(r.frames),
	}
}

// Close tears down the runtime. Every later use of the runtime, its
// contexts, or any proxy created under it fails with [ErrRuntimeClosed].
// Closing a running runtime aborts the running evaluation. Close is
// idempotent.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if len(r.frames) != 0 {
		r.vm.Interrupt(&CancelledError{Cause: ErrRuntimeClosed})
	}
	r.hook = nil
	r.jobs = nil
	r.unhandled = nil
	r.handles.clear()
	r.instances.clear()
	clear(r.classes)
	clear(r.classIDs)
	clear(r.modules)
	r.logger.Debug().Log("jsbridge: runtime closed")
	return nil
}

// defaultContext returns the context used for conversions that are not tied
// to a context, e.g. [Runtime.ToValue].
func (r *Runtime) defaultContext() *Context {
	if r.defaultCtx == nil {
		r.defaultCtx = NewContext(r)
	}
	return r.defaultCtx
}

// current returns the context of the innermost running frame.
func (r *Runtime) current() *Context {
	if n := len(r.frames); n != 0 {
		return r.frames[n-1].ctx
	}
	return r.defaultContext()
}

// frame is one host-to-engine entry.
type frame struct {
	ctx    *Context
	done   context.Context
	global *goja.Object
	outer  bool
	stop   func()
}

// enter makes c the active context, for a call from the host into the
// engine. The outermost frame owns the interrupt flag and the microtask
// queue.
func (r *Runtime) enter(ctx context.Context, c *Context) (*frame, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	if ctx.Err() != nil {
		return nil, &CancelledError{Cause: context.Cause(ctx)}
	}
	if r.depth >= r.opts.maxDepth {
		return nil, &RecursionError{Depth: r.depth}
	}
	f := &frame{ctx: c, done: ctx, global: r.vm.GlobalObject(), outer: len(r.frames) == 0}
	if f.outer {
		r.vm.ClearInterrupt()
	}
	r.depth++
	r.frames = append(r.frames, f)
	r.vm.SetGlobalObject(c.global)
	f.stop = r.watch(ctx, f.outer)
	return f, nil
}

func (r *Runtime) leave(f *frame) {
	f.stop()
	r.frames = r.frames[:len(r.frames)-1]
	r.depth--
	r.vm.SetGlobalObject(f.global)
	if f.outer {
		r.vm.ClearInterrupt()
	}
}

// checkAbort reports whether the running evaluation must stop, for loops in
// host code that the engine interrupt cannot reach.
func (r *Runtime) checkAbort() error {
	if r.closed {
		return ErrRuntimeClosed
	}
	if n := len(r.frames); n != 0 {
		if ctx := r.frames[n-1].done; ctx.Err() != nil {
			return &CancelledError{Cause: context.Cause(ctx)}
		}
	}
	return nil
}

// guard runs fn, converting engine panics to errors.
func (r *Runtime) guard(fn func() error) (err error) {
	defer func() {
		if x := recover(); x != nil {
			if _, host := recovered(x); host {
				panic(x)
			}
			switch v := x.(type) {
			case error:
				err = v
			case goja.Value:
				err = r.thrownError(v, "")
			default:
				panic(x)
			}
		}
	}()
	if ex := r.vm.Try(func() { err = fn() }); ex != nil {
		return ex
	}
	return err
}

// aborted reports whether err ended the evaluation non-locally, such that
// queued work must be discarded.
func aborted(err error) bool {
	var (
		cancelled *CancelledError
		memory    *MemoryError
		recursion *RecursionError
	)
	return errors.As(err, &cancelled) || errors.As(err, &memory) || (errors.As(err, &recursion) && recursion.Depth == 0)
}

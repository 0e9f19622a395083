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

	"github.com/dop251/goja"
)

// Context is an execution context bound to a [Runtime], with its own global
// object. The global object inherits from the runtime's pristine global, so
// built-ins are shared while own bindings are isolated. Top-level let and
// const declarations live in the engine's single global scope, and are
// shared by all contexts of a runtime.
type Context struct {
	rt     *Runtime
	global *goja.Object
}

// NewContext creates a new context bound to rt.
//
// NewContext panics if rt is nil, as this is a programming error.
func NewContext(rt *Runtime) *Context {
	if rt == nil {
		panic("jsbridge: runtime must not be nil")
	}
	c := &Context{rt: rt}
	if !rt.closed {
		c.global = rt.vm.CreateObject(rt.intrinsics.global)
		_ = c.global.DefineDataProperty("globalThis", c.global, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	return c
}

// NewDefaultContext creates a context bound to a new [Runtime] configured by
// opts. The runtime is available from [Context.Runtime].
func NewDefaultContext(opts ...Option) (*Context, error) {
	rt, err := NewRuntime(opts...)
	if err != nil {
		return nil, err
	}
	return NewContext(rt), nil
}

// Runtime returns the runtime the context is bound to.
func (c *Context) Runtime() *Runtime {
	return c.rt
}

// GetGlobal returns the context's global object.
func (c *Context) GetGlobal() *Object {
	if c.rt.closed || c.global == nil {
		return &Object{ctx: c}
	}
	return c.rt.handles.wrap(c, c.global)
}

// Set converts value and binds it as a property of the global object.
func (c *Context) Set(name string, value any) error {
	_, err := c.do(context.Background(), func() (any, error) {
		v, err := c.value(value)
		if err != nil {
			return nil, err
		}
		return nil, c.global.Set(name, v)
	})
	return err
}

// Get returns the named global variable, converted to its host form. Global
// let and const bindings take precedence over global object properties. An
// undefined name returns nil.
func (c *Context) Get(name string) (any, error) {
	return c.do(context.Background(), func() (any, error) {
		return c.export(c.rt.vm.Get(name))
	})
}

// AddFunction binds fn as an engine function named name, see the package
// documentation for the calling convention. The function is returned, not
// installed; use [Context.Set] to make it global.
func (c *Context) AddFunction(fn any, name string) (*Function, error) {
	if c.rt.closed {
		return nil, ErrRuntimeClosed
	}
	obj, err := c.rt.bindFunction(c, fn, name)
	if err != nil {
		return nil, fmt.Errorf("jsbridge: %w", err)
	}
	return &Function{Object: c.rt.handles.wrap(c, obj)}, nil
}

// AddClass installs the constructor of class as a global, under the class
// name.
func (c *Context) AddClass(class *JSClass) error {
	if class == nil {
		return errors.New("jsbridge: class must not be nil")
	}
	if c.rt.closed {
		return ErrRuntimeClosed
	}
	if class.rt != c.rt {
		return fmt.Errorf("jsbridge: class %s belongs to another runtime", class.name)
	}
	return c.global.DefineDataProperty(class.name, class.ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// do runs fn in an engine frame for c. Errors are translated to their host
// form. The outermost frame drains the microtask queue before returning.
func (c *Context) do(ctx context.Context, fn func() (any, error)) (result any, err error) {
	r := c.rt
	f, err := r.enter(ctx, c)
	if err != nil {
		return nil, err
	}
	defer r.leave(f)

	err = r.guard(func() (err error) {
		result, err = fn()
		return err
	})
	if err == nil && f.outer {
		err = r.guard(r.drain)
	}
	if err != nil {
		err = r.translate(err)
		if f.outer && aborted(err) {
			r.discardJobs()
			b := r.logger.Warning().Err(err)
			var memory *MemoryError
			if errors.As(err, &memory) {
				b = b.Uint64("heap_baseline", memory.Baseline).
					Uint64("heap_used", memory.Used)
			}
			b.Log("jsbridge: evaluation aborted")
		}
		return nil, err
	}
	return result, nil
}

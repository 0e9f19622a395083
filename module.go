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
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-jsbridge/internal/esm"
)

// moduleWrapper wraps converted module code as a function of its CommonJS
// environment.
const moduleWrapper = "(function (exports, require, module, " + esm.CompleteFunc + ") {\n%s\n})"

// RegisterModule evaluates source as an ES module in the runtime's default
// context and registers its exports under name, so that later modules may
// import it, and scripts may require it. Names are unique per runtime. A
// module awaiting at top level is registered immediately, and its exports
// fill in as it completes.
func (r *Runtime) RegisterModule(name, source string) error {
	if r.closed {
		return ErrRuntimeClosed
	}
	if name == "" {
		return errors.New("jsbridge: module name must not be empty")
	}
	if _, ok := r.modules[name]; ok {
		return fmt.Errorf("jsbridge: module %q already registered", name)
	}
	c := r.defaultContext()
	result, err := c.module(context.Background(), source, name, true)
	if err != nil {
		return err
	}
	if _, ok := result.(*Promise); ok {
		r.logger.Debug().
			Str("module", name).
			Log("jsbridge: registered module is still awaiting")
	}
	return nil
}

// enableRequire installs the require global, resolving registered modules
// only.
func (r *Runtime) enableRequire() error {
	r.registry = require.NewRegistry(require.WithLoader(func(path string) ([]byte, error) {
		return nil, require.ModuleFileDoesNotExistError
	}))
	r.registry.Enable(r.vm)
	fn, ok := r.intrinsics.global.Get("require").(*goja.Object)
	if !ok {
		return errors.New("require is not installed")
	}
	r.intrinsics.require = fn
	return nil
}

func (r *Runtime) registerModule(name string, exports goja.Value) {
	obj, ok := exports.(*goja.Object)
	if !ok {
		obj = r.vm.NewObject()
		_ = obj.Set("default", exports)
	}
	r.modules[name] = obj
	r.registry.RegisterNativeModule(name, func(_ *goja.Runtime, module *goja.Object) {
		_ = module.Set("exports", obj)
	})
	r.logger.Debug().
		Str("module", name).
		Log("jsbridge: module registered")
}

func (c *Context) evalModule(ctx context.Context, source string, cfg *evalOptions) (any, error) {
	return c.module(ctx, source, cfg.filename, false)
}

// module evaluates source as an ES module, optionally registering its
// exports. The result is nil once the module has completed, or a pending
// *Promise while it is awaiting.
func (c *Context) module(ctx context.Context, source, name string, register bool) (any, error) {
	r := c.rt
	prog, err := esm.Transform(source, name)
	if err != nil {
		var syntax *esm.SyntaxError
		if errors.As(err, &syntax) {
			return nil, &JSError{Name: "SyntaxError", Message: syntax.Error()}
		}
		return nil, err
	}

	var rec *promiseRecord
	if _, err := c.do(ctx, func() (any, error) {
		ev := r.beginEvaluation(true)
		exports, done, err := r.runModule(name, prog)
		if err != nil {
			ev.fail(err)
			return nil, err
		}
		if register {
			r.registerModule(name, exports)
		}
		if done == nil {
			ev.complete(goja.Undefined())
			rec = ev.promise
			return nil, nil
		}
		rec = ev.await(done)
		return nil, nil
	}); err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, nil
	}
	switch rec.state {
	case PromiseFulfilled:
		return nil, nil
	case PromiseRejected:
		return nil, r.reasonError(rec.result)
	default:
		return &Promise{Object: r.handles.wrap(c, rec.obj)}, nil
	}
}

// runModule runs converted module code, returning its exports and, for a
// module awaiting at top level, the promise of its body.
func (r *Runtime) runModule(name string, prog *esm.Program) (exports, done goja.Value, err error) {
	compiled, err := goja.Compile(name, fmt.Sprintf(moduleWrapper, prog.Code), true)
	if err != nil {
		return nil, nil, err
	}
	v, err := r.vm.RunProgram(compiled)
	if err != nil {
		return nil, nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, nil, errors.New("module wrapper is not a function")
	}

	module := r.vm.NewObject()
	exportsObj := r.vm.NewObject()
	_ = module.Set("exports", exportsObj)
	complete := r.fn(func(v goja.Value) {
		if done == nil {
			done = v
		}
	})
	if _, err := fn(goja.Undefined(), exportsObj, r.intrinsics.require, module, complete); err != nil {
		return nil, nil, err
	}
	if prog.Async && done == nil {
		done = goja.Undefined()
	}
	return module.Get("exports"), done, nil
}

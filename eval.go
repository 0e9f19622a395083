// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"context"

	"github.com/dop251/goja"
)

// Eval evaluates source in the context's global scope, see
// [Context.EvalContext].
func (c *Context) Eval(source string, opts ...EvalOption) (any, error) {
	return c.EvalContext(context.Background(), source, opts...)
}

// EvalContext evaluates source in the context's global scope and returns the
// completion value converted to its host form. Cancelling ctx aborts the
// evaluation with a [*CancelledError].
//
// With [Module], source is evaluated as an ES module and the result is nil,
// or a pending [*Promise] if the module is still awaiting once the microtask
// queue has drained. The promise settles as later evaluations or
// [Runtime.RunJobs] drive the queue.
//
// Uncaught exceptions are returned as [*JSError], or as the host error that
// was thrown into the engine by a bound function.
func (c *Context) EvalContext(ctx context.Context, source string, opts ...EvalOption) (any, error) {
	cfg := resolveEvalOptions(opts)
	if cfg.module {
		return c.evalModule(ctx, source, cfg)
	}
	return c.do(ctx, func() (any, error) {
		prg, err := goja.Compile(cfg.filename, source, cfg.strict)
		if err != nil {
			return nil, err
		}
		ev := c.rt.beginEvaluation(false)
		v, err := c.rt.vm.RunProgram(prg)
		if err != nil {
			ev.fail(err)
			return nil, err
		}
		ev.complete(v)
		return c.export(v)
	})
}

// evaluation is the promise pair reported to hooks for a top-level
// evaluation: the evaluation promise, settled with the completion value, and
// its completion capability, settled when evaluation finishes.
type evaluation struct {
	rt         *Runtime
	promise    *promiseRecord
	completion *promiseRecord
}

// beginEvaluation creates the evaluation promise pair. It is a no-op for
// nested evaluations, and for scripts when no hook is installed.
func (r *Runtime) beginEvaluation(always bool) *evaluation {
	if len(r.frames) != 1 || (r.hook == nil && !always) {
		return &evaluation{rt: r}
	}
	ev := &evaluation{rt: r}
	ev.promise = r.newPromise(nil, nil)
	ev.promise.handled = true
	ev.completion = r.newPromise(nil, ev.promise)
	ev.completion.handled = true
	return ev
}

func (ev *evaluation) complete(v goja.Value) {
	if ev.promise == nil {
		return
	}
	if v == nil {
		v = goja.Undefined()
	}
	ev.rt.settle(ev.promise, PromiseFulfilled, v)
	ev.rt.settle(ev.completion, PromiseFulfilled, goja.Undefined())
}

func (ev *evaluation) fail(err error) {
	if ev.promise == nil {
		return
	}
	reason := goja.Undefined()
	if ex, ok := err.(*goja.Exception); ok {
		reason = ex.Value()
	}
	ev.rt.settle(ev.promise, PromiseRejected, reason)
	ev.rt.settle(ev.completion, PromiseRejected, reason)
}

// await settles the evaluation with the outcome of done, the promise of an
// asynchronous module body, returning the record that tracks it.
func (ev *evaluation) await(done goja.Value) *promiseRecord {
	r := ev.rt
	if ev.promise == nil {
		rec := r.promiseResolve(done)
		rec.handled = true
		return rec
	}
	completion := ev.completion
	r.resolve(ev.promise, done)
	r.then(ev.promise, func(v goja.Value, rejected bool) (goja.Value, bool, error) {
		if rejected {
			r.settle(completion, PromiseRejected, v)
		} else {
			r.settle(completion, PromiseFulfilled, goja.Undefined())
		}
		return nil, false, nil
	}, nil)
	return ev.promise
}

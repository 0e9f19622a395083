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

// PromiseState is the settlement state of a promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// promiseRecord is the state of a bridge promise, attached to its engine
// object.
type promiseRecord struct {
	obj       *goja.Object
	parent    *promiseRecord
	state     PromiseState
	result    goja.Value
	reactions []*reaction
	handled   bool
}

// reactionFunc handles the settlement of a source promise. It returns the
// value the derived promise is resolved (or, if reject is set, rejected)
// with. A non-nil error aborts the drain.
type reactionFunc func(value goja.Value, rejected bool) (result goja.Value, reject bool, err error)

type reaction struct {
	handler reactionFunc
	derived *promiseRecord
}

// job is a queued microtask.
type job func() error

// RunJobs drains the microtask queue. Evaluations drain it before returning,
// so this is only needed to settle promises whose settlement was triggered
// outside of an evaluation, e.g. by the host calling a resolve function.
func (r *Runtime) RunJobs() error {
	if r.closed {
		return ErrRuntimeClosed
	}
	_, err := r.defaultContext().do(context.Background(), func() (any, error) {
		return nil, r.drain()
	})
	return err
}

func (r *Runtime) promiseRecord(obj *goja.Object) *promiseRecord {
	if obj == nil {
		return nil
	}
	if ref := r.hidden(obj, r.symbols.promise); ref != nil {
		if rec, ok := ref.value.(*promiseRecord); ok && rec.obj == obj {
			return rec
		}
	}
	return nil
}

// newPromise attaches a pending record to obj, or to a new promise object if
// obj is nil.
func (r *Runtime) newPromise(obj *goja.Object, parent *promiseRecord) *promiseRecord {
	if obj == nil {
		obj = r.vm.CreateObject(r.intrinsics.promiseProto)
	}
	rec := &promiseRecord{obj: obj, parent: parent}
	r.setHidden(obj, r.symbols.promise, &hostRef{value: rec})
	r.emit(PromiseHookInit, rec, parent)
	return rec
}

// settle fulfills or rejects rec with v. Settling a settled promise is a
// no-op.
func (r *Runtime) settle(rec *promiseRecord, state PromiseState, v goja.Value) {
	if rec.state != PromisePending {
		return
	}
	if v == nil {
		v = goja.Undefined()
	}
	rec.state, rec.result = state, v
	reactions := rec.reactions
	rec.reactions = nil
	r.emit(PromiseHookResolve, rec, nil)
	if state == PromiseRejected && !rec.handled {
		r.unhandled = append(r.unhandled, rec)
	}
	for _, re := range reactions {
		r.enqueueReaction(rec, re)
	}
}

// resolve resolves rec with v, adopting the state of v if it is a thenable.
func (r *Runtime) resolve(rec *promiseRecord, v goja.Value) {
	if rec.state != PromisePending {
		return
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		r.settle(rec, PromiseFulfilled, v)
		return
	}
	if obj == rec.obj {
		r.settle(rec, PromiseRejected, r.vm.NewTypeError("Chaining cycle detected for promise"))
		return
	}
	var then goja.Value
	if ex := r.vm.Try(func() { then = obj.Get("then") }); ex != nil {
		r.settle(rec, PromiseRejected, ex.Value())
		return
	}
	fn, ok := goja.AssertFunction(then)
	if !ok {
		r.settle(rec, PromiseFulfilled, v)
		return
	}
	r.jobs = append(r.jobs, func() error {
		s := &resolvers{rt: r, rec: rec}
		resolve, reject := s.values()
		_, err := fn(obj, resolve, reject)
		if err == nil {
			return nil
		}
		if ex, ok := err.(*goja.Exception); ok {
			s.reject(ex.Value())
			return nil
		}
		return err
	})
}

// then registers handler to run once rec settles. derived may be nil for
// internal reactions, in which case no lifecycle events are reported for the
// reaction.
func (r *Runtime) then(rec *promiseRecord, handler reactionFunc, derived *promiseRecord) {
	rec.handled = true
	re := &reaction{handler: handler, derived: derived}
	if rec.state == PromisePending {
		rec.reactions = append(rec.reactions, re)
		return
	}
	r.enqueueReaction(rec, re)
}

func (r *Runtime) enqueueReaction(rec *promiseRecord, re *reaction) {
	value, rejected := rec.result, rec.state == PromiseRejected
	r.jobs = append(r.jobs, func() error {
		r.emit(PromiseHookBefore, re.derived, nil)
		result, reject, err := re.handler(value, rejected)
		r.emit(PromiseHookAfter, re.derived, nil)
		if err != nil {
			return err
		}
		if re.derived == nil {
			return nil
		}
		if reject {
			r.settle(re.derived, PromiseRejected, result)
		} else {
			r.resolve(re.derived, result)
		}
		return nil
	})
}

// callJS calls fn as a reaction handler. Exceptions reject; interrupts and
// other uncatchable errors abort.
func (r *Runtime) callJS(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, bool, error) {
	v, err := fn(this, args...)
	if err == nil {
		return v, false, nil
	}
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value(), true, nil
	}
	return nil, false, err
}

// resolvers is a resolve/reject pair for one promise. Only the first call
// of either has an effect.
type resolvers struct {
	rt   *Runtime
	rec  *promiseRecord
	done bool
}

func (s *resolvers) resolve(v goja.Value) {
	if s.done {
		return
	}
	s.done = true
	s.rt.resolve(s.rec, v)
}

func (s *resolvers) reject(v goja.Value) {
	if s.done {
		return
	}
	s.done = true
	s.rt.settle(s.rec, PromiseRejected, v)
}

// values returns the pair as engine functions.
func (s *resolvers) values() (resolve, reject goja.Value) {
	return s.rt.fn(s.resolve), s.rt.fn(s.reject)
}

// fn wraps f as an engine function of one argument.
func (r *Runtime) fn(f func(goja.Value)) goja.Value {
	obj := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		f(call.Argument(0))
		return goja.Undefined()
	}).(*goja.Object)
	r.nameFunction(obj, "", 1)
	return obj
}

// drain runs queued jobs in FIFO order until the queue is empty. An aborting
// error discards the remaining jobs. Nested calls are no-ops.
func (r *Runtime) drain() error {
	if r.draining {
		return nil
	}
	r.draining = true
	defer func() { r.draining = false }()
	for len(r.jobs) != 0 {
		next := r.jobs[0]
		r.jobs[0] = nil
		r.jobs = r.jobs[1:]
		if err := next(); err != nil {
			r.jobs = nil
			return err
		}
	}
	r.reportUnhandled()
	return nil
}

// discardJobs drops all queued work, after an aborted evaluation.
func (r *Runtime) discardJobs() {
	r.jobs = nil
	r.unhandled = nil
}

func (r *Runtime) reportUnhandled() {
	unhandled := r.unhandled
	r.unhandled = nil
	for _, rec := range unhandled {
		if rec.handled {
			continue
		}
		rec.handled = true
		r.logger.Warning().
			Err(r.reasonError(rec.result)).
			Log("jsbridge: unhandled promise rejection")
	}
}

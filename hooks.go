// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"strconv"
)

// PromiseHookType is a phase in the lifecycle of a promise.
type PromiseHookType uint8

const (
	// PromiseHookInit is reported when a promise is created. The parent is
	// the promise whose then created it, if any.
	PromiseHookInit PromiseHookType = iota
	// PromiseHookBefore is reported before a reaction callback runs.
	PromiseHookBefore
	// PromiseHookAfter is reported after a reaction callback has run.
	PromiseHookAfter
	// PromiseHookResolve is reported when a promise settles, either way.
	PromiseHookResolve
)

// Valid reports whether t is one of the four phases.
func (t PromiseHookType) Valid() bool {
	return t <= PromiseHookResolve
}

func (t PromiseHookType) String() string {
	switch t {
	case PromiseHookInit:
		return "INIT"
	case PromiseHookBefore:
		return "BEFORE"
	case PromiseHookAfter:
		return "AFTER"
	case PromiseHookResolve:
		return "RESOLVE"
	default:
		return "PromiseHookType(" + strconv.Itoa(int(t)) + ")"
	}
}

// PromiseHook observes promise lifecycle events. It is called synchronously,
// on the goroutine driving the engine, with the context that is executing.
// parent is nil except for [PromiseHookInit] of a derived promise.
//
// For each promise the phases are ordered INIT, then zero or more
// BEFORE/AFTER pairs, then RESOLVE. The hook may call back into the engine;
// such calls count toward the re-entrancy depth limit. Panics are recovered
// and logged.
type PromiseHook func(ctx *Context, phase PromiseHookType, promise, parent *Promise)

// SetPromiseHook installs hook as the sole promise observer of the runtime,
// discarding any previous hook. A nil hook removes it.
func (r *Runtime) SetPromiseHook(hook PromiseHook) {
	if r.closed {
		return
	}
	r.hook = hook
}

// emit forwards a lifecycle event to the hook.
func (r *Runtime) emit(phase PromiseHookType, rec, parent *promiseRecord) {
	hook := r.hook
	if hook == nil || rec == nil || r.closed {
		return
	}
	if !phase.Valid() {
		r.logger.Err().
			Stringer("phase", phase).
			Log("jsbridge: ignoring invalid promise hook phase")
		return
	}

	c := r.current()
	promise := &Promise{Object: r.handles.wrap(c, rec.obj)}
	var parentPromise *Promise
	if parent != nil {
		parentPromise = &Promise{Object: r.handles.wrap(c, parent.obj)}
	}

	defer r.enterHost("promise hook")()
	defer func() {
		if x := recover(); x != nil {
			err, host := recovered(x)
			if !host {
				panic(x)
			}
			r.logger.Err().
				Stringer("phase", phase).
				Err(err).
				Log("jsbridge: promise hook panicked")
		}
	}()
	hook(c, phase, promise, parentPromise)
}

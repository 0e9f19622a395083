// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package jsbridge embeds the [goja] JavaScript engine and exposes a two-way
// bridge between Go and JavaScript: Go code evaluates scripts and modules,
// injects Go functions and struct types into the JavaScript global namespace,
// and observes promise lifecycle transitions.
//
// # Runtimes and Contexts
//
// A [Runtime] owns one engine heap, the class registry, the promise hook and
// the microtask queue. A [Context] is an execution context bound to a
// Runtime, with its own global object. Contexts of one Runtime share the
// heap, the class registry and the engine intrinsics:
//
//	rt, err := jsbridge.NewRuntime(jsbridge.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//	ctx := jsbridge.NewContext(rt)
//	v, err := ctx.Eval(`1 + 2`) // int64(3)
//
// Neither type is safe for concurrent use. The only goroutine-safe entry
// point is [Runtime.Interrupt].
//
// # Value Conversion
//
// Values crossing the boundary are converted as follows:
//
//   - nil ↔ undefined, [Null] ↔ null
//   - bool, string, float64 and the integer kinds ↔ boolean, string, number
//     (integers outside ±(2^53-1) fail with [ErrUnsafeInteger] unless
//     [WithPrecisionLoss] is set; integral numbers convert to int64)
//   - *big.Int ↔ BigInt, time.Time ↔ Date
//   - slices and arrays ↔ Array, string-keyed maps ↔ plain Object
//   - Go funcs → function (see [Context.AddFunction]), function → [*Function]
//   - pointers to registered struct types ↔ bound instances (see
//     [Runtime.NewClass])
//   - promises → [*Promise], other objects → [*Object]
//
// Engine objects are held by proxies ([*Object], [*Function], [*Promise]).
// A proxy holds one reference to its engine object until [Object.Release] is
// called or the proxy is garbage collected; the same engine object always
// maps to the same live proxy.
//
// # Errors
//
// Uncaught JavaScript exceptions surface as [*JSError]. Errors returned by Go
// functions called from JavaScript are thrown as JavaScript errors and, if
// uncaught, surface unchanged from [Context.Eval]. Resource limits surface as
// [*CancelledError], [*MemoryError] and [*RecursionError]; the runtime stays
// usable afterwards.
//
// # Promise Hooks
//
// The bridge installs its own Promise implementation so that promise
// lifecycle transitions are observable through [Runtime.SetPromiseHook].
// Promises created by async functions are engine-native; they interoperate
// through the thenable protocol but are not reported to hooks.
//
// # Modules
//
// [Module] evaluates source as an ES module. Import and export declarations
// are transformed to CommonJS with esbuild and resolved through a module
// registry, in which modules registered with [Runtime.RegisterModule] can be
// imported by name. Top-level await is supported in modules without import
// or export declarations; such an evaluation returns a pending [*Promise] if
// the module is still awaiting once the microtask queue has drained.
package jsbridge

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	defaultMemoryLimit       = 1 << 30
	defaultMaxCallStackSize  = 10000
	defaultMaxDepth          = 128
	defaultInterruptInterval = 10 * time.Millisecond
)

// runtimeOptions holds configuration for a [Runtime].
type runtimeOptions struct {
	logger            *logiface.Logger[logiface.Event]
	interruptHandler  func() bool
	hostCallRates     map[time.Duration]int
	memoryLimit       uint64
	maxCallStackSize  int
	maxDepth          int
	interruptInterval time.Duration
	opaqueFallback    bool
	precisionLoss     bool
	console           bool
}

// Option configures a [Runtime]. Options are applied by [NewRuntime]; nil
// options are ignored.
type Option interface {
	applyOption(*runtimeOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*runtimeOptions) error
}

func (o *optionFunc) applyOption(opts *runtimeOptions) error {
	return o.fn(opts)
}

// WithLogger configures the structured logger. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMemoryLimit sets the ceiling, in bytes, on heap growth during a single
// top-level evaluation. Exceeding it aborts the evaluation with a
// [*MemoryError]. Zero disables the check. The default is 1 GiB.
//
// The measurement is sampled from the Go heap, so it is approximate, and it
// includes allocations made by other goroutines. The heap baseline is
// reported in [MemoryError.Baseline] and logged with the aborted evaluation.
// The limit also bounds the length of arrays copied to the host.
func WithMemoryLimit(bytes uint64) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		opts.memoryLimit = bytes
		return nil
	}}
}

// WithMaxCallStackSize sets the maximum JavaScript call depth. Exceeding it
// aborts the evaluation with a [*RecursionError]. The default is 10000.
func WithMaxCallStackSize(size int) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		if size <= 0 {
			return fmt.Errorf("max call stack size must be positive, got %d", size)
		}
		opts.maxCallStackSize = size
		return nil
	}}
}

// WithMaxDepth sets the maximum nesting of host and engine calls, e.g. a host
// function that evaluates code that calls a host function. Exceeding it
// throws a RangeError into the engine which surfaces as a [*RecursionError].
// The default is 128.
func WithMaxDepth(depth int) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		if depth <= 0 {
			return fmt.Errorf("max depth must be positive, got %d", depth)
		}
		opts.maxDepth = depth
		return nil
	}}
}

// WithInterruptHandler configures a function polled while an evaluation is
// running. Returning true aborts the evaluation with a [*CancelledError].
//
// The handler is called from a separate goroutine, see
// [WithInterruptPollInterval].
func WithInterruptHandler(handler func() bool) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		opts.interruptHandler = handler
		return nil
	}}
}

// WithInterruptPollInterval sets how often the interrupt handler and the
// memory ceiling are checked. The default is 10ms.
func WithInterruptPollInterval(interval time.Duration) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		if interval <= 0 {
			return fmt.Errorf("interrupt poll interval must be positive, got %s", interval)
		}
		opts.interruptInterval = interval
		return nil
	}}
}

// WithHostCallRateLimit configures a budget for calls from the engine into
// host functions and constructors, per binding name, using sliding windows
// (see [github.com/joeycumines/go-catrate]). A call over budget aborts the
// evaluation with a [*CancelledError].
//
// Rates must be positive, and shorter windows must not allow fewer events
// than longer ones.
func WithHostCallRateLimit(rates map[time.Duration]int) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		for window, count := range rates {
			if window <= 0 || count <= 0 {
				return fmt.Errorf("invalid host call rate %d per %s", count, window)
			}
		}
		opts.hostCallRates = rates
		return nil
	}}
}

// WithOpaqueFallback enables wrapping host values of unsupported types (e.g.
// pointers to unregistered structs) as opaque engine objects, which convert
// back to the same host value. When disabled (the default) such values fail
// with a [*ConversionError].
func WithOpaqueFallback(enabled bool) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		opts.opaqueFallback = enabled
		return nil
	}}
}

// WithPrecisionLoss acknowledges precision loss for host integers outside the
// engine's safe integer range, converting them to the nearest number instead
// of failing with [ErrUnsafeInteger].
func WithPrecisionLoss(enabled bool) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		opts.precisionLoss = enabled
		return nil
	}}
}

// WithConsole controls installation of the console global, which writes to
// the configured logger. Enabled by default.
func WithConsole(enabled bool) Option {
	return &optionFunc{fn: func(opts *runtimeOptions) error {
		opts.console = enabled
		return nil
	}}
}

// resolveOptions applies the given options to the defaults.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		memoryLimit:       defaultMemoryLimit,
		maxCallStackSize:  defaultMaxCallStackSize,
		maxDepth:          defaultMaxDepth,
		interruptInterval: defaultInterruptInterval,
		console:           true,
	}
	var errs []error
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// evalOptions holds configuration for a single evaluation.
type evalOptions struct {
	filename string
	module   bool
	strict   bool
}

// EvalOption configures [Context.Eval].
type EvalOption interface {
	applyEvalOption(*evalOptions)
}

type evalOptionFunc func(*evalOptions)

func (f evalOptionFunc) applyEvalOption(opts *evalOptions) { f(opts) }

// Module evaluates the source as an ES module: import and export
// declarations and top-level await are permitted, and the code is strict.
func Module() EvalOption {
	return evalOptionFunc(func(opts *evalOptions) { opts.module = true })
}

// Strict forces strict mode semantics for script evaluation.
func Strict() EvalOption {
	return evalOptionFunc(func(opts *evalOptions) { opts.strict = true })
}

// Filename names the source in stack traces and syntax errors. Use
// [Runtime.RegisterModule] to make a module importable by name.
func Filename(name string) EvalOption {
	return evalOptionFunc(func(opts *evalOptions) { opts.filename = name })
}

func resolveEvalOptions(opts []EvalOption) *evalOptions {
	cfg := &evalOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyEvalOption(cfg)
		}
	}
	return cfg
}

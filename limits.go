// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"context"
	"fmt"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// heapObjectBytes returns the bytes occupied by live and not yet swept heap
// objects.
func heapObjectBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// newLimiter builds the host call budget. catrate panics on inconsistent
// rates, which is reported as an error instead.
func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if x := recover(); x != nil {
			limiter, err = nil, fmt.Errorf("invalid host call rates: %v", x)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// watch starts the watchdog for a frame, returning a func that stops it.
// Every frame watches ctx; the outer frame also polls the interrupt handler
// and samples the memory ceiling. The watchdog only calls the goroutine-safe
// Interrupt.
func (r *Runtime) watch(ctx context.Context, outer bool) (stop func()) {
	var (
		handler func() bool
		limit   uint64
	)
	if outer {
		handler = r.opts.interruptHandler
		limit = r.opts.memoryLimit
	}
	if ctx.Done() == nil && handler == nil && limit == 0 {
		return func() {}
	}

	var baseline uint64
	if limit != 0 {
		baseline = heapObjectBytes()
	}

	vm := r.vm
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var tick <-chan time.Time
		if handler != nil || limit != 0 {
			ticker := time.NewTicker(r.opts.interruptInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				vm.Interrupt(&CancelledError{Cause: context.Cause(ctx)})
				return
			case <-tick:
				if handler != nil && handler() {
					vm.Interrupt(&CancelledError{Reason: "interrupt handler"})
					return
				}
				if limit != 0 {
					if used := heapObjectBytes(); used > baseline && used-baseline > limit {
						vm.Interrupt(&MemoryError{Limit: limit, Used: used - baseline, Baseline: baseline})
						return
					}
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// enterHost is called by binder trampolines on entry from the engine. It
// enforces the host call budget and the re-entrancy depth, throwing into the
// engine when either is exceeded, and returns the matching exit func.
func (r *Runtime) enterHost(name string) func() {
	if r.closed {
		r.throw(ErrRuntimeClosed)
	}
	if r.limiter != nil {
		if _, ok := r.limiter.Allow(name); !ok {
			r.logger.Warning().
				Str("binding", name).
				Log("jsbridge: host call budget exhausted")
			r.throw(&CancelledError{Reason: name, Cause: ErrHostCallBudget})
		}
	}
	if r.depth >= r.opts.maxDepth {
		r.throw(&RecursionError{Depth: r.depth})
	}
	r.depth++
	return func() { r.depth-- }
}

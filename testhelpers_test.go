// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	rt  *Runtime
	ctx *Context
	log *bytes.Buffer
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
	rt, err := NewRuntime(append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return &testEnv{rt: rt, ctx: NewContext(rt), log: &buf}
}

func (e *testEnv) run(t *testing.T, code string, opts ...EvalOption) any {
	t.Helper()
	v, err := e.ctx.Eval(code, opts...)
	require.NoError(t, err)
	return v
}

func (e *testEnv) mustFail(t *testing.T, code string, opts ...EvalOption) error {
	t.Helper()
	_, err := e.ctx.Eval(code, opts...)
	require.Error(t, err)
	return err
}

func (e *testEnv) set(t *testing.T, name string, value any) {
	t.Helper()
	require.NoError(t, e.ctx.Set(name, value))
}

func (e *testEnv) bind(t *testing.T, name string, fn any) *Function {
	t.Helper()
	f, err := e.ctx.AddFunction(fn, name)
	require.NoError(t, err)
	e.set(t, name, f)
	return f
}

// requireJSError asserts that err is a *JSError with the given name, and
// returns it.
func requireJSError(t *testing.T, err error, name string) *JSError {
	t.Helper()
	var jsErr *JSError
	require.ErrorAs(t, err, &jsErr)
	require.Equal(t, name, jsErr.Name, "message: %s", jsErr.Message)
	return jsErr
}

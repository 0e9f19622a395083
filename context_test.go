// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_SetGet(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "answer", 42)
	assert.Equal(t, int64(43), env.run(t, `answer + 1`))

	got, err := env.ctx.Get("answer")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	got, err = env.ctx.Get("nothing")
	require.NoError(t, err)
	assert.Nil(t, got)

	env.run(t, `let scoped = "lexical"`)
	got, err = env.ctx.Get("scoped")
	require.NoError(t, err)
	assert.Equal(t, "lexical", got)
}

func TestContext_GetGlobal(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "a", 1)
	global := env.ctx.GetGlobal()
	assert.Same(t, env.ctx, global.Context())

	a, err := global.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)

	require.NoError(t, global.Set("b", "two"))
	assert.Equal(t, "two", env.run(t, `b`))
	assert.Equal(t, true, env.run(t, `globalThis.b === b`))

	keys, err := global.Keys()
	require.NoError(t, err)
	assert.Subset(t, keys, []string{"a", "b"})

	got := env.run(t, `globalThis`)
	assert.Same(t, global, got)
}

func TestContext_Isolation(t *testing.T) {
	env := newTestEnv(t)
	other := NewContext(env.rt)

	env.set(t, "shared", "first")
	require.NoError(t, other.Set("shared", "second"))

	assert.Equal(t, "first", env.run(t, `shared`))
	v, err := other.Eval(`shared`)
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	env.run(t, `var declared = 1; globalThis.assigned = 2`)
	v, err = other.Eval(`typeof declared + "," + typeof assigned`)
	require.NoError(t, err)
	assert.Equal(t, "undefined,undefined", v)

	v, err = other.Eval(`typeof Math.max + "," + typeof JSON.stringify + "," + typeof console.log`)
	require.NoError(t, err)
	assert.Equal(t, "function,function,function", v)

	env.run(t, `Array.prototype.sharedExtension = 1`)
	v, err = other.Eval(`[].sharedExtension`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestContext_RestoresGlobal(t *testing.T) {
	env := newTestEnv(t)
	other := NewContext(env.rt)
	require.NoError(t, other.Set("where", "other"))
	env.set(t, "where", "env")

	env.bind(t, "peek", func() (any, error) { return other.Eval(`where`) })
	assert.Equal(t, "other,env", env.run(t, `peek() + "," + where`))
}

func TestContext_Runtime(t *testing.T) {
	ctx, err := NewDefaultContext(WithConsole(false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Runtime().Close() })
	assert.NotNil(t, ctx.Runtime())
	v, err := ctx.Eval(`typeof console`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v)

	_, err = NewDefaultContext(WithMaxDepth(0))
	assert.Error(t, err)
}

func TestEval_SyntaxError(t *testing.T) {
	env := newTestEnv(t)
	err := env.mustFail(t, `var x = ;`, Filename("broken.js"))
	jsErr := requireJSError(t, err, "SyntaxError")
	assert.Contains(t, jsErr.Message, "broken.js")
}

func TestEval_ThrownValues(t *testing.T) {
	env := newTestEnv(t)

	err := env.mustFail(t, `throw "plain"`)
	jsErr := requireJSError(t, err, "")
	assert.Equal(t, "plain", jsErr.Message)
	assert.Equal(t, "plain", jsErr.Value)
	assert.Equal(t, "plain", jsErr.Error())

	err = env.mustFail(t, `throw { code: 5 }`)
	jsErr = requireJSError(t, err, "")
	assert.Equal(t, map[string]any{"code": int64(5)}, jsErr.Value)

	err = env.mustFail(t, `class MyError extends Error { constructor() { super("custom"); this.name = "MyError" } }; throw new MyError()`)
	jsErr = requireJSError(t, err, "MyError")
	assert.Equal(t, "MyError: custom", jsErr.Error())
}

func TestEval_RethrowIntoEngine(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctx.Eval(`globalThis.original = new Error("first"); throw original`)
	require.Error(t, err)

	env.bind(t, "rethrow", func() error { return err })
	assert.Equal(t, true, env.run(t, `
		try { rethrow(); false } catch (e) { e === original }
	`))
}

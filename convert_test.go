// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type label string

type opaqueThing struct {
	name string
}

func TestConvert_Primitives(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct {
		name string
		host any
		typ  string
		want any
	}{
		{"nil", nil, "undefined", nil},
		{"null", Null, "object", Null},
		{"bool", true, "boolean", true},
		{"string", "héllo", "string", "héllo"},
		{"int", 42, "number", int64(42)},
		{"int8", int8(-8), "number", int64(-8)},
		{"uint16", uint16(65535), "number", int64(65535)},
		{"max safe", int64(maxSafeInteger), "number", int64(maxSafeInteger)},
		{"min safe", int64(-maxSafeInteger), "number", int64(-maxSafeInteger)},
		{"float", 1.25, "number", 1.25},
		{"float32", float32(0.5), "number", 0.5},
		{"integral float", 3.0, "number", int64(3)},
		{"named string", label("tag"), "string", "tag"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env.set(t, "v", tc.host)
			assert.Equal(t, tc.typ, env.run(t, `typeof v`))
			got, err := env.ctx.Get("v")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvert_SpecialNumbers(t *testing.T) {
	env := newTestEnv(t)
	assert.True(t, math.IsNaN(env.run(t, `NaN`).(float64)))
	assert.Equal(t, math.Inf(1), env.run(t, `Infinity`))
	assert.Equal(t, math.Inf(-1), env.run(t, `-Infinity`))
	negZero := env.run(t, `-0`).(float64)
	assert.True(t, math.Signbit(negZero))
	assert.Equal(t, float64(1<<53), env.run(t, `2 ** 53`))
}

func TestConvert_UnsafeIntegers(t *testing.T) {
	env := newTestEnv(t)
	for _, host := range []any{
		int64(maxSafeInteger + 1),
		int64(-maxSafeInteger - 1),
		uint64(math.MaxUint64),
		math.MinInt64,
	} {
		err := env.ctx.Set("v", host)
		var ce *ConversionError
		require.ErrorAs(t, err, &ce, "%T(%v)", host, host)
		assert.ErrorIs(t, err, ErrUnsafeInteger)
		assert.Equal(t, host, ce.Value)
	}

	lossy := newTestEnv(t, WithPrecisionLoss(true))
	lossy.set(t, "v", int64(maxSafeInteger+2))
	assert.Equal(t, float64(maxSafeInteger+2), lossy.run(t, `v`))
}

func TestConvert_BigInt(t *testing.T) {
	env := newTestEnv(t)
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	env.set(t, "big", huge)
	assert.Equal(t, "bigint", env.run(t, `typeof big`))
	assert.Equal(t, "123456789012345678901234567891", env.run(t, `(big + 1n).toString()`))

	got, err := env.ctx.Get("big")
	require.NoError(t, err)
	require.IsType(t, (*big.Int)(nil), got)
	assert.Zero(t, huge.Cmp(got.(*big.Int)))
}

func TestConvert_Containers(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "v", map[string]any{
		"list":   []int{1, 2, 3},
		"nested": map[string]string{"k": "v"},
		"empty":  []string{},
		"none":   []string(nil),
		"fixed":  [2]bool{true, false},
	})
	assert.Equal(t, true, env.run(t, `Array.isArray(v.list) && v.list.length === 3`))
	assert.Equal(t, true, env.run(t, `v.none === null`))

	got, err := env.ctx.Get("v")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"list":   []any{int64(1), int64(2), int64(3)},
		"nested": map[string]any{"k": "v"},
		"empty":  []any{},
		"none":   Null,
		"fixed":  []any{true, false},
	}, got)
}

func TestConvert_HostCycle(t *testing.T) {
	env := newTestEnv(t)

	m := map[string]any{}
	m["self"] = m
	err := env.ctx.Set("v", m)
	assert.ErrorIs(t, err, ErrCycle)

	s := make([]any, 1)
	s[0] = s
	err = env.ctx.Set("v", s)
	assert.ErrorIs(t, err, ErrCycle)

	shared := []int{1}
	env.set(t, "v", map[string]any{"a": shared, "b": shared})
	assert.Equal(t, true, env.run(t, `v.a[0] === v.b[0]`))
}

func TestConvert_EngineCycle(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctx.Eval(`const o = {}; o.self = o; o`)
	assert.ErrorIs(t, err, ErrCycle)

	_, err = env.ctx.Eval(`const a = []; a.push(a); a`)
	assert.ErrorIs(t, err, ErrCycle)

	got := env.run(t, `const leaf = { n: 1 }; ({ x: leaf, y: leaf })`)
	assert.Equal(t, map[string]any{
		"x": map[string]any{"n": int64(1)},
		"y": map[string]any{"n": int64(1)},
	}, got)
}

func TestConvert_Unsupported(t *testing.T) {
	env := newTestEnv(t)
	thing := &opaqueThing{name: "secret"}

	for _, host := range []any{thing, make(chan int), map[int]string{1: "a"}, complex(1, 2)} {
		err := env.ctx.Set("v", host)
		assert.ErrorIs(t, err, ErrUnsupportedType, "%T", host)
	}

	opaque := newTestEnv(t, WithOpaqueFallback(true))
	opaque.set(t, "thing", thing)
	assert.Equal(t, "object", opaque.run(t, `typeof thing`))
	got, err := opaque.ctx.Get("thing")
	require.NoError(t, err)
	assert.Same(t, thing, got)

	opaque.bind(t, "name", func(v *opaqueThing) string { return v.name })
	assert.Equal(t, "secret", opaque.run(t, `name(thing)`))
}

func TestConvert_InheritedOpaque(t *testing.T) {
	env := newTestEnv(t, WithOpaqueFallback(true))
	thing := &opaqueThing{name: "secret"}
	env.set(t, "thing", thing)

	v := env.run(t, `Object.create(thing)`)
	_, ok := v.(*Object)
	assert.True(t, ok, "%T", v)
}

func TestConvert_ArrayTooLarge(t *testing.T) {
	env := newTestEnv(t)
	err := env.mustFail(t, `var sparse = []; sparse.length = 2 ** 32 - 1; sparse`)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, ce.Detail, "4294967295")

	assert.Equal(t, int64(4294967295), env.run(t, `sparse.length`))
	assert.Equal(t, []any{int64(1), nil}, env.run(t, `[1, ,]`))

	env.bind(t, "echo", func(v any) any { return v })
	assert.Equal(t, true, env.run(t, `
		try { echo(sparse); false } catch (e) { e instanceof RangeError }
	`))
}

func TestConvert_ArrayLimitFollowsMemoryLimit(t *testing.T) {
	assert.Equal(t, int64(maxExportLength), newTestEnv(t).rt.maxExportLength())
	assert.Equal(t, int64(maxExportLength), newTestEnv(t, WithMemoryLimit(0)).rt.maxExportLength())

	env := newTestEnv(t, WithMemoryLimit(16<<20))
	assert.Equal(t, int64(1<<20), env.rt.maxExportLength())
	assert.Len(t, env.run(t, `new Array(1 << 10)`), 1<<10)
	err := env.mustFail(t, `new Array((1 << 20) + 1)`)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestConvert_PointerToScalar(t *testing.T) {
	env := newTestEnv(t)
	n := 7
	env.set(t, "v", &n)
	assert.Equal(t, int64(7), env.run(t, `v`))
	env.set(t, "v", (*int)(nil))
	assert.Equal(t, "undefined", env.run(t, `typeof v`))
}

func TestConvert_Time(t *testing.T) {
	env := newTestEnv(t)
	when := time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)
	env.set(t, "when", when)
	assert.Equal(t, true, env.run(t, `when instanceof Date`))
	assert.Equal(t, "2024-03-01T12:30:00.000Z", env.run(t, `when.toISOString()`))

	got, err := env.ctx.Get("when")
	require.NoError(t, err)
	assert.True(t, when.Equal(got.(time.Time)))
}

func TestConvert_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "err", &codedError{code: 3})
	assert.Equal(t, true, env.run(t, `err instanceof Error && err.message === "code 3"`))

	_, err := env.ctx.Eval(`throw err`)
	var coded *codedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 3, coded.code)
}

func TestConvert_Functions(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "double", func(x int) int { return 2 * x })
	assert.Equal(t, int64(8), env.run(t, `double(4)`))

	got, err := env.ctx.Get("double")
	require.NoError(t, err)
	fn, ok := got.(*Function)
	require.True(t, ok, "%T", got)
	v, err := fn.Call(5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestConvert_Objects(t *testing.T) {
	env := newTestEnv(t)
	v := env.run(t, `new Map([["a", 1]])`)
	obj, ok := v.(*Object)
	require.True(t, ok, "%T", v)
	assert.Equal(t, "Map", obj.ClassName())

	plain := env.run(t, `new (class Foo {})()`).(*Object)
	assert.Equal(t, "Object", plain.ClassName())

	again := env.run(t, `globalThis.m = new Map(); m`)
	same := env.run(t, `m`)
	assert.Same(t, again, same)

	env.set(t, "back", again)
	assert.Equal(t, true, env.run(t, `back === m`))

	custom := env.run(t, `globalThis.inst = new (class Foo { constructor() { this.a = 1 } })(); inst`).(*Object)
	keys, err := custom.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
	require.NoError(t, custom.Set("b", "two"))
	b, err := custom.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "two", b)
	assert.Equal(t, "two", env.run(t, `inst.b`))
}

func TestConvert_Symbol(t *testing.T) {
	env := newTestEnv(t)
	v := env.run(t, `Symbol("tag")`)
	_, ok := v.(*goja.Symbol)
	assert.True(t, ok, "%T", v)
}

func TestConvert_ForeignRuntimeProxy(t *testing.T) {
	env := newTestEnv(t)
	other := newTestEnv(t)
	obj := other.run(t, `({})`).(map[string]any)
	assert.Empty(t, obj)

	proxy := other.run(t, `new Set()`).(*Object)
	err := env.ctx.Set("v", proxy)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Detail, "another runtime")
}

func TestRuntime_ToValueFromValue(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.rt.ToValue([]string{"a"})
	require.NoError(t, err)
	back, err := env.rt.FromValue(v)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, back)

	_, err = env.rt.ToValue(int64(math.MaxInt64))
	assert.ErrorIs(t, err, ErrUnsafeInteger)
}

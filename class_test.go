// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Point struct {
	X      float64 `js:"x"`
	Y      float64 `js:"y"`
	Label  string
	hidden int
}

func NewPoint(x, y float64) *Point {
	return &Point{X: x, Y: y}
}

type Counter struct {
	N int
}

var errNegativeStart = errors.New("negative start")

func NewCounter(start int) (*Counter, error) {
	if start < 0 {
		return nil, errNegativeStart
	}
	return &Counter{N: start}, nil
}

func newPointClass(t *testing.T, env *testEnv) *JSClass {
	t.Helper()
	class, err := env.rt.NewClass(NewPoint, "x", "y", "label")
	require.NoError(t, err)
	require.NoError(t, env.ctx.AddClass(class))
	return class
}

func TestNewClass_Construct(t *testing.T) {
	env := newTestEnv(t)
	class := newPointClass(t, env)

	assert.Equal(t, "Point", class.Name())
	assert.Equal(t, reflect.TypeFor[*Point](), class.Type())
	assert.Same(t, env.rt, class.Runtime())
	assert.Equal(t, []string{"x", "y", "label"}, class.Attrs())

	v := env.run(t, `const p = new Point(3, 4); p`)
	p, ok := v.(*Point)
	require.True(t, ok, "%T", v)
	assert.Equal(t, Point{X: 3, Y: 4}, *p)

	assert.Equal(t, int64(7), env.run(t, `p.x + p.y`))
	assert.Equal(t, true, env.run(t, `p instanceof Point`))
	assert.Equal(t, "[object Point]", env.run(t, `Object.prototype.toString.call(p)`))
	assert.Equal(t, int64(2), env.run(t, `Point.length`))
	assert.Equal(t, "Point", env.run(t, `Point.name`))
	assert.Equal(t, "undefined", env.run(t, `typeof p.hidden`))
}

func TestNewClass_SharedStorage(t *testing.T) {
	env := newTestEnv(t)
	newPointClass(t, env)

	p := env.run(t, `const p = new Point(1, 2); p.x = 5; p.label = "origin"; p`).(*Point)
	assert.Equal(t, 5.0, p.X)
	assert.Equal(t, "origin", p.Label)

	p.Y = 9
	assert.Equal(t, int64(9), env.run(t, `p.y`))

	err := env.mustFail(t, `p.x = "five"`)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Point.x", ce.Detail)
	assert.Equal(t, 5.0, p.X)
}

func TestNewClass_Identity(t *testing.T) {
	env := newTestEnv(t)
	newPointClass(t, env)

	p := env.run(t, `globalThis.p = new Point(1, 1); p`).(*Point)
	env.bind(t, "same", func() *Point { return p })
	assert.Equal(t, true, env.run(t, `same() === p`))

	fresh := &Point{X: 8}
	env.set(t, "fresh", fresh)
	assert.Equal(t, int64(8), env.run(t, `fresh.x`))
	assert.Equal(t, 0.5, env.run(t, `fresh.x / 16`))
	assert.Equal(t, true, env.run(t, `fresh instanceof Point`))
	got, err := env.ctx.Get("fresh")
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestNewClass_InheritedInstance(t *testing.T) {
	env := newTestEnv(t)
	newPointClass(t, env)

	p := env.run(t, `globalThis.p = new Point(1, 2); p`).(*Point)
	v := env.run(t, `globalThis.derived = Object.create(p); derived`)
	obj, ok := v.(*Object)
	require.True(t, ok, "%T", v)
	assert.NotSame(t, p, v)
	assert.Equal(t, "Point", obj.ClassName())

	err := env.mustFail(t, `derived.x`)
	jsErr := requireJSError(t, err, "TypeError")
	assert.Contains(t, jsErr.Message, "receiver is not a Point instance")

	env.bind(t, "move", func(q *Point) { q.X++ })
	err = env.mustFail(t, `move(derived)`)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, 1.0, p.X)
}

func TestNewClass_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.rt.NewClass(NewPoint, "x")
	require.NoError(t, err)
	second, err := env.rt.NewClass(NewPoint, "y")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, first.ID(), second.ID())

	counter, err := env.rt.NewClass(NewCounter, "n")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), counter.ID())

	class, ok := env.rt.Class(reflect.TypeFor[*Counter]())
	require.True(t, ok)
	assert.Same(t, counter, class)
}

func TestNewClass_Invalid(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct {
		name  string
		ctor  any
		attrs []string
	}{
		{"not a func", 42, nil},
		{"nil func", (func() *Point)(nil), nil},
		{"no result", func() {}, nil},
		{"not a pointer", func() Point { return Point{} }, nil},
		{"not a struct", func() *int { return nil }, nil},
		{"unnamed", func() *struct{ A int } { return nil }, nil},
		{"bad second result", func() (*Point, int) { return nil, 0 }, nil},
		{"unknown attr", NewPoint, []string{"z"}},
		{"unexported attr", NewPoint, []string{"hidden"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.rt.NewClass(tc.ctor, tc.attrs...)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 0, env.rt.MemoryUsage().Classes)
}

func TestNewClass_ConstructorErrors(t *testing.T) {
	env := newTestEnv(t)
	newPointClass(t, env)

	err := env.mustFail(t, `new Point(1)`)
	jsErr := requireJSError(t, err, "TypeError")
	assert.Contains(t, jsErr.Message, "Point expects 2 arguments, got 1")

	err = env.mustFail(t, `Point(1, 2)`)
	requireJSError(t, err, "TypeError")

	counter, err := env.rt.NewClass(NewCounter, "n")
	require.NoError(t, err)
	require.NoError(t, env.ctx.AddClass(counter))

	err = env.mustFail(t, `new Counter(-1)`)
	assert.ErrorIs(t, err, errNegativeStart)
	assert.Equal(t, int64(3), env.run(t, `new Counter(3).n`))
}

func TestNewClass_ForeignReceiver(t *testing.T) {
	env := newTestEnv(t)
	newPointClass(t, env)

	err := env.mustFail(t, `
		const getter = Object.getOwnPropertyDescriptor(Point.prototype, "x").get;
		getter.call({})
	`)
	jsErr := requireJSError(t, err, "TypeError")
	assert.Contains(t, jsErr.Message, "receiver is not a Point instance")
}

func TestAddClass_ForeignRuntime(t *testing.T) {
	env := newTestEnv(t)
	other := newTestEnv(t)
	class, err := other.rt.NewClass(NewPoint, "x")
	require.NoError(t, err)

	assert.Error(t, env.ctx.AddClass(class))
	assert.Error(t, env.ctx.AddClass(nil))
}

func TestAddClass_PerContext(t *testing.T) {
	env := newTestEnv(t)
	newPointClass(t, env)
	other := NewContext(env.rt)

	assert.Equal(t, "function", env.run(t, `typeof Point`))
	v, err := other.Eval(`typeof Point`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v)
}

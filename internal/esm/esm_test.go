// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package esm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform_exports(t *testing.T) {
	prog, err := Transform("export const answer = 42;\nexport default function hello() { return 'hi'; }\n", "answer.js")
	require.NoError(t, err)
	assert.False(t, prog.Async)
	assert.Contains(t, prog.Code, "module.exports")
	assert.Contains(t, prog.Code, "answer")
	assert.NotContains(t, prog.Code, "export const")
}

func TestTransform_imports(t *testing.T) {
	prog, err := Transform("import { answer } from 'answer';\nexport const doubled = answer * 2;\n", "")
	require.NoError(t, err)
	assert.False(t, prog.Async)
	assert.Contains(t, prog.Code, `require("answer")`)
}

func TestTransform_topLevelAwait(t *testing.T) {
	prog, err := Transform("const v = await Promise.resolve(1);\n", "tla.js")
	require.NoError(t, err)
	assert.True(t, prog.Async)
	assert.Contains(t, prog.Code, CompleteFunc+"(")
	assert.Contains(t, prog.Code, "async")
}

func TestTransform_topLevelAwaitWithImports(t *testing.T) {
	_, err := Transform("import { answer } from 'answer';\nawait answer;\n", "tla.js")
	var syntax *SyntaxError
	require.ErrorAs(t, err, &syntax)
	assert.Equal(t, "tla.js", syntax.Filename)
	assert.Contains(t, syntax.Text, "top-level await requires a module without import or export declarations")
}

func TestTransform_syntaxError(t *testing.T) {
	_, err := Transform("export const = ;", "bad.js")
	var syntax *SyntaxError
	require.ErrorAs(t, err, &syntax)
	assert.Equal(t, "bad.js", syntax.Filename)
	assert.Equal(t, 1, syntax.Line)
	assert.NotEmpty(t, syntax.Text)
	assert.Contains(t, err.Error(), "bad.js:1:")
}

func TestSyntaxError_Error(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		err  *SyntaxError
		want string
	}{
		{"full", &SyntaxError{Filename: "a.js", Line: 2, Column: 3, Text: "oops"}, "a.js:2:3: oops"},
		{"no location", &SyntaxError{Filename: "a.js", Text: "oops"}, "a.js: oops"},
		{"bare", &SyntaxError{Text: "oops"}, "oops"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

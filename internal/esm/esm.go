// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package esm converts ES module source to a CommonJS function body, so that
// it can be evaluated by an engine without native module support.
package esm

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// CompleteFunc is the name of the function a top-level await module body
// passes its completion promise to.
const CompleteFunc = "__complete"

// Program is a converted module.
type Program struct {
	// Code is the function body. It expects exports, require, module and
	// [CompleteFunc] in scope.
	Code string
	// Async is set if the module uses top-level await. Code then calls
	// [CompleteFunc] exactly once, with the promise of the module body.
	Async bool
}

// SyntaxError is a parse failure.
type SyntaxError struct {
	Filename string
	Line     int
	Column   int
	Text     string
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	if e.Filename != "" {
		b.WriteString(e.Filename)
		b.WriteByte(':')
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "%d:%d: ", e.Line, e.Column)
	} else if b.Len() != 0 {
		b.WriteByte(' ')
	}
	b.WriteString(e.Text)
	return b.String()
}

// Transform converts the module source. Modules with top-level await are
// supported only if they have no import or export declarations.
func Transform(source, filename string) (*Program, error) {
	result := transform(source, filename)
	if len(result.Errors) == 0 {
		return &Program{Code: string(result.Code)}, nil
	}
	if !topLevelAwait(result.Errors) {
		return nil, syntaxError(filename, result.Errors[0])
	}

	wrapped := transform(CompleteFunc+"((async () => {\n"+source+"\n})());\n", filename)
	if len(wrapped.Errors) != 0 {
		err := syntaxError(filename, result.Errors[0])
		err.Text += " (top-level await requires a module without import or export declarations)"
		return nil, err
	}
	return &Program{Code: string(wrapped.Code), Async: true}, nil
}

func transform(source, filename string) api.TransformResult {
	return api.Transform(source, api.TransformOptions{
		Format:     api.FormatCommonJS,
		Loader:     api.LoaderJS,
		Target:     api.ES2020,
		Sourcefile: filename,
		LogLevel:   api.LogLevelSilent,
	})
}

func topLevelAwait(msgs []api.Message) bool {
	for _, msg := range msgs {
		if strings.Contains(msg.Text, "Top-level await") {
			return true
		}
	}
	return false
}

func syntaxError(filename string, msg api.Message) *SyntaxError {
	err := &SyntaxError{Filename: filename, Text: msg.Text}
	if loc := msg.Location; loc != nil {
		err.Line, err.Column = loc.Line, loc.Column
	}
	return err
}

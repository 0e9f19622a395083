// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"bytes"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/util"
	"github.com/joeycumines/logiface"
)

// installConsole defines a console global whose methods write to the
// runtime's logger. A leading string argument containing % is a
// util.format format string.
func (r *Runtime) installConsole() error {
	formatter := util.New(r.vm)
	console := r.vm.NewObject()
	for _, m := range [...]struct {
		name  string
		level logiface.Level
	}{
		{"log", logiface.LevelInformational},
		{"info", logiface.LevelInformational},
		{"warn", logiface.LevelWarning},
		{"error", logiface.LevelError},
		{"debug", logiface.LevelDebug},
		{"trace", logiface.LevelTrace},
	} {
		level := m.level
		fn := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			r.consoleLog(formatter, level, call.Arguments)
			return goja.Undefined()
		}).(*goja.Object)
		r.nameFunction(fn, m.name, 0)
		if err := console.DefineDataProperty(m.name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	return r.intrinsics.global.DefineDataProperty("console", console, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (r *Runtime) consoleLog(formatter *util.Util, level logiface.Level, args []goja.Value) {
	b := r.logger.Build(level)
	if !b.Enabled() {
		return
	}
	b.Str("source", "console").Log(r.consoleMessage(formatter, args))
}

func (r *Runtime) consoleMessage(formatter *util.Util, args []goja.Value) string {
	if len(args) != 0 {
		if f, ok := args[0].(goja.String); ok && strings.ContainsRune(f.String(), '%') {
			var buf bytes.Buffer
			if ex := r.vm.Try(func() { formatter.Format(&buf, f.String(), args[1:]...) }); ex != nil {
				return "[unprintable]"
			}
			return buf.String()
		}
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = r.format(arg)
	}
	return strings.Join(parts, " ")
}

// format renders a console argument. Errors print their stack when
// available; other values use their string conversion.
func (r *Runtime) format(v goja.Value) (s string) {
	if v == nil {
		return "undefined"
	}
	if ex := r.vm.Try(func() {
		if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Error" {
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				s = stack.String()
				return
			}
		}
		s = v.String()
	}); ex != nil {
		return "[unprintable]"
	}
	return s
}

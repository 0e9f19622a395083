// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command jsbridge evaluates JavaScript files, or starts an interactive
// prompt when no files are given.
//
// Usage:
//
//	jsbridge [-module] [-strict] [-timeout d] [-memory bytes] [-v] [file ...]
//
// Log events, including console output, are written to stderr as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	jsbridge "github.com/joeycumines/go-jsbridge"
	prompt "github.com/joeycumines/go-prompt"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

type config struct {
	module  bool
	strict  bool
	verbose bool
	timeout time.Duration
	memory  uint64
	files   []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	bridge, err := newBridge(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "jsbridge: %v\n", err)
		return 1
	}
	defer bridge.Runtime().Close()

	if len(cfg.files) == 0 {
		return repl(bridge, cfg, stdout)
	}
	for _, name := range cfg.files {
		if err := runFile(ctx, bridge, cfg, name, stdout); err != nil {
			fmt.Fprintf(stderr, "jsbridge: %s: %v\n", name, err)
			return 1
		}
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	var cfg config
	fs := flag.NewFlagSet("jsbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&cfg.module, "module", false, "evaluate sources as ES modules")
	fs.BoolVar(&cfg.strict, "strict", false, "evaluate scripts in strict mode")
	fs.BoolVar(&cfg.verbose, "v", false, "log at debug level")
	fs.DurationVar(&cfg.timeout, "timeout", 0, "abort each evaluation after this long (0 disables)")
	fs.Uint64Var(&cfg.memory, "memory", 0, "heap growth ceiling per evaluation in bytes (0 uses the default)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.files = fs.Args()
	return &cfg, nil
}

func newBridge(cfg *config, stderr io.Writer) (*jsbridge.Context, error) {
	level := logiface.LevelInformational
	if cfg.verbose {
		level = logiface.LevelDebug
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	opts := []jsbridge.Option{jsbridge.WithLogger(logger)}
	if cfg.memory != 0 {
		opts = append(opts, jsbridge.WithMemoryLimit(cfg.memory))
	}
	return jsbridge.NewDefaultContext(opts...)
}

func evalOptions(cfg *config, name string) []jsbridge.EvalOption {
	opts := []jsbridge.EvalOption{jsbridge.Filename(name)}
	if cfg.module {
		opts = append(opts, jsbridge.Module())
	}
	if cfg.strict {
		opts = append(opts, jsbridge.Strict())
	}
	return opts
}

func runFile(ctx context.Context, bridge *jsbridge.Context, cfg *config, name string, stdout io.Writer) error {
	source, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	result, err := bridge.EvalContext(ctx, string(source), evalOptions(cfg, name)...)
	if err != nil {
		return err
	}
	if p, ok := result.(*jsbridge.Promise); ok {
		fmt.Fprintf(stdout, "module still awaiting (%s)\n", p.State())
	}
	return nil
}

func repl(bridge *jsbridge.Context, cfg *config, stdout io.Writer) int {
	executor := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" || line == ".exit" {
			return
		}
		ctx := context.Background()
		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
		result, err := bridge.EvalContext(ctx, line, evalOptions(cfg, "<repl>")...)
		if err != nil {
			fmt.Fprintf(stdout, "Uncaught %v\n", err)
			return
		}
		fmt.Fprintln(stdout, show(result))
	}
	p := prompt.New(
		executor,
		prompt.WithPrefix(">>> "),
		prompt.WithTitle("jsbridge"),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return breakline && strings.TrimSpace(in) == ".exit"
		}),
	)
	if code := p.RunNoExit(); code > 0 {
		return code
	}
	return 0
}

// show renders an evaluation result for the prompt.
func show(v any) string {
	switch v := v.(type) {
	case nil:
		return "undefined"
	case string:
		return fmt.Sprintf("%q", v)
	case *jsbridge.Promise:
		return fmt.Sprintf("Promise { <%s> }", v.State())
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

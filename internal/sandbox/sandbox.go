// Package sandbox executes model-authored scripts in a restricted Starlark
// interpreter. The namespace contains only the bindings registered by the
// host: no filesystem, network, or process access is reachable from a
// script.
package sandbox

import (
	"context"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
)

// Model-authored scripts use loops, conditionals, and reassignment at the
// top level, which the default dialect forbids.
func init() {
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
	resolve.AllowSet = true
}

// DefaultEmptyHint is returned when a script completes without printing.
const DefaultEmptyHint = "Code executed successfully, but produced no output. Use print() to return results."

// LookupFunc is a host function exposed to scripts. It takes one string
// and returns one string, matching the supply-chain lookup shape.
type LookupFunc func(string) string

// Result is the outcome of one script execution. Exactly one of the three
// conditions holds: output was produced, the script failed at runtime, or
// it completed silently.
type Result struct {
	Output       string
	RuntimeError string
}

// Failed reports whether the script raised a runtime or syntax error.
func (r Result) Failed() bool { return r.RuntimeError != "" }

// Text renders the result as the single string handed back to the model.
// Failures and the empty-output condition are reported in-band so the
// model can correct its script on the next turn.
func (r Result) Text(emptyHint string) string {
	if r.Failed() {
		return "Execution error: " + r.RuntimeError
	}
	if r.Output == "" {
		if emptyHint == "" {
			return DefaultEmptyHint
		}
		return emptyHint
	}
	return r.Output
}

// Executor runs scripts against a fixed set of host bindings. Executions
// share the bindings but nothing else: each run gets a fresh thread and a
// fresh output buffer.
type Executor struct {
	predeclared starlark.StringDict
	maxOutput   int
}

func New() *Executor {
	return &Executor{predeclared: starlark.StringDict{}}
}

// LimitOutput caps the captured print output at n bytes. Writes past the
// cap are dropped. Zero means unlimited.
func (e *Executor) LimitOutput(n int) {
	e.maxOutput = n
}

// Bind registers a host lookup under one or more names. Aliases let the
// script namespace mirror both the internal lookup names and the
// capability names the model has already seen.
func (e *Executor) Bind(fn LookupFunc, names ...string) {
	for _, name := range names {
		e.predeclared[name] = builtinLookup(name, fn)
	}
}

// Names lists the registered bindings, in no particular order.
func (e *Executor) Names() []string {
	names := make([]string, 0, len(e.predeclared))
	for name := range e.predeclared {
		names = append(names, name)
	}
	return names
}

// Run executes one script. It never returns a Go error: script failures
// are data, captured in the result.
func (e *Executor) Run(ctx context.Context, src string) Result {
	var out strings.Builder
	thread := &starlark.Thread{
		Name: "script",
		Print: func(_ *starlark.Thread, msg string) {
			if e.maxOutput > 0 && out.Len() >= e.maxOutput {
				return
			}
			out.WriteString(msg)
			out.WriteString("\n")
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	_, err := starlark.ExecFile(thread, "script.star", src, e.predeclared)
	if err != nil {
		return Result{Output: out.String(), RuntimeError: errorText(err)}
	}
	return Result{Output: out.String()}
}

func builtinLookup(name string, fn LookupFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var arg string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &arg); err != nil {
			return nil, err
		}
		return starlark.String(fn(arg)), nil
	})
}

// errorText renders a script failure with its traceback when one exists,
// so the model sees which line failed.
func errorText(err error) string {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return fmt.Sprintf("%s\n%s", evalErr.Msg, strings.TrimSpace(evalErr.Backtrace()))
	}
	return err.Error()
}

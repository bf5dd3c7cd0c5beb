package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/manifest"
	"github.com/chazu/ember/vm"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10"},
		{"-3", "-3"},
		{"2.5", "2.5"},
		{"true", "true"},
		{"null", "null"},
		{"undefined", "undefined"},
		{"hello", `"hello"`},
		{"0x10", `"0x10"`},
	}
	for _, tt := range tests {
		if got := vm.Inspect(parseArg(tt.in)); got != tt.want {
			t.Errorf("parseArg(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if k := parseArg("7").Kind(); k != vm.KindInt {
		t.Errorf("parseArg(7) kind = %s, want int", k)
	}
}

func repl(t *testing.T, input string) string {
	t.Helper()
	var out bytes.Buffer
	runREPL(newSession(vm.New(), nil), strings.NewReader(input), &out)
	return out.String()
}

func TestREPLKeepsState(t *testing.T) {
	out := repl(t, `let total = 2
function add(n) {
  return total + n
}
add(3)
total = total * 10
add(1)
`)
	for _, want := range []string{">> 5\n", ">> 20\n", ">> 21\n", ".. .. "} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Error") {
		t.Errorf("unexpected error in output:\n%s", out)
	}
}

func TestREPLRedefinition(t *testing.T) {
	out := repl(t, `function f() { return 1 }
function f() { return 2 }
f()
let f = "shadow"
f
`)
	if !strings.Contains(out, ">> 2\n") {
		t.Errorf("redefined function should win:\n%s", out)
	}
	if !strings.Contains(out, `>> "shadow"`) {
		t.Errorf("let should replace the kept function:\n%s", out)
	}
	if strings.Contains(out, "Error") {
		t.Errorf("unexpected error in output:\n%s", out)
	}
}

func TestREPLErrors(t *testing.T) {
	out := repl(t, "let x = ;\nmissing + 1\n1 + 1\n")
	if !strings.Contains(out, "Error: line 1, column 9") {
		t.Errorf("syntax error not reported:\n%s", out)
	}
	if !strings.Contains(out, "missing is not defined") {
		t.Errorf("runtime error not reported:\n%s", out)
	}
	if !strings.Contains(out, ">> 2\n") {
		t.Errorf("REPL should continue after errors:\n%s", out)
	}
}

func TestREPLCommands(t *testing.T) {
	out := repl(t, "function sq(x) { return x * x }\n:functions\n:globals\n:bogus\n:reset\nsq(2)\nexit\n1 + 1\n")
	if !strings.Contains(out, "  sq\n") {
		t.Errorf(":functions should list sq:\n%s", out)
	}
	if !strings.Contains(out, "Math") {
		t.Errorf(":globals should list Math:\n%s", out)
	}
	if !strings.Contains(out, "Unknown command: :bogus") {
		t.Errorf("unknown command not reported:\n%s", out)
	}
	if !strings.Contains(out, "sq is not defined") {
		t.Errorf(":reset should forget sq:\n%s", out)
	}
	if strings.Contains(out, ">> 2\n") {
		t.Errorf("input after exit should be ignored:\n%s", out)
	}
}

func TestStepLimit(t *testing.T) {
	v := vm.New()
	lim := installLimits(v, options{maxSteps: 100})
	if lim == nil {
		t.Fatal("installLimits returned nil with a step limit")
	}
	prog, err := compiler.CompileSource("while (true) {}")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Load(prog); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Run(); !errors.Is(err, ErrStepLimit) {
		t.Errorf("Run error = %v, want ErrStepLimit", err)
	}

	lim.reset()
	if lim.steps != 0 {
		t.Errorf("steps after reset = %d, want 0", lim.steps)
	}
}

func TestTimeout(t *testing.T) {
	v := vm.New()
	installLimits(v, options{timeout: time.Millisecond})
	prog, err := compiler.CompileSource("while (true) {}")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Load(prog); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Run(); !errors.Is(err, ErrTimeout) {
		t.Errorf("Run error = %v, want ErrTimeout", err)
	}
}

func TestNoLimits(t *testing.T) {
	lim := installLimits(vm.New(), options{})
	if lim != nil {
		t.Errorf("installLimits without limits = %+v, want nil", lim)
	}
	lim.reset()
}

func TestManifestSettings(t *testing.T) {
	m, err := manifest.Parse(`
[run]
max-steps = 500
timeout = "2s"

[globals]
greeting = "hi"
count = 3
`)
	if err != nil {
		t.Fatal(err)
	}

	opts := options{maxSteps: 10, verbosity: -1}
	applyManifest(&opts, m)
	if opts.maxSteps != 10 {
		t.Errorf("command-line max-steps overridden: %d", opts.maxSteps)
	}
	if opts.timeout != 2*time.Second {
		t.Errorf("timeout = %v, want 2s", opts.timeout)
	}
	if opts.verbosity != 0 {
		t.Errorf("verbosity = %d, want manifest default 0", opts.verbosity)
	}

	v := vm.New()
	if err := registerGlobals(v, m.Globals); err != nil {
		t.Fatal(err)
	}
	prog, err := compiler.CompileSource("greeting + count")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Load(prog); err != nil {
		t.Fatal(err)
	}
	result, err := v.Run()
	if err != nil {
		t.Fatal(err)
	}
	if got := vm.Inspect(result); got != `"hi3"` {
		t.Errorf("result = %s, want \"hi3\"", got)
	}
}

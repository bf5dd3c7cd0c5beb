package vm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/vm"
)

func profileRun(t *testing.T, src string, next vm.StepHook) (*vm.Profiler, *vm.Program, error) {
	t.Helper()
	prog, err := compiler.CompileSource(src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := vm.NewProfiler()
	v := vm.New()
	v.SetStepHook(p.Hook(next))
	if err := v.Load(prog); err != nil {
		t.Fatal(err)
	}
	_, err = v.Run()
	return p, prog, err
}

func TestProfilerCountsInvocations(t *testing.T) {
	p, prog, err := profileRun(t, `
function fib(n) { return n < 2 ? n : fib(n - 1) + fib(n - 2) }
function count(n) {
  while (n > 0) n--
  return n
}
count(3)
fib(5)
`, nil)
	if err != nil {
		t.Fatal(err)
	}

	fib := p.Profile(prog.Functions[prog.Named["fib"]])
	if fib == nil || fib.Invocations != 15 {
		t.Errorf("fib invocations = %+v, want 15", fib)
	}
	count := p.Profile(prog.Functions[prog.Named["count"]])
	if count == nil || count.Invocations != 1 {
		t.Errorf("count invocations = %+v, want 1", count)
	}

	top := p.TopFunctions(1)
	if len(top) != 1 || top[0].Function.Name != "fib" {
		t.Errorf("hottest function = %v, want fib", top)
	}
	if p.OpcodeCount(vm.OpCall) == 0 {
		t.Error("no CALL instructions recorded")
	}

	var sum uint64
	for _, prof := range p.TopFunctions(-1) {
		sum += prof.Instructions
	}
	if sum != p.Total() {
		t.Errorf("per-function sum = %d, total = %d", sum, p.Total())
	}

	var b strings.Builder
	p.Report(&b, 2)
	if !strings.Contains(b.String(), "fib") {
		t.Errorf("report missing fib:\n%s", b.String())
	}

	p.Reset()
	if p.Total() != 0 || len(p.TopFunctions(-1)) != 0 {
		t.Error("Reset should discard everything")
	}
}

func TestProfilerChainsHook(t *testing.T) {
	stop := errors.New("stop")
	steps := 0
	p, _, err := profileRun(t, "while (true) {}", func(*vm.Function, int) error {
		steps++
		if steps == 10 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Run error = %v, want the chained hook error", err)
	}
	if p.Total() != 10 {
		t.Errorf("Total() = %d, want 10", p.Total())
	}
}

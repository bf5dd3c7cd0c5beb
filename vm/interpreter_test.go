package vm_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/vm"
)

func load(t *testing.T, src string) *vm.VM {
	t.Helper()
	prog, err := compiler.CompileSource(src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	m := vm.New()
	m.SetOutput(io.Discard)
	if err := m.Load(prog); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func run(t *testing.T, src string) (*vm.VM, vm.Value) {
	t.Helper()
	m := load(t, src)
	v, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return m, v
}

func runtimeError(t *testing.T, src string) *vm.RuntimeError {
	t.Helper()
	m := load(t, src)
	_, err := m.Run()
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Run(%q) error = %v, want *vm.RuntimeError", src, err)
	}
	return rerr
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func TestPrecedenceWithBindings(t *testing.T) {
	m := load(t, "a + b * c + d")
	for name, v := range map[string]int{"a": 1, "b": 2, "c": 3, "d": 4} {
		if err := m.Register(name, v); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	got, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Kind() != vm.KindInt || got.AsInt() != 11 {
		t.Errorf("a + b * c + d = %v, want 11", got)
	}
}

func TestChainedAssignment(t *testing.T) {
	m, got := run(t, "x = y = 5")
	if got.AsInt() != 5 {
		t.Errorf("completion = %v, want 5", got)
	}
	for _, name := range []string{"x", "y"} {
		v, ok := m.Global(name)
		if !ok || v.AsInt() != 5 {
			t.Errorf("%s = %v (bound %v), want 5", name, v, ok)
		}
	}
}

func TestRecursiveFactorial(t *testing.T) {
	src := `
function fact(n) {
  if (n <= 1) return 1;
  return n * fact(n - 1);
}
fact(5)
`
	m, got := run(t, src)
	if got.AsInt() != 120 {
		t.Errorf("fact(5) = %v, want 120", got)
	}
	v, err := m.Call("fact", vm.Int(6))
	if err != nil {
		t.Fatalf("Call(fact): %v", err)
	}
	if v.AsInt() != 720 {
		t.Errorf("Call(fact, 6) = %v, want 720", v)
	}
}

func TestForLoopSum(t *testing.T) {
	m, _ := run(t, "var sum = 0; for (var i = 0; i < 5; i++) sum += i;")
	v, err := m.GetVar("sum")
	if err != nil {
		t.Fatalf("GetVar(sum): %v", err)
	}
	if v.AsInt() != 10 {
		t.Errorf("sum = %v, want 10", v)
	}
}

func TestSwitchFallthrough(t *testing.T) {
	src := `var r; switch (2) { case 1: r = "a"; case 2: r = "b"; case 3: r = "c"; break; default: r = "d"; }`
	m, _ := run(t, src)
	v, err := m.GetVar("r")
	if err != nil {
		t.Fatalf("GetVar(r): %v", err)
	}
	if v.AsString() != "c" {
		t.Errorf("r = %v, want c", v)
	}
}

// ---------------------------------------------------------------------------
// Language semantics
// ---------------------------------------------------------------------------

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"completion", `1 + 1; "done"`, "done"},
		{"block shadowing", `var out = []; let x = 1; { let x = 2; out.push(x); } out.push(x); out.join(",")`, "2,1"},
		{"let invisible outside block", `{ let hidden = 1; } typeof hidden`, "undefined"},
		{"var hoisting", `function f() { var seen = typeof v; if (true) { var v = 3; } return seen + ":" + v; } f()`, "undefined:3"},
		{"defaults", `function f(a, b = 10) { return a + b; } [f(1), f(1, undefined), f(1, 2, 3)].join(",")`, "11,11,3"},
		{"method this", `var o = { n: 4, get: function() { return this.n; } }; o.get()`, "4"},
		{"arrow this", `var o = { n: 4, f: function() { var g = () => this.n * 2; return g(); } }; o.f()`, "8"},
		{"detached method", `var o = { f: function() { return this; } }; var g = o.f; g() === undefined`, "true"},
		{"nested method calls", `var o = { name: "o", m: function(x) { return this.name + x; } }; var p = { name: "p", q: function() { return this.name; } }; o.m(p.q())`, "op"},
		{"method call argument", `var o = { name: "o", m: function(x) { return [this.name, x].join(","); } }; function f() { return this === undefined; } o.m(f())`, "o,true"},
		{"parenthesized method", `var o = { n: 2, f: function() { return this.n; } }; (o.f)()`, "2"},
		{"ternary drops receiver", `var o = { f: function() { return this; } }; [(true ? o.f : null)() === undefined, (false ? null : o["f"])() === undefined].join(",")`, "true,true"},
		{"logical drops receiver", `var o = { f: function() { return this; } }; [(o.f || null)() === undefined, (1 && o.f)() === undefined].join(",")`, "true,true"},
		{"comma in for clauses", `var s = []; for (var i = 0, j = 3; i < j; i++, j--) s.push(i + ":" + j); s.join(",")`, "0:3,1:2"},
		{"sequence value", `var n = 0; var a = (n++, n++, n * 10); var o = { f: function() { return this; } }; [a, n, (0, o.f)() === undefined].join(",")`, "20,2,true"},
		{"parenthesized negative base", `[(-2) ** 2, 2 ** -1].join(",")`, "4,0.5"},
		{"arrow expression body", `var sq = x => x * x; sq(7)`, "49"},
		{"later let seen by closure", `function f() { return y; } let y = 3; f()`, "3"},
		{"member update", `var o = {n: 1}; var arr = [5]; var r1 = o.n++; var r2 = ++o.n; arr[0] += 2; var r3 = arr[0]--; [r1, r2, o.n, r3, arr[0]].join(",")`, "1,3,3,7,6"},
		{"logical", `var a = 0 || "x"; var b = 1 && 2; var c = null && boom(); [a, b, c].join(",")`, "x,2,"},
		{"ternary", `var n = 5; n > 3 ? "big" : "small"`, "big"},
		{"string members", `"Hello".toUpperCase() + "abc".length`, "HELLO3"},
		{"split", `"a,b,c".split(",").length`, "3"},
		{"array growth", `var a = [1, 2]; a[3] = 9; [a.length, typeof a[2]].join(",")`, "4,undefined"},
		{"dictionary", `var d = {a: 1}; [typeof d.b, d.hasOwnProperty("a"), d["a"]].join(",")`, "undefined,true,1"},
		{"division", `[7 / 2, 6 / 3, 7 % 3, 2 ** 10].join(",")`, "3.5,2,1,1024"},
		{"equality", `[1 == "1", 1 === "1", null == undefined, null === undefined].join(",")`, "true,false,true,false"},
		{"bitwise", `[5 & 3, 5 | 3, 5 ^ 3, ~5, 1 << 4, -16 >> 2, -1 >>> 28].join(",")`, "1,7,6,-6,16,-4,15"},
		{"math", `[Math.floor(7 / 2), Math.max(1, 9, 4), Math.abs(-3)].join(",")`, "3,9,3"},
		{"typeof", `[typeof 1, typeof "s", typeof {}, typeof [], typeof null, typeof print, typeof function() {}].join(",")`, "number,string,object,object,object,function,function"},
		{"named function expression", `var f = function fib(n) { return n < 2 ? n : fib(n - 1) + fib(n - 2); }; f(10)`, "55"},
		{"string concat", `"n=" + 1 + 2`, "n=12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := run(t, tt.src)
			if got.String() != tt.want {
				t.Errorf("%s = %q, want %q", tt.src, got.String(), tt.want)
			}
		})
	}
}

func TestClosureSiblingWrites(t *testing.T) {
	src := `
function counter() {
  var count = 0;
  function inc() { count = count + 1; }
  function get() { return count; }
  inc();
  inc();
  var a = get();
  inc();
  return a * 10 + get();
}
counter()
`
	_, got := run(t, src)
	if got.AsInt() != 23 {
		t.Errorf("counter() = %v, want 23", got)
	}
}

func TestEscapedClosureFails(t *testing.T) {
	src := `
function make() {
  var n = 1;
  return function() { return n; };
}
var g = make();
g()
`
	rerr := runtimeError(t, src)
	if !strings.Contains(rerr.Msg, "no longer active") {
		t.Errorf("Msg = %q, want enclosing scope error", rerr.Msg)
	}
}

func TestLoopControl(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"continue and break", `var s = 0; for (var i = 0; i < 10; i++) { if (i % 2 == 0) continue; if (i > 7) break; s += i; } s`, 16},
		{"do and while", `var n = 0; do { n++; } while (n < 3); var k = 0; while (true) { k++; if (k == 4) break; } n * 10 + k`, 34},
		{"switch in loop", `var hits = 0; for (var i = 0; i < 4; i++) { switch (i) { case 1: continue; case 2: break; default: hits += 10; } hits++; } hits`, 23},
		{"nested loops", `var c = 0; for (let i = 0; i < 3; i++) { for (let j = 0; j < 3; j++) { if (j == i) break; c++; } } c`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := run(t, tt.src)
			if got.AsInt() != tt.want {
				t.Errorf("%s = %v, want %d", tt.src, got, tt.want)
			}
		})
	}
}

func TestSwitchDefault(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`var r; switch (5) { case 1: r = "one"; default: r = "other"; } r`, "other"},
		{`var r = ""; switch (9) { default: r = "d"; case 1: r = r + "1"; } r`, "d1"},
		{`var r = "none"; switch (3) { case 1: r = "one"; } r`, "none"},
		{`var r; switch ("1") { case 1: r = "number"; break; case "1": r = "string"; } r`, "string"},
	}
	for _, tt := range tests {
		_, got := run(t, tt.src)
		if got.String() != tt.want {
			t.Errorf("%s = %q, want %q", tt.src, got.String(), tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Host API
// ---------------------------------------------------------------------------

func TestHostFunctions(t *testing.T) {
	m := load(t, `print("a", 1, true); double(21)`)
	var out bytes.Buffer
	m.SetOutput(&out)
	err := m.RegisterFunc("double", 1, func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Mul(args[0], vm.Int(2)), nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	got, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.AsInt() != 42 {
		t.Errorf("double(21) = %v, want 42", got)
	}
	if out.String() != "a 1 true\n" {
		t.Errorf("print output = %q, want %q", out.String(), "a 1 true\n")
	}
}

func TestTopLevelVariables(t *testing.T) {
	src := `
var total = 1;
const K = 2;
function addTo(n) { total = total + n; return total; }
function bad() { return missing(); }
`
	m := load(t, src)
	if _, err := m.Call("addTo", vm.Int(1)); !errors.Is(err, vm.ErrNotExecuted) {
		t.Errorf("Call before Run error = %v, want ErrNotExecuted", err)
	}
	if m.HasVar("total") {
		t.Error("HasVar(total) before Run = true, want false")
	}
	if _, err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !m.HasVar("total") || !m.HasVar("K") {
		t.Error("HasVar should report total and K")
	}
	if m.HasVar("addTo") {
		t.Error("HasVar(addTo) = true, want false for a function declaration")
	}

	v, err := m.Call("addTo", vm.Int(4))
	if err != nil || v.AsInt() != 5 {
		t.Fatalf("Call(addTo, 4) = %v, %v; want 5", v, err)
	}
	if v, _ := m.GetVar("total"); v.AsInt() != 5 {
		t.Errorf("total = %v, want 5", v)
	}
	if err := m.SetVar("total", vm.Int(100)); err != nil {
		t.Fatalf("SetVar: %v", err)
	}
	if err := m.SetVar("K", vm.Int(3)); err == nil {
		t.Error("SetVar on a const should fail")
	}
	if _, err := m.GetVar("nope"); !errors.Is(err, vm.ErrUnknownVar) {
		t.Errorf("GetVar(nope) error = %v, want ErrUnknownVar", err)
	}

	if _, err := m.Call("bad"); err == nil {
		t.Error("Call(bad) should fail")
	}
	v, err = m.Call("addTo", vm.Int(1))
	if err != nil || v.AsInt() != 101 {
		t.Errorf("Call(addTo, 1) after failed call = %v, %v; want 101", v, err)
	}
	if _, err := m.Call("nothing"); err == nil {
		t.Error("Call(nothing) should fail")
	}
}

func TestReentrantCallRejected(t *testing.T) {
	m := load(t, `function f() { return 1; } reenter()`)
	var inner error
	err := m.RegisterFunc("reenter", 0, func(_ vm.Value, _ []vm.Value) (vm.Value, error) {
		_, inner = m.Call("f")
		return vm.Undefined, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if _, err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(inner, vm.ErrRunning) {
		t.Errorf("nested Call error = %v, want ErrRunning", inner)
	}
}

func TestStepHook(t *testing.T) {
	errBudget := errors.New("budget exhausted")
	m := load(t, "while (true) {}")
	steps := 0
	m.SetStepHook(func(*vm.Function, int) error {
		steps++
		if steps > 1000 {
			return errBudget
		}
		return nil
	})
	if _, err := m.Run(); !errors.Is(err, errBudget) {
		t.Errorf("Run error = %v, want budget error", err)
	}
	if m.HasVar("anything") {
		t.Error("failed run should leave nothing executed")
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
		line int
	}{
		{"undefinedThing + 1", "undefinedThing is not defined", 1},
		{"var x = 5;\nx()", "is not a function", 2},
		{"var n = null;\n\nn.foo", "cannot read property", 3},
		{"[1, 2].foo", "has no property", 1},
		{"function f() { return f(); }\nf()", "maximum call stack size exceeded", 1},
	}
	for _, tt := range tests {
		m := load(t, tt.src)
		_, err := m.Run()
		var rerr *vm.RuntimeError
		if !errors.As(err, &rerr) {
			t.Fatalf("Run(%q) error = %v, want *vm.RuntimeError", tt.src, err)
		}
		if rerr.VM != m.ID() {
			t.Errorf("%q: VM = %s, want %s", tt.src, rerr.VM, m.ID())
		}
		if !strings.Contains(rerr.Msg, tt.want) {
			t.Errorf("%q: Msg = %q, want %q", tt.src, rerr.Msg, tt.want)
		}
		if rerr.Line != tt.line {
			t.Errorf("%q: Line = %d, want %d", tt.src, rerr.Line, tt.line)
		}
	}
}

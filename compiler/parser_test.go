package compiler

import (
	"errors"
	"strings"
	"testing"
)

// render parses src and joins the s-expressions of its statements.
func render(t *testing.T, src string) string {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	parts := make([]string, len(prog.Stmts))
	for i, s := range prog.Stmts {
		parts[i] = Sexpr(s)
	}
	return strings.Join(parts, "; ")
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a + b * c + d", "(+ (+ a (* b c)) d)"},
		{"(a + b) * c", "(* (+ a b) c)"},
		{"2 ** 3 ** 2", "(** 2 (** 3 2))"},
		{"a = b = c", "(= a (= b c))"},
		{"x += y * 2", "(+= x (* y 2))"},
		{"!a && b || c", "(|| (&& (! a) b) c)"},
		{"a & b | c ^ d", "(| (& a b) (^ c d))"},
		{"a << 1 < b", "(< (<< a 1) b)"},
		{"typeof x === 'string'", `(=== (typeof x) "string")`},
		{"-x.y", "(- (. x y))"},
		{"a++ + ++b", "(+ (post++ a) (++ b))"},
		{"f(a, b)[0].c", "(. ([] (call f a b) 0) c)"},
		{"o.if.default", "(. (. o if) default)"},
		{"a.b.c = d[i + 1]", "(= (. (. a b) c) ([] d (+ i 1)))"},
		{"[1, 'two', [3],]", `(array 1 "two" (array 3))`},
		{"{a: 1, b, 'c d': null}", `(object (a 1) (b b) (c d null))`},
		{"0x10 + 1.5", "(+ 16 1.5)"},
		{"this.n", "(. this n)"},
		{"(-2) ** 2", "(** (- 2) 2)"},
		{"2 ** -x", "(** 2 (- x))"},
		{"(a, b.c)", "(, a (. b c))"},
		{"f((a, b), c)", "(call f (, a b) c)"},
	}

	for _, tc := range tests {
		x, err := ParseExpression(tc.input)
		if err != nil {
			t.Errorf("ParseExpression(%q): %v", tc.input, err)
			continue
		}
		if got := Sexpr(x); got != tc.want {
			t.Errorf("ParseExpression(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseConditional(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a ? b : c", "(? a b c)"},
		{"a ? b : c ? d : e", "(? a b (? c d e))"},
		{"a ? b ? c : d : e", "(? a (? b c d) e)"},
		{"x = a || b ? c : d", "(= x (? (|| a b) c d))"},
		{"f(a ? 1 : 2, b)", "(call f (? a 1 2) b)"},
		{"[a ? b : c]", "(array (? a b c))"},
	}

	for _, tc := range tests {
		x, err := ParseExpression(tc.input)
		if err != nil {
			t.Errorf("ParseExpression(%q): %v", tc.input, err)
			continue
		}
		if got := Sexpr(x); got != tc.want {
			t.Errorf("ParseExpression(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseFunctions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"function add(a, b = 2) { return a + b }", "(function add (a b) (block (return (+ a b))))"},
		{"let f = function () {}", "(let (f (function  () (block))))"},
		{"let sq = x => x * x", "(let (sq (arrow  (x) (block (return (* x x))))))"},
		{"let p = (a, b) => { return a }", "(let (p (arrow  (a b) (block (return a)))))"},
		{"let z = () => 0", "(let (z (arrow  () (block (return 0)))))"},
		{"(a) + 1", "(+ a 1)"},
	}

	for _, tc := range tests {
		if got := render(t, tc.input); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}

	prog, err := Parse("function f(n = -1, s = 'x') {}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	params := prog.Stmts[0].(*FunctionDecl).Func.Params
	if lit, ok := params[0].Default.(*IntLiteral); !ok || lit.Value != -1 {
		t.Errorf("default of n = %#v, want -1", params[0].Default)
	}
	if lit, ok := params[1].Default.(*StringLiteral); !ok || lit.Value != "x" {
		t.Errorf("default of s = %#v, want \"x\"", params[1].Default)
	}
}

func TestParseStatements(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"let x = 1, y", "(let (x 1) (y nil))"},
		{"var a; const b = 2;", "(var (a nil)); (const (b 2))"},
		{"if (a) b; else if (c) d; else e", "(if a b c d else e)"},
		{"if (a) { b }", "(if a (block b))"},
		{"while (x) { x-- }", "(while x (block (post-- x)))"},
		{"do x++; while (x < 3)", "(do (post++ x) (< x 3))"},
		{"for (let i = 0; i < n; i++) s += i", "(for (let (i 0)) (< i n) (post++ i) (+= s i))"},
		{"for (i = 0; ; ) break", "(for (= i 0) empty empty break)"},
		{"for (;;) { continue }", "(for empty empty empty (block continue))"},
		{"switch (k) { case 1: a; case 2: default: b }", "(switch k (case 1 a) (case 2) (default b))"},
		{"for (var i = 0, j = 10; i < j; i++, j--) n++", "(for (var (i 0) (j 10)) (< i j) (, (post++ i) (post-- j)) (post++ n))"},
		{"for (i = 0, j = 1; ; ) break", "(for (, (= i 0) (= j 1)) empty empty break)"},
		{"a = 1, b = 2", "(, (= a 1) (= b 2))"},
		{"a ? b : c, d", "(, (? a b c) d)"},
		{"if (a, b) c", "(if (, a b) c)"},
		{";;x;;", "x"},
		{"{}", "(block)"},
	}

	for _, tc := range tests {
		if got := render(t, tc.input); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestAutomaticSemicolons(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a = 1\nb = 2", "(= a 1); (= b 2)"},
		{"a = b\n+ c", "(= a (+ b c))"},
		{"a = b\n(c)", "(= a (call b c))"},
		{"a = b\n.c", "(= a (. b c))"},
		{"x\n++y", "x; (++ y)"},
		{"let a = 1\nlet b = a", "(let (a 1)); (let (b a))"},
		{"function f() { return\n1 }", "(function f () (block (return nil) 1))"},
		{"if (a) b\nelse c", "(if a b else c)"},
	}

	for _, tc := range tests {
		if got := render(t, tc.input); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a +", "unexpected end of input"},
		{"1 2", `unexpected token "2"`},
		{"let = 1", "unexpected token"},
		{"const x", "missing initializer"},
		{"function f(a = b) {}", "must be a literal"},
		{"switch (x) { default: default: }", "more than one default"},
		{"if (a { }", "unexpected token"},
		{"f(a,,b)", "unexpected token"},
		{"{ a", "unexpected end of input"},
		{"'open", "unterminated string"},
		{"-2 ** 2", `unary operator before "**" needs parentheses`},
		{"typeof a ** 2", "needs parentheses"},
		{"a * !b ** 2", "needs parentheses"},
		{"a, ", "unexpected end of input"},
	}

	for _, tc := range tests {
		_, err := Parse(tc.input)
		if err == nil {
			t.Errorf("Parse(%q) should fail", tc.input)
			continue
		}
		var serr *SyntaxError
		if !errors.As(err, &serr) {
			t.Errorf("Parse(%q) error %T, want *SyntaxError", tc.input, err)
			continue
		}
		if !strings.Contains(serr.Msg, tc.want) {
			t.Errorf("Parse(%q) error = %q, want %q", tc.input, serr.Msg, tc.want)
		}
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("let a = 1;\nlet b = ;")
	var serr *SyntaxError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *SyntaxError", err)
	}
	if serr.Pos.Line != 2 || serr.Pos.Column != 9 {
		t.Errorf("error at %d:%d, want 2:9", serr.Pos.Line, serr.Pos.Column)
	}
}

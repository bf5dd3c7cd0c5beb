package exprengine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode"
)

// sliceStream is a whitespace-separated token stream for tests.
type sliceStream struct {
	toks []string
	pos  int
}

func (s *sliceStream) Peek(offset int) string {
	if s.pos+offset >= len(s.toks) {
		return "<eof>"
	}
	return s.toks[s.pos+offset]
}

func (s *sliceStream) Advance() { s.pos++ }
func (s *sliceStream) Cursor() int { return s.pos }

// lisp builds a tiny grammar whose trees are s-expressions.
func lisp(s *sliceStream) *Grammar[string, string] {
	g := &Grammar[string, string]{
		EOF: "<eof>",
		Binary: map[string]BinaryOp{
			"=":  {Prec: 2, Assoc: RightToLeft},
			"||": {Prec: 4},
			"&&": {Prec: 5},
			"==": {Prec: 9},
			"<":  {Prec: 10},
			"+":  {Prec: 12},
			"-":  {Prec: 12},
			"*":  {Prec: 13},
			"/":  {Prec: 13},
			"**": {Prec: 14, Assoc: RightToLeft},
		},
		Unary: map[string]UnaryOp{
			"!":  {Prec: 15, Fix: Prefix},
			"-":  {Prec: 15, Fix: Prefix},
			"++": {Prec: 16, Fix: Either},
		},
		Ternary: &TernaryOp[string]{Open: "?", Delim: ":", Prec: 3},
		MakeBinary: func(op string, _ int, l, r string) string {
			return fmt.Sprintf("(%s %s %s)", op, l, r)
		},
		MakeUnary: func(op string, _ int, x string, postfix bool) string {
			if postfix {
				return fmt.Sprintf("(post%s %s)", op, x)
			}
			return fmt.Sprintf("(%s %s)", op, x)
		},
		MakeTernary: func(_ int, c, a, b string) string {
			return fmt.Sprintf("(? %s %s %s)", c, a, b)
		},
	}
	isName := func(t string) bool {
		r := []rune(t)
		return len(r) > 0 && (unicode.IsLetter(r[0]) || unicode.IsDigit(r[0]))
	}
	g.Operands = []Operand[string, string]{
		{
			Name:  "name",
			Match: func(p *Parser[string, string]) bool { return isName(p.Peek(0)) },
			Build: func(p *Parser[string, string]) (string, error) {
				t := p.Peek(0)
				p.Advance()
				return t, nil
			},
		},
		{
			Name:  "group",
			Match: func(p *Parser[string, string]) bool { return p.Peek(0) == "(" },
			Build: func(p *Parser[string, string]) (string, error) {
				p.Advance()
				e, err := p.ParseUntil(StopPoint{Match: func(bool) bool { return s.Peek(0) == ")" }})
				if err != nil {
					return "", err
				}
				return e, p.Expect(")")
			},
		},
	}
	g.Decorators = []Decorator[string, string]{
		{
			Name:  "member",
			Match: func(p *Parser[string, string], _ string) bool { return p.Peek(0) == "." },
			Build: func(p *Parser[string, string], x string) (string, error) {
				p.Advance()
				name := p.Peek(0)
				if !isName(name) {
					return "", p.Unexpected()
				}
				p.Advance()
				return fmt.Sprintf("(. %s %s)", x, name), nil
			},
		},
		{
			Name:  "call",
			Match: func(p *Parser[string, string], _ string) bool { return p.Peek(0) == "(" },
			Build: func(p *Parser[string, string], x string) (string, error) {
				p.Advance()
				args := []string{x}
				p.PushStop(StopPoint{Match: func(bool) bool { return s.Peek(0) == ")" }})
				p.PushStop(StopPoint{Match: func(bool) bool { return s.Peek(0) == "," }, CheckPrevious: true})
				defer func() { p.PopStop(); p.PopStop() }()
				for p.Peek(0) != ")" {
					a, err := p.Parse()
					if err != nil {
						return "", err
					}
					args = append(args, a)
					if p.Peek(0) == "," {
						p.Advance()
					}
				}
				p.Advance()
				return "(call " + strings.Join(args, " ") + ")", nil
			},
		},
	}
	return g
}

func parse(t *testing.T, src string) (string, error) {
	t.Helper()
	s := &sliceStream{toks: strings.Fields(src)}
	p := NewParser(lisp(s), s)
	p.PushStop(StopPoint{Match: func(bool) bool { return s.Peek(0) == ";" }})
	return p.Parse()
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"a + b * c + d", "(+ (+ a (* b c)) d)"},
		{"a - b - c", "(- (- a b) c)"},
		{"a ** b ** c", "(** a (** b c))"},
		{"x = y = 5", "(= x (= y 5))"},
		{"a || b && c", "(|| a (&& b c))"},
		{"a < b == c < d", "(== (< a b) (< c d))"},
		{"- a * b", "(* (- a) b)"},
		{"! - a", "(! (- a))"},
		{"a * - b + c", "(+ (* a (- b)) c)"},
		{"a ++ + b", "(+ (post++ a) b)"},
		{"++ a . b", "(++ (. a b))"},
		{"f ( a , b + c ) . d", "(. (call f a (+ b c)) d)"},
		{"f ( )", "(call f)"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			got, err := parse(t, tc.src)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.src, err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
			}
		})
	}
}

func TestParseBinaryGrid(t *testing.T) {
	g := lisp(&sliceStream{})
	for op1, b1 := range g.Binary {
		for op2, b2 := range g.Binary {
			if b1.Prec <= b2.Prec {
				continue
			}
			src := "a " + op2 + " b " + op1 + " c"
			want := fmt.Sprintf("(%s a (%s b c))", op2, op1)
			got, err := parse(t, src)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", src, err)
			}
			if got != want {
				t.Errorf("Parse(%q) = %s, want %s", src, got, want)
			}
		}
	}
}

func TestParseTernary(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"a ? b ? b1 : b2 : c", "(? a (? b b1 b2) c)"},
		{"a ? b : c ? d : e", "(? a b (? c d e))"},
		{"a || b ? c : d", "(? (|| a b) c d)"},
		{"x = a ? b : c", "(= x (? a b c))"},
		{"a ? b : c + 1", "(? a b (+ c 1))"},
	}
	for _, tc := range tests {
		got, err := parse(t, tc.src)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.src, err)
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestParseGroupingRoundTrip(t *testing.T) {
	exprs := []string{"a + b * c", "a ? b : c", "- a ** b", "f ( a ) . b"}
	for _, e := range exprs {
		plain, err := parse(t, e)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", e, err)
		}
		wrapped := e
		for i := 0; i < 3; i++ {
			wrapped = "( " + wrapped + " )"
			got, err := parse(t, wrapped)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", wrapped, err)
			}
			if got != plain {
				t.Errorf("Parse(%q) = %s, want %s", wrapped, got, plain)
			}
		}
	}
}

func TestParseStopsLeaveCursor(t *testing.T) {
	s := &sliceStream{toks: strings.Fields("a + b ; c")}
	p := NewParser(lisp(s), s)
	p.PushStop(StopPoint{Match: func(bool) bool { return s.Peek(0) == ";" }})
	if _, err := p.Parse(); err != nil {
		t.Fatal(err)
	}
	if s.Peek(0) != ";" {
		t.Errorf("cursor at %q, want ;", s.Peek(0))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind ErrorKind
	}{
		{"a +", UnexpectedEOF},
		{"( a + b", UnexpectedEOF},
		{"a b", UnexpectedToken},
		{"a + * b", UnexpectedToken},
		{"a ? b", UnexpectedEOF},
		{")", UnexpectedToken},
	}
	for _, tc := range tests {
		_, err := parse(t, tc.src)
		var perr *Error
		if !errors.As(err, &perr) {
			t.Errorf("Parse(%q) error = %v, want *Error", tc.src, err)
			continue
		}
		if perr.Kind != tc.kind {
			t.Errorf("Parse(%q) kind = %v, want %v", tc.src, perr.Kind, tc.kind)
		}
	}
}

func TestParseMinPrefix(t *testing.T) {
	tests := []struct {
		src  string
		want string
		err  bool
	}{
		{"- a ** b", "", true},
		{"c * ! a ** b", "", true},
		{"a ** - b ** c", "", true},
		{"( - a ) ** b", "(** (- a) b)", false},
		{"a ** - b", "(** a (- b))", false},
		{"++ a ** b", "(** (++ a) b)", false},
		{"a ++ ** b", "(** (post++ a) b)", false},
		{"- a * b", "(* (- a) b)", false},
	}
	for _, tc := range tests {
		s := &sliceStream{toks: strings.Fields(tc.src)}
		g := lisp(s)
		g.Binary["**"] = BinaryOp{Prec: 14, Assoc: RightToLeft, MinPrefix: 16}
		got, err := NewParser(g, s).Parse()
		if tc.err {
			var perr *Error
			if !errors.As(err, &perr) || perr.Kind != PrefixOperand {
				t.Errorf("Parse(%q) error = %v, want %v", tc.src, err, PrefixOperand)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tc.src, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestParseReentrantScratch(t *testing.T) {
	s := &sliceStream{toks: strings.Fields("f ( a + b , ( c * d ) ) + g ( e )")}
	p := NewParser(lisp(s), s)
	got, err := p.Parse()
	if err != nil {
		t.Fatal(err)
	}
	want := "(+ (call f (+ a b) (* c d)) (call g e))"
	if got != want {
		t.Errorf("Parse = %s, want %s", got, want)
	}
	if len(p.out) != 0 || len(p.ops) != 0 || len(p.pre) != 0 || len(p.vals) != 0 {
		t.Errorf("scratch not released: out=%d ops=%d pre=%d vals=%d", len(p.out), len(p.ops), len(p.pre), len(p.vals))
	}
}

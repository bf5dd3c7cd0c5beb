package exprengine

import "fmt"

// ErrorKind classifies syntax errors raised by the parser.
type ErrorKind int

const (
	UnexpectedToken ErrorKind = iota
	UnexpectedEOF
	Malformed
	PrefixOperand
)

func (k ErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "unexpected token"
	case UnexpectedEOF:
		return "unexpected end of input"
	case Malformed:
		return "malformed expression"
	case PrefixOperand:
		return "prefix operand needs parentheses"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a syntax error at a token index.
type Error struct {
	Kind  ErrorKind
	Index int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at token %d", e.Kind, e.Index)
}

// ---------------------------------------------------------------------------
// Scratch entries
// ---------------------------------------------------------------------------

type itemKind uint8

const (
	itemOperand itemKind = iota
	itemBinary
	itemUnary
	itemTernary
)

// item is one slot of the postfix buffer: an operand or an operator marker.
type item[T comparable, N any] struct {
	kind itemKind
	node N
	op   T
	at   int
}

// pending is an operator waiting on the operator or prefix stack.
type pending[T comparable] struct {
	kind  itemKind
	op    T
	at    int
	prec  int
	assoc Assoc
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser parses expressions for one Grammar over one Stream.
type Parser[T comparable, N any] struct {
	g   *Grammar[T, N]
	src Stream[T]

	stops []StopPoint

	out  []item[T, N]
	ops  []pending[T]
	pre  []pending[T]
	vals []N
}

// NewParser creates a parser reading from src.
func NewParser[T comparable, N any](g *Grammar[T, N], src Stream[T]) *Parser[T, N] {
	return &Parser[T, N]{
		g:    g,
		src:  src,
		out:  make([]item[T, N], 0, 32),
		ops:  make([]pending[T], 0, 16),
		pre:  make([]pending[T], 0, 8),
		vals: make([]N, 0, 16),
	}
}

// Peek returns the token type at offset from the cursor.
func (p *Parser[T, N]) Peek(offset int) T { return p.src.Peek(offset) }

// Advance moves the cursor one token forward.
func (p *Parser[T, N]) Advance() { p.src.Advance() }

// Cursor returns the index of the token at the cursor.
func (p *Parser[T, N]) Cursor() int { return p.src.Cursor() }

// AtEOF reports whether the input is exhausted.
func (p *Parser[T, N]) AtEOF() bool { return p.src.Peek(0) == p.g.EOF }

// Expect consumes a token of type t or returns a syntax error.
func (p *Parser[T, N]) Expect(t T) error {
	if p.src.Peek(0) != t {
		return p.Unexpected()
	}
	p.src.Advance()
	return nil
}

// Unexpected builds the error for the token at the cursor.
func (p *Parser[T, N]) Unexpected() *Error {
	if p.AtEOF() {
		return &Error{Kind: UnexpectedEOF, Index: p.src.Cursor()}
	}
	return &Error{Kind: UnexpectedToken, Index: p.src.Cursor()}
}

// PushStop pushes a stop point. Every push must be paired with PopStop.
func (p *Parser[T, N]) PushStop(s StopPoint) { p.stops = append(p.stops, s) }

// PopStop removes the innermost stop point.
func (p *Parser[T, N]) PopStop() { p.stops = p.stops[:len(p.stops)-1] }

// Depth returns the number of active stop points.
func (p *Parser[T, N]) Depth() int { return len(p.stops) }

// AtStop reports whether the current expression ends at the cursor. End of
// input is always a stop.
func (p *Parser[T, N]) AtStop(afterOperand bool) bool {
	if p.AtEOF() {
		return true
	}
	for i := len(p.stops) - 1; i >= 0; i-- {
		s := p.stops[i]
		if s.Match(afterOperand) {
			return true
		}
		if !s.CheckPrevious {
			break
		}
	}
	return false
}

// ParseUntil parses one expression with an extra stop point on top of the
// stack.
func (p *Parser[T, N]) ParseUntil(s StopPoint) (N, error) {
	p.PushStop(s)
	defer p.PopStop()
	return p.Parse()
}

// Parse consumes exactly one expression and leaves the cursor on the token
// that stopped it.
func (p *Parser[T, N]) Parse() (N, error) {
	var zero N

	outBase, opsBase, preBase := len(p.out), len(p.ops), len(p.pre)
	defer func() {
		clear(p.out[outBase:])
		p.out = p.out[:outBase]
		p.ops = p.ops[:opsBase]
		p.pre = p.pre[:preBase]
	}()

	expectOperand := true
	for {
		if expectOperand {
			if p.AtStop(false) {
				return zero, p.Unexpected()
			}
			tok := p.src.Peek(0)
			if u, ok := p.g.Unary[tok]; ok && u.Fix&Prefix != 0 {
				p.pre = append(p.pre, pending[T]{kind: itemUnary, op: tok, at: p.src.Cursor(), prec: u.Prec, assoc: RightToLeft})
				p.src.Advance()
				continue
			}

			node, err := p.operand()
			if err != nil {
				return zero, err
			}
			for !p.AtStop(true) {
				tok := p.src.Peek(0)
				u, ok := p.g.Unary[tok]
				if !ok || u.Fix&Postfix == 0 {
					break
				}
				node = p.g.MakeUnary(tok, p.src.Cursor(), node, true)
				p.src.Advance()
			}
			p.out = append(p.out, item[T, N]{kind: itemOperand, node: node})

			// Prefix operators bind once their operand is complete.
			p.ops = append(p.ops, p.pre[preBase:]...)
			p.pre = p.pre[:preBase]
			expectOperand = false
			continue
		}

		if p.AtStop(true) {
			break
		}
		tok := p.src.Peek(0)

		if b, ok := p.g.Binary[tok]; ok {
			if b.MinPrefix > 0 && p.prefixBelow(opsBase, b.MinPrefix) {
				return zero, &Error{Kind: PrefixOperand, Index: p.src.Cursor()}
			}
			p.flush(opsBase, b.Prec, b.Assoc)
			p.ops = append(p.ops, pending[T]{kind: itemBinary, op: tok, at: p.src.Cursor(), prec: b.Prec, assoc: b.Assoc})
			p.src.Advance()
			expectOperand = true
			continue
		}

		if t := p.g.Ternary; t != nil && tok == t.Open {
			if err := p.ternary(opsBase, t); err != nil {
				return zero, err
			}
			continue
		}

		return zero, p.Unexpected()
	}

	p.flush(opsBase, -1, LeftToRight)
	return p.reduce(outBase)
}

// operand runs the first matching recognizer and then applies decorators
// until none match.
func (p *Parser[T, N]) operand() (N, error) {
	var zero N
	for i := range p.g.Operands {
		rec := &p.g.Operands[i]
		if !rec.Match(p) {
			continue
		}
		node, err := rec.Build(p)
		if err != nil {
			return zero, err
		}
		return p.decorate(node)
	}
	return zero, p.Unexpected()
}

func (p *Parser[T, N]) decorate(node N) (N, error) {
	for {
		if p.AtEOF() {
			return node, nil
		}
		applied := false
		for i := range p.g.Decorators {
			d := &p.g.Decorators[i]
			if !d.Match(p, node) {
				continue
			}
			next, err := d.Build(p, node)
			if err != nil {
				return node, err
			}
			node = next
			applied = true
			break
		}
		if !applied {
			return node, nil
		}
	}
}

// prefixBelow reports whether the operand just completed carries a prefix
// operator with precedence below prec.
func (p *Parser[T, N]) prefixBelow(base, prec int) bool {
	for i := len(p.ops) - 1; i >= base && p.ops[i].kind == itemUnary; i-- {
		if p.ops[i].prec < prec {
			return true
		}
	}
	return false
}

// ternary handles `cond ? then : else`. The condition is whatever the
// postfix buffer reduces to after tighter operators are flushed.
func (p *Parser[T, N]) ternary(opsBase int, t *TernaryOp[T]) error {
	p.flush(opsBase, t.Prec, RightToLeft)
	at := p.src.Cursor()
	p.src.Advance()

	delim := t.Delim
	then, err := p.ParseUntil(StopPoint{Match: func(bool) bool { return p.src.Peek(0) == delim }})
	if err != nil {
		return err
	}
	if err := p.Expect(delim); err != nil {
		return err
	}
	els, err := p.Parse()
	if err != nil {
		return err
	}

	p.out = append(p.out,
		item[T, N]{kind: itemOperand, node: then},
		item[T, N]{kind: itemOperand, node: els},
		item[T, N]{kind: itemTernary, at: at},
	)
	return nil
}

// flush moves operators above base to the postfix buffer while they bind
// tighter than an incoming operator of precedence prec. Equal precedence
// flushes only for left-associative operators.
func (p *Parser[T, N]) flush(base, prec int, assoc Assoc) {
	for len(p.ops) > base {
		top := p.ops[len(p.ops)-1]
		if top.prec < prec || (top.prec == prec && assoc == RightToLeft) {
			return
		}
		p.ops = p.ops[:len(p.ops)-1]
		p.out = append(p.out, item[T, N]{kind: top.kind, op: top.op, at: top.at})
	}
}

// reduce folds the postfix buffer from base into a single tree.
func (p *Parser[T, N]) reduce(base int) (N, error) {
	var zero N
	valBase := len(p.vals)
	defer func() {
		clear(p.vals[valBase:])
		p.vals = p.vals[:valBase]
	}()

	for i := base; i < len(p.out); i++ {
		it := p.out[i]
		n := len(p.vals) - valBase
		switch it.kind {
		case itemOperand:
			p.vals = append(p.vals, it.node)
		case itemBinary:
			if n < 2 {
				return zero, &Error{Kind: Malformed, Index: it.at}
			}
			l, r := p.vals[len(p.vals)-2], p.vals[len(p.vals)-1]
			p.vals = p.vals[:len(p.vals)-2]
			p.vals = append(p.vals, p.g.MakeBinary(it.op, it.at, l, r))
		case itemUnary:
			if n < 1 {
				return zero, &Error{Kind: Malformed, Index: it.at}
			}
			p.vals[len(p.vals)-1] = p.g.MakeUnary(it.op, it.at, p.vals[len(p.vals)-1], false)
		case itemTernary:
			if n < 3 {
				return zero, &Error{Kind: Malformed, Index: it.at}
			}
			k := len(p.vals)
			c, a, b := p.vals[k-3], p.vals[k-2], p.vals[k-1]
			p.vals = p.vals[:k-3]
			p.vals = append(p.vals, p.g.MakeTernary(it.at, c, a, b))
		}
	}

	if len(p.vals)-valBase != 1 {
		idx := 0
		if len(p.out) > base {
			idx = p.out[base].at
		}
		return zero, &Error{Kind: Malformed, Index: idx}
	}
	return p.vals[valBase], nil
}

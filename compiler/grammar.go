package compiler

import (
	"math"
	"strconv"

	"github.com/chazu/ember/pkg/exprengine"
)

// ---------------------------------------------------------------------------
// Expression grammar: operator tables and operand recognizers
// ---------------------------------------------------------------------------

// Precedence tiers. Higher binds tighter.
const (
	PrecAssign         = 2
	PrecConditional    = 3
	PrecLogicalOr      = 4
	PrecLogicalAnd     = 5
	PrecBitOr          = 6
	PrecBitXor         = 7
	PrecBitAnd         = 8
	PrecEquality       = 9
	PrecRelational     = 10
	PrecShift          = 11
	PrecAdditive       = 12
	PrecMultiplicative = 13
	PrecExponent       = 14
	PrecPrefix         = 15
	PrecUpdate         = 16
)

var assignOp = exprengine.BinaryOp{Prec: PrecAssign, Assoc: exprengine.RightToLeft}

// BinaryOps is the binary operator table.
var BinaryOps = map[TokenType]exprengine.BinaryOp{
	TokenAssign:         assignOp,
	TokenPlusAssign:     assignOp,
	TokenMinusAssign:    assignOp,
	TokenStarAssign:     assignOp,
	TokenSlashAssign:    assignOp,
	TokenPercentAssign:  assignOp,
	TokenStarStarAssign: assignOp,
	TokenAmpAssign:      assignOp,
	TokenPipeAssign:     assignOp,
	TokenCaretAssign:    assignOp,
	TokenShlAssign:      assignOp,
	TokenShrAssign:      assignOp,
	TokenUShrAssign:     assignOp,

	TokenOrOr:     {Prec: PrecLogicalOr},
	TokenAndAnd:   {Prec: PrecLogicalAnd},
	TokenPipe:     {Prec: PrecBitOr},
	TokenCaret:    {Prec: PrecBitXor},
	TokenAmp:      {Prec: PrecBitAnd},
	TokenEq:       {Prec: PrecEquality},
	TokenNe:       {Prec: PrecEquality},
	TokenStrictEq: {Prec: PrecEquality},
	TokenStrictNe: {Prec: PrecEquality},
	TokenLt:       {Prec: PrecRelational},
	TokenLe:       {Prec: PrecRelational},
	TokenGt:       {Prec: PrecRelational},
	TokenGe:       {Prec: PrecRelational},
	TokenShl:      {Prec: PrecShift},
	TokenShr:      {Prec: PrecShift},
	TokenUShr:     {Prec: PrecShift},
	TokenPlus:     {Prec: PrecAdditive},
	TokenMinus:    {Prec: PrecAdditive},
	TokenStar:     {Prec: PrecMultiplicative},
	TokenSlash:    {Prec: PrecMultiplicative},
	TokenPercent:  {Prec: PrecMultiplicative},
	TokenStarStar: {Prec: PrecExponent, Assoc: exprengine.RightToLeft, MinPrefix: PrecUpdate},
}

// UnaryOps is the unary operator table.
var UnaryOps = map[TokenType]exprengine.UnaryOp{
	TokenBang:       {Prec: PrecPrefix, Fix: exprengine.Prefix},
	TokenTilde:      {Prec: PrecPrefix, Fix: exprengine.Prefix},
	TokenMinus:      {Prec: PrecPrefix, Fix: exprengine.Prefix},
	TokenPlus:       {Prec: PrecPrefix, Fix: exprengine.Prefix},
	TokenTypeof:     {Prec: PrecPrefix, Fix: exprengine.Prefix},
	TokenPlusPlus:   {Prec: PrecUpdate, Fix: exprengine.Either},
	TokenMinusMinus: {Prec: PrecUpdate, Fix: exprengine.Either},
}

// Conditional is the ternary descriptor.
var Conditional = &exprengine.TernaryOp[TokenType]{Open: TokenQuestion, Delim: TokenColon, Prec: PrecConditional}

// compoundOps maps compound assignment tokens to their arithmetic operator.
var compoundOps = map[TokenType]TokenType{
	TokenPlusAssign:     TokenPlus,
	TokenMinusAssign:    TokenMinus,
	TokenStarAssign:     TokenStar,
	TokenSlashAssign:    TokenSlash,
	TokenPercentAssign:  TokenPercent,
	TokenStarStarAssign: TokenStarStar,
	TokenAmpAssign:      TokenAmp,
	TokenPipeAssign:     TokenPipe,
	TokenCaretAssign:    TokenCaret,
	TokenShlAssign:      TokenShl,
	TokenShrAssign:      TokenShr,
	TokenUShrAssign:     TokenUShr,
}

// IsAssignOp reports whether t is = or a compound assignment.
func IsAssignOp(t TokenType) bool {
	_, ok := compoundOps[t]
	return ok || t == TokenAssign
}

// continuesExpression reports whether a token on a new line can extend the
// expression before it, which suppresses automatic statement termination.
func continuesExpression(t TokenType) bool {
	if _, ok := BinaryOps[t]; ok {
		return true
	}
	switch t {
	case TokenQuestion, TokenDot, TokenLParen, TokenLBracket:
		return true
	}
	return false
}

type exprParser = exprengine.Parser[TokenType, Expr]

// newGrammar binds the expression tables to a statement parser. Operand
// builders that need statements (function bodies) call back into ps.
func newGrammar(ps *Parser) *exprengine.Grammar[TokenType, Expr] {
	g := &exprengine.Grammar[TokenType, Expr]{
		EOF:     TokenEOF,
		Binary:  BinaryOps,
		Unary:   UnaryOps,
		Ternary: Conditional,
		MakeBinary: func(op TokenType, at int, l, r Expr) Expr {
			return &BinaryExpr{SpanVal: joinSpan(l.Span(), r.Span()), Op: op, Left: l, Right: r}
		},
		MakeUnary: func(op TokenType, at int, x Expr, postfix bool) Expr {
			opSpan := ps.spanOf(at)
			sp := joinSpan(opSpan, x.Span())
			if postfix {
				sp = joinSpan(x.Span(), opSpan)
			}
			return &UnaryExpr{SpanVal: sp, Op: op, Operand: x, Postfix: postfix}
		},
		MakeTernary: func(at int, c, a, b Expr) Expr {
			return &ConditionalExpr{SpanVal: joinSpan(c.Span(), b.Span()), Cond: c, Then: a, Else: b}
		},
	}

	g.Operands = []exprengine.Operand[TokenType, Expr]{
		{Name: "number", Match: ps.peekIs(TokenInteger, TokenFloat), Build: ps.number},
		{Name: "string", Match: ps.peekIs(TokenString), Build: ps.stringLit},
		{Name: "keyword", Match: ps.peekIs(TokenTrue, TokenFalse, TokenNull, TokenUndefined, TokenThis), Build: ps.keywordLit},
		{Name: "arrow", Match: ps.atArrow, Build: ps.arrow},
		{Name: "identifier", Match: ps.peekIs(TokenIdentifier), Build: ps.identifier},
		{Name: "group", Match: ps.peekIs(TokenLParen), Build: ps.group},
		{Name: "array", Match: ps.peekIs(TokenLBracket), Build: ps.arrayLit},
		{Name: "object", Match: ps.peekIs(TokenLBrace), Build: ps.objectLit},
		{Name: "function", Match: ps.peekIs(TokenFunction), Build: ps.functionExpr},
	}

	g.Decorators = []exprengine.Decorator[TokenType, Expr]{
		{Name: "member", Match: ps.decoratorAt(TokenDot), Build: ps.member},
		{Name: "index", Match: ps.decoratorAt(TokenLBracket), Build: ps.index},
		{Name: "call", Match: ps.decoratorAt(TokenLParen), Build: ps.call},
	}
	return g
}

func (ps *Parser) peekIs(types ...TokenType) func(*exprParser) bool {
	return func(*exprParser) bool {
		cur := ps.cur().Type
		for _, t := range types {
			if cur == t {
				return true
			}
		}
		return false
	}
}

func (ps *Parser) decoratorAt(t TokenType) func(*exprParser, Expr) bool {
	return func(*exprParser, Expr) bool { return ps.cur().Type == t }
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (ps *Parser) number(*exprParser) (Expr, error) {
	tok := ps.next()
	sp := tokenSpan(tok)
	if tok.Type == TokenInteger {
		lit, base := tok.Literal, 10
		if len(lit) > 2 && (lit[:2] == "0x" || lit[:2] == "0X") {
			lit, base = lit[2:], 16
		}
		if v, err := strconv.ParseInt(lit, base, 64); err == nil {
			return &IntLiteral{SpanVal: sp, Value: v}, nil
		}
		if u, err := strconv.ParseUint(lit, base, 64); err == nil {
			return &FloatLiteral{SpanVal: sp, Value: float64(u)}, nil
		}
		if base == 16 {
			return &FloatLiteral{SpanVal: sp, Value: math.Inf(1)}, nil
		}
	}
	f, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil && !math.IsInf(f, 0) {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "malformed number " + strconv.Quote(tok.Literal)}
	}
	return &FloatLiteral{SpanVal: sp, Value: f}, nil
}

func (ps *Parser) stringLit(*exprParser) (Expr, error) {
	tok := ps.next()
	return &StringLiteral{SpanVal: tokenSpan(tok), Value: tok.Literal}, nil
}

func (ps *Parser) keywordLit(*exprParser) (Expr, error) {
	tok := ps.next()
	sp := tokenSpan(tok)
	switch tok.Type {
	case TokenTrue:
		return &BoolLiteral{SpanVal: sp, Value: true}, nil
	case TokenFalse:
		return &BoolLiteral{SpanVal: sp, Value: false}, nil
	case TokenNull:
		return &NullLiteral{SpanVal: sp}, nil
	case TokenThis:
		return &ThisExpr{SpanVal: sp}, nil
	default:
		return &UndefinedLiteral{SpanVal: sp}, nil
	}
}

func (ps *Parser) identifier(*exprParser) (Expr, error) {
	tok := ps.next()
	return &Identifier{SpanVal: tokenSpan(tok), Name: tok.Literal}, nil
}

func (ps *Parser) group(p *exprParser) (Expr, error) {
	ps.next()
	e, err := ps.parseSequence(ps.stopAt(TokenRParen))
	if err != nil {
		return nil, err
	}
	if err := p.Expect(TokenRParen); err != nil {
		return nil, err
	}
	return e, nil
}

func (ps *Parser) arrayLit(p *exprParser) (Expr, error) {
	start := ps.next()
	elems, end, err := ps.list(p, TokenRBracket, func() (Expr, error) { return p.Parse() })
	if err != nil {
		return nil, err
	}
	return &ArrayLiteral{SpanVal: joinSpan(tokenSpan(start), tokenSpan(end)), Elements: elems}, nil
}

func (ps *Parser) objectLit(p *exprParser) (Expr, error) {
	start := ps.next()
	var props []Property
	_, end, err := ps.list(p, TokenRBrace, func() (Expr, error) {
		key := ps.cur()
		switch {
		case key.Type == TokenIdentifier, key.Type == TokenString, isKeywordToken(key.Type):
		case key.Type == TokenInteger || key.Type == TokenFloat:
		default:
			return nil, p.Unexpected()
		}
		ps.next()
		if key.Type == TokenIdentifier && (ps.cur().Type == TokenComma || ps.cur().Type == TokenRBrace) {
			props = append(props, Property{Key: key.Literal, Value: &Identifier{SpanVal: tokenSpan(key), Name: key.Literal}})
			return nil, nil
		}
		if err := p.Expect(TokenColon); err != nil {
			return nil, err
		}
		v, err := p.Parse()
		if err != nil {
			return nil, err
		}
		props = append(props, Property{Key: key.Literal, Value: v})
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &ObjectLiteral{SpanVal: joinSpan(tokenSpan(start), tokenSpan(end)), Properties: props}, nil
}

// list parses comma separated items up to closer, allowing a trailing comma.
// Items are parsed with `,` stopping in front of closer.
func (ps *Parser) list(p *exprParser, closer TokenType, item func() (Expr, error)) ([]Expr, Token, error) {
	p.PushStop(ps.stopAt(closer))
	p.PushStop(ps.orStopAt(TokenComma))
	defer func() {
		p.PopStop()
		p.PopStop()
	}()

	var out []Expr
	for ps.cur().Type != closer {
		e, err := item()
		if err != nil {
			return nil, Token{}, err
		}
		if e != nil {
			out = append(out, e)
		}
		if ps.cur().Type == TokenComma {
			ps.next()
			continue
		}
		if ps.cur().Type != closer {
			return nil, Token{}, p.Unexpected()
		}
	}
	return out, ps.next(), nil
}

func (ps *Parser) functionExpr(p *exprParser) (Expr, error) {
	return ps.parseFunction(false)
}

// atArrow reports whether the cursor starts an arrow function: `x =>` or a
// parenthesized parameter list followed by `=>`.
func (ps *Parser) atArrow(*exprParser) bool {
	switch ps.cur().Type {
	case TokenIdentifier:
		return ps.peek(1).Type == TokenArrow
	case TokenLParen:
		depth := 0
		for i := ps.pos; i < len(ps.toks); i++ {
			switch ps.toks[i].Type {
			case TokenLParen:
				depth++
			case TokenRParen:
				depth--
				if depth == 0 {
					return i+1 < len(ps.toks) && ps.toks[i+1].Type == TokenArrow
				}
			case TokenEOF, TokenLBrace, TokenSemicolon:
				return false
			}
		}
	}
	return false
}

func (ps *Parser) arrow(p *exprParser) (Expr, error) {
	start := ps.cur()
	fn := &FunctionLiteral{Arrow: true}

	if start.Type == TokenIdentifier {
		ps.next()
		fn.Params = []Param{{Name: start.Literal, Pos: start.Pos}}
	} else {
		params, err := ps.parseParams()
		if err != nil {
			return nil, err
		}
		fn.Params = params
	}
	if err := ps.expect(TokenArrow); err != nil {
		return nil, err
	}

	if ps.cur().Type == TokenLBrace {
		body, err := ps.parseBlock()
		if err != nil {
			return nil, err
		}
		fn.Body = body
	} else {
		x, err := p.Parse()
		if err != nil {
			return nil, err
		}
		ret := &ReturnStmt{SpanVal: x.Span(), Value: x}
		fn.Body = &BlockStmt{SpanVal: x.Span(), Stmts: []Stmt{ret}}
	}
	fn.SpanVal = joinSpan(tokenSpan(start), fn.Body.Span())
	return fn, nil
}

// ---------------------------------------------------------------------------
// Decorators
// ---------------------------------------------------------------------------

func (ps *Parser) member(p *exprParser, obj Expr) (Expr, error) {
	ps.next()
	name := ps.cur()
	if name.Type != TokenIdentifier && !isKeywordToken(name.Type) {
		return nil, p.Unexpected()
	}
	ps.next()
	return &MemberExpr{SpanVal: joinSpan(obj.Span(), tokenSpan(name)), Object: obj, Name: name.Literal}, nil
}

func (ps *Parser) index(p *exprParser, obj Expr) (Expr, error) {
	ps.next()
	idx, err := p.ParseUntil(ps.stopAt(TokenRBracket))
	if err != nil {
		return nil, err
	}
	end := ps.cur()
	if err := p.Expect(TokenRBracket); err != nil {
		return nil, err
	}
	return &IndexExpr{SpanVal: joinSpan(obj.Span(), tokenSpan(end)), Object: obj, Index: idx}, nil
}

func (ps *Parser) call(p *exprParser, callee Expr) (Expr, error) {
	ps.next()
	args, end, err := ps.list(p, TokenRParen, func() (Expr, error) { return p.Parse() })
	if err != nil {
		return nil, err
	}
	return &CallExpr{SpanVal: joinSpan(callee.Span(), tokenSpan(end)), Callee: callee, Args: args}, nil
}

// ---------------------------------------------------------------------------
// Spans
// ---------------------------------------------------------------------------

func tokenSpan(t Token) Span {
	end := t.Pos
	end.Offset += t.Len
	end.Column += t.Len
	return Span{Start: t.Pos, End: end}
}

func joinSpan(a, b Span) Span {
	return Span{Start: a.Start, End: b.End}
}

func isKeywordToken(t TokenType) bool {
	return t >= TokenVar && t <= TokenTypeof
}

package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/ember/pkg/exprengine"
)

// ---------------------------------------------------------------------------
// Parser: statements and declarations over the expression engine
// ---------------------------------------------------------------------------

// cursor is the token stream shared by the statement parser and the
// expression engine.
type cursor struct {
	toks []Token
	pos  int
}

// Peek returns the type of the token at offset from the cursor.
func (c *cursor) Peek(offset int) TokenType { return c.peek(offset).Type }

// Advance moves past the current token.
func (c *cursor) Advance() {
	if c.pos < len(c.toks)-1 {
		c.pos++
	}
}

// Cursor returns the current token index.
func (c *cursor) Cursor() int { return c.pos }

func (c *cursor) cur() Token { return c.peek(0) }

func (c *cursor) peek(n int) Token {
	if c.pos+n >= len(c.toks) {
		return c.toks[len(c.toks)-1]
	}
	return c.toks[c.pos+n]
}

func (c *cursor) next() Token {
	t := c.cur()
	c.Advance()
	return t
}

// Parser builds a Program from tokens. Expressions are delegated to the
// generic expression engine; statements are parsed here by recursive
// descent. The first syntax error aborts the parse.
type Parser struct {
	cursor
	expr *exprParser
}

// NewParser creates a parser for the given tokens. The slice must end with
// a TokenEOF token, as produced by Tokenize.
func NewParser(toks []Token) *Parser {
	if len(toks) == 0 || toks[len(toks)-1].Type != TokenEOF {
		toks = append(toks, Token{Type: TokenEOF})
	}
	ps := &Parser{cursor: cursor{toks: toks}}
	ps.expr = exprengine.NewParser(newGrammar(ps), &ps.cursor)
	return ps
}

// Parse tokenizes and parses a complete source file.
func Parse(src string) (*Program, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return NewParser(toks).ParseProgram()
}

// ParseExpression parses src as a single expression.
func ParseExpression(src string) (Expr, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	ps := NewParser(toks)
	x, err := ps.expr.Parse()
	if err != nil {
		return nil, ps.wrap(err)
	}
	if ps.cur().Type != TokenEOF {
		return nil, ps.wrap(ps.expr.Unexpected())
	}
	return x, nil
}

// ParseProgram parses statements until end of input.
func (ps *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for ps.cur().Type != TokenEOF {
		s, err := ps.parseStatement()
		if err != nil {
			return nil, ps.wrap(err)
		}
		if s != Empty {
			prog.Stmts = append(prog.Stmts, s)
		}
	}
	return prog, nil
}

// wrap converts engine errors into positioned syntax errors.
func (ps *Parser) wrap(err error) error {
	var eerr *exprengine.Error
	if !errors.As(err, &eerr) {
		return err
	}
	tok := ps.toks[min(eerr.Index, len(ps.toks)-1)]
	switch eerr.Kind {
	case exprengine.UnexpectedEOF:
		return &SyntaxError{Pos: tok.Pos, Msg: "unexpected end of input"}
	case exprengine.Malformed:
		return &SyntaxError{Pos: tok.Pos, Msg: "malformed expression"}
	case exprengine.PrefixOperand:
		return &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unary operator before %s needs parentheses", describe(tok))}
	default:
		return &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected token %s", describe(tok))}
	}
}

func describe(t Token) string {
	switch t.Type {
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%q", t.Literal)
	case TokenString:
		return "string"
	default:
		return fmt.Sprintf("%q", t.Type.String())
	}
}

func (ps *Parser) spanOf(idx int) Span {
	return tokenSpan(ps.toks[min(idx, len(ps.toks)-1)])
}

func (ps *Parser) expect(t TokenType) error {
	if ps.cur().Type != t {
		return ps.wrap(ps.expr.Unexpected())
	}
	ps.next()
	return nil
}

// ---------------------------------------------------------------------------
// Stop points
// ---------------------------------------------------------------------------

func (ps *Parser) stopAt(types ...TokenType) exprengine.StopPoint {
	return exprengine.StopPoint{Match: func(bool) bool {
		cur := ps.cur().Type
		for _, t := range types {
			if cur == t {
				return true
			}
		}
		return false
	}}
}

func (ps *Parser) orStopAt(t TokenType) exprengine.StopPoint {
	s := ps.stopAt(t)
	s.CheckPrevious = true
	return s
}

// statementStop ends an expression statement at `;`, `}` or a line break
// that the next token cannot continue across.
func (ps *Parser) statementStop() exprengine.StopPoint {
	return exprengine.StopPoint{Match: func(afterOperand bool) bool {
		cur := ps.cur()
		switch cur.Type {
		case TokenSemicolon, TokenRBrace:
			return true
		}
		return afterOperand && cur.NewlineBefore && !continuesExpression(cur.Type)
	}}
}

// parseExpr parses an expression that ends where a statement would.
func (ps *Parser) parseExpr() (Expr, error) {
	return ps.parseSequence(ps.statementStop())
}

// parseSequence parses comma-separated expressions up to stop. A single
// expression is returned unwrapped.
func (ps *Parser) parseSequence(stop exprengine.StopPoint) (Expr, error) {
	ps.expr.PushStop(stop)
	defer ps.expr.PopStop()

	var list []Expr
	for {
		x, err := ps.expr.ParseUntil(ps.orStopAt(TokenComma))
		if err != nil {
			return nil, err
		}
		list = append(list, x)
		if ps.cur().Type != TokenComma {
			break
		}
		ps.next()
	}
	if len(list) == 1 {
		return list[0], nil
	}
	return &SequenceExpr{SpanVal: joinSpan(list[0].Span(), list[len(list)-1].Span()), Exprs: list}, nil
}

// endStatement consumes an explicit or implied statement terminator.
func (ps *Parser) endStatement() error {
	cur := ps.cur()
	switch {
	case cur.Type == TokenSemicolon:
		ps.next()
		return nil
	case cur.Type == TokenRBrace, cur.Type == TokenEOF, cur.NewlineBefore:
		return nil
	}
	return ps.wrap(ps.expr.Unexpected())
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (ps *Parser) parseStatement() (Stmt, error) {
	switch ps.cur().Type {
	case TokenSemicolon:
		ps.next()
		return Empty, nil
	case TokenLBrace:
		return ps.parseBlock()
	case TokenVar, TokenLet, TokenConst:
		decl, err := ps.parseVarDecl(ps.statementStop())
		if err != nil {
			return nil, err
		}
		return decl, ps.endStatement()
	case TokenFunction:
		if ps.peek(1).Type == TokenIdentifier {
			start := ps.cur()
			fn, err := ps.parseFunction(true)
			if err != nil {
				return nil, err
			}
			return &FunctionDecl{SpanVal: joinSpan(tokenSpan(start), fn.Span()), Func: fn}, nil
		}
	case TokenReturn:
		return ps.parseReturn()
	case TokenIf:
		return ps.parseIf()
	case TokenWhile:
		return ps.parseWhile()
	case TokenDo:
		return ps.parseDoWhile()
	case TokenFor:
		return ps.parseFor()
	case TokenSwitch:
		return ps.parseSwitch()
	case TokenBreak, TokenContinue:
		tok := ps.next()
		var s Stmt = &BreakStmt{SpanVal: tokenSpan(tok)}
		if tok.Type == TokenContinue {
			s = &ContinueStmt{SpanVal: tokenSpan(tok)}
		}
		return s, ps.endStatement()
	}

	x, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{SpanVal: x.Span(), X: x}, ps.endStatement()
}

func (ps *Parser) parseBlock() (*BlockStmt, error) {
	start := ps.cur()
	if err := ps.expect(TokenLBrace); err != nil {
		return nil, err
	}
	block := &BlockStmt{}
	for ps.cur().Type != TokenRBrace {
		if ps.cur().Type == TokenEOF {
			return nil, ps.wrap(ps.expr.Unexpected())
		}
		s, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}
		if s != Empty {
			block.Stmts = append(block.Stmts, s)
		}
	}
	end := ps.next()
	block.SpanVal = joinSpan(tokenSpan(start), tokenSpan(end))
	return block, nil
}

// parseVarDecl parses `var a = 1, b` with initializers ending at stop or at
// a comma.
func (ps *Parser) parseVarDecl(stop exprengine.StopPoint) (*VarDecl, error) {
	start := ps.next()
	decl := &VarDecl{Kind: DeclVar}
	switch start.Type {
	case TokenLet:
		decl.Kind = DeclLet
	case TokenConst:
		decl.Kind = DeclConst
	}

	ps.expr.PushStop(stop)
	ps.expr.PushStop(ps.orStopAt(TokenComma))
	defer func() {
		ps.expr.PopStop()
		ps.expr.PopStop()
	}()

	end := tokenSpan(start)
	for {
		name := ps.cur()
		if name.Type != TokenIdentifier {
			return nil, ps.wrap(ps.expr.Unexpected())
		}
		ps.next()
		d := Declarator{Name: name.Literal, Pos: name.Pos}
		end = tokenSpan(name)
		if ps.cur().Type == TokenAssign {
			ps.next()
			init, err := ps.expr.Parse()
			if err != nil {
				return nil, err
			}
			d.Init = init
			end = init.Span()
		} else if decl.Kind == DeclConst {
			return nil, &SyntaxError{Pos: name.Pos, Msg: fmt.Sprintf("missing initializer in const declaration %q", name.Literal)}
		}
		decl.Declarators = append(decl.Declarators, d)
		if ps.cur().Type != TokenComma {
			break
		}
		ps.next()
	}
	decl.SpanVal = joinSpan(tokenSpan(start), end)
	return decl, nil
}

// parseFunction parses `function [name](params) { body }`.
func (ps *Parser) parseFunction(named bool) (*FunctionLiteral, error) {
	start := ps.next()
	fn := &FunctionLiteral{}
	if ps.cur().Type == TokenIdentifier {
		fn.Name = ps.next().Literal
	} else if named {
		return nil, ps.wrap(ps.expr.Unexpected())
	}
	params, err := ps.parseParams()
	if err != nil {
		return nil, err
	}
	fn.Params = params
	body, err := ps.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	fn.SpanVal = joinSpan(tokenSpan(start), body.Span())
	return fn, nil
}

// parseParams parses `(a, b = 1, c)`. Defaults must be literals.
func (ps *Parser) parseParams() ([]Param, error) {
	if err := ps.expect(TokenLParen); err != nil {
		return nil, err
	}
	ps.expr.PushStop(ps.stopAt(TokenRParen))
	ps.expr.PushStop(ps.orStopAt(TokenComma))
	defer func() {
		ps.expr.PopStop()
		ps.expr.PopStop()
	}()

	var params []Param
	for ps.cur().Type != TokenRParen {
		name := ps.cur()
		if name.Type != TokenIdentifier {
			return nil, ps.wrap(ps.expr.Unexpected())
		}
		ps.next()
		p := Param{Name: name.Literal, Pos: name.Pos}
		if ps.cur().Type == TokenAssign {
			ps.next()
			def, err := ps.expr.Parse()
			if err != nil {
				return nil, err
			}
			lit, ok := foldLiteral(def)
			if !ok {
				return nil, &SyntaxError{Pos: def.Span().Start, Msg: fmt.Sprintf("default for parameter %q must be a literal", name.Literal)}
			}
			p.Default = lit
		}
		params = append(params, p)
		if ps.cur().Type == TokenComma {
			ps.next()
			continue
		}
		if ps.cur().Type != TokenRParen {
			return nil, ps.wrap(ps.expr.Unexpected())
		}
	}
	ps.next()
	return params, nil
}

// foldLiteral accepts literal nodes and negated numeric literals.
func foldLiteral(e Expr) (Expr, bool) {
	switch n := e.(type) {
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral, *UndefinedLiteral:
		return e, true
	case *UnaryExpr:
		if n.Op != TokenMinus || n.Postfix {
			return nil, false
		}
		switch v := n.Operand.(type) {
		case *IntLiteral:
			return &IntLiteral{SpanVal: n.SpanVal, Value: -v.Value}, true
		case *FloatLiteral:
			return &FloatLiteral{SpanVal: n.SpanVal, Value: -v.Value}, true
		}
	}
	return nil, false
}

func (ps *Parser) parseReturn() (Stmt, error) {
	tok := ps.next()
	ret := &ReturnStmt{SpanVal: tokenSpan(tok)}
	cur := ps.cur()
	if cur.Type == TokenSemicolon || cur.Type == TokenRBrace || cur.Type == TokenEOF || cur.NewlineBefore {
		return ret, ps.endStatement()
	}
	x, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	ret.Value = x
	ret.SpanVal = joinSpan(ret.SpanVal, x.Span())
	return ret, ps.endStatement()
}

// parseCondition parses `( expr )`.
func (ps *Parser) parseCondition() (Expr, error) {
	if err := ps.expect(TokenLParen); err != nil {
		return nil, err
	}
	x, err := ps.parseSequence(ps.stopAt(TokenRParen))
	if err != nil {
		return nil, err
	}
	return x, ps.expect(TokenRParen)
}

func (ps *Parser) parseIf() (Stmt, error) {
	start := ps.cur()
	stmt := &IfStmt{}
	for {
		ps.next() // if
		cond, err := ps.parseCondition()
		if err != nil {
			return nil, err
		}
		body, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.Clauses = append(stmt.Clauses, IfClause{Cond: cond, Body: body})
		stmt.SpanVal = joinSpan(tokenSpan(start), body.Span())

		if ps.cur().Type != TokenElse {
			return stmt, nil
		}
		ps.next()
		if ps.cur().Type == TokenIf {
			continue
		}
		els, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
		stmt.SpanVal = joinSpan(tokenSpan(start), els.Span())
		return stmt, nil
	}
}

func (ps *Parser) parseWhile() (Stmt, error) {
	start := ps.next()
	cond, err := ps.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := ps.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{SpanVal: joinSpan(tokenSpan(start), body.Span()), Cond: cond, Body: body}, nil
}

func (ps *Parser) parseDoWhile() (Stmt, error) {
	start := ps.next()
	body, err := ps.parseStatement()
	if err != nil {
		return nil, err
	}
	if err := ps.expect(TokenWhile); err != nil {
		return nil, err
	}
	end := ps.cur()
	cond, err := ps.parseCondition()
	if err != nil {
		return nil, err
	}
	if ps.cur().Type == TokenSemicolon {
		ps.next()
	}
	return &DoWhileStmt{SpanVal: joinSpan(tokenSpan(start), tokenSpan(end)), Body: body, Cond: cond}, nil
}

func (ps *Parser) parseFor() (Stmt, error) {
	start := ps.next()
	if err := ps.expect(TokenLParen); err != nil {
		return nil, err
	}
	stmt := &ForStmt{Init: Empty, Cond: Empty, Update: Empty}

	switch ps.cur().Type {
	case TokenSemicolon:
	case TokenVar, TokenLet, TokenConst:
		decl, err := ps.parseVarDecl(ps.stopAt(TokenSemicolon))
		if err != nil {
			return nil, err
		}
		stmt.Init = decl
	default:
		x, err := ps.parseSequence(ps.stopAt(TokenSemicolon))
		if err != nil {
			return nil, err
		}
		stmt.Init = &ExprStmt{SpanVal: x.Span(), X: x}
	}
	if err := ps.expect(TokenSemicolon); err != nil {
		return nil, err
	}

	if ps.cur().Type != TokenSemicolon {
		x, err := ps.parseSequence(ps.stopAt(TokenSemicolon))
		if err != nil {
			return nil, err
		}
		stmt.Cond = x
	}
	if err := ps.expect(TokenSemicolon); err != nil {
		return nil, err
	}

	if ps.cur().Type != TokenRParen {
		x, err := ps.parseSequence(ps.stopAt(TokenRParen))
		if err != nil {
			return nil, err
		}
		stmt.Update = x
	}
	if err := ps.expect(TokenRParen); err != nil {
		return nil, err
	}

	body, err := ps.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	stmt.SpanVal = joinSpan(tokenSpan(start), body.Span())
	return stmt, nil
}

func (ps *Parser) parseSwitch() (Stmt, error) {
	start := ps.next()
	subject, err := ps.parseCondition()
	if err != nil {
		return nil, err
	}
	if err := ps.expect(TokenLBrace); err != nil {
		return nil, err
	}

	stmt := &SwitchStmt{Subject: subject}
	seenDefault := false
	for ps.cur().Type != TokenRBrace {
		label := ps.cur()
		clause := CaseClause{Pos: label.Pos}
		switch label.Type {
		case TokenCase:
			ps.next()
			test, err := ps.expr.ParseUntil(ps.stopAt(TokenColon))
			if err != nil {
				return nil, err
			}
			clause.Test = test
		case TokenDefault:
			if seenDefault {
				return nil, &SyntaxError{Pos: label.Pos, Msg: "more than one default clause in switch"}
			}
			seenDefault = true
			ps.next()
		default:
			return nil, ps.wrap(ps.expr.Unexpected())
		}
		if err := ps.expect(TokenColon); err != nil {
			return nil, err
		}

		for {
			t := ps.cur().Type
			if t == TokenCase || t == TokenDefault || t == TokenRBrace {
				break
			}
			if t == TokenEOF {
				return nil, ps.wrap(ps.expr.Unexpected())
			}
			s, err := ps.parseStatement()
			if err != nil {
				return nil, err
			}
			if s != Empty {
				clause.Body = append(clause.Body, s)
			}
		}
		stmt.Cases = append(stmt.Cases, clause)
	}
	end := ps.next()
	stmt.SpanVal = joinSpan(tokenSpan(start), tokenSpan(end))
	return stmt, nil
}

package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for script source
// ---------------------------------------------------------------------------

// Lexer tokenizes script source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)

	sawNewline bool // a line break was skipped before the next token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// operators lists punctuation longest first so scanning is greedy.
var operators = []struct {
	text string
	typ  TokenType
}{
	{">>>=", TokenUShrAssign},
	{"===", TokenStrictEq},
	{"!==", TokenStrictNe},
	{"**=", TokenStarStarAssign},
	{"<<=", TokenShlAssign},
	{">>=", TokenShrAssign},
	{">>>", TokenUShr},
	{"=>", TokenArrow},
	{"==", TokenEq},
	{"!=", TokenNe},
	{"<=", TokenLe},
	{">=", TokenGe},
	{"&&", TokenAndAnd},
	{"||", TokenOrOr},
	{"++", TokenPlusPlus},
	{"--", TokenMinusMinus},
	{"+=", TokenPlusAssign},
	{"-=", TokenMinusAssign},
	{"*=", TokenStarAssign},
	{"/=", TokenSlashAssign},
	{"%=", TokenPercentAssign},
	{"&=", TokenAmpAssign},
	{"|=", TokenPipeAssign},
	{"^=", TokenCaretAssign},
	{"**", TokenStarStar},
	{"<<", TokenShl},
	{">>", TokenShr},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
	{"{", TokenLBrace},
	{"}", TokenRBrace},
	{",", TokenComma},
	{";", TokenSemicolon},
	{":", TokenColon},
	{".", TokenDot},
	{"?", TokenQuestion},
	{"=", TokenAssign},
	{"<", TokenLt},
	{">", TokenGt},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"%", TokenPercent},
	{"&", TokenAmp},
	{"|", TokenPipe},
	{"^", TokenCaret},
	{"!", TokenBang},
	{"~", TokenTilde},
}

// NextToken returns the next token. Malformed input yields a TokenError whose
// literal is the message.
func (l *Lexer) NextToken() Token {
	l.sawNewline = false
	if msg := l.skipWhitespaceAndComments(); msg != "" {
		return Token{Type: TokenError, Literal: msg, Pos: l.position()}
	}

	pos := l.position()
	tok := l.scan()
	tok.Pos = pos
	tok.Len = l.pos - pos.Offset
	tok.NewlineBefore = l.sawNewline
	return tok
}

func (l *Lexer) scan() Token {
	switch {
	case l.atEOF():
		return Token{Type: TokenEOF}
	case isIdentStart(l.ch):
		return l.readIdentifier()
	case isDigit(l.ch), l.ch == '.' && isDigit(l.peekChar()):
		return l.readNumber()
	case l.ch == '"' || l.ch == '\'':
		return l.readString(l.ch)
	}

	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			for range op.text {
				l.readChar()
			}
			return Token{Type: op.typ, Literal: op.text}
		}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + strconv.QuoteRune(ch)}
}

// skipWhitespaceAndComments skips blanks, line comments and block comments.
// It returns a message for an unterminated block comment.
func (l *Lexer) skipWhitespaceAndComments() string {
	for !l.atEOF() {
		switch {
		case l.ch == '\n':
			l.sawNewline = true
			l.readChar()
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for {
				if l.atEOF() {
					return "unterminated comment"
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				if l.ch == '\n' {
					l.sawNewline = true
				}
				l.readChar()
			}
		default:
			return ""
		}
	}
	return ""
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for isIdentPart(l.ch) && !l.atEOF() {
		l.readChar()
	}
	word := l.input[start:l.pos]
	if typ, ok := keywords[word]; ok {
		return Token{Type: typ, Literal: word}
	}
	return Token{Type: TokenIdentifier, Literal: word}
}

func (l *Lexer) readNumber() Token {
	start := l.pos

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		text := l.input[start:l.pos]
		if len(text) == 2 {
			return Token{Type: TokenError, Literal: "malformed hex literal"}
		}
		return Token{Type: TokenInteger, Literal: text}
	}

	typ := TokenInteger
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) || l.ch == '.' && start == l.pos {
		typ = TokenFloat
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			typ = TokenFloat
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent"}
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return Token{Type: typ, Literal: l.input[start:l.pos]}
}

func (l *Lexer) readString(quote rune) Token {
	l.readChar() // opening quote
	var b strings.Builder
	for {
		if l.atEOF() || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string"}
		}
		if l.ch == quote {
			l.readChar()
			return Token{Type: TokenString, Literal: b.String()}
		}
		if l.ch != '\\' {
			b.WriteRune(l.ch)
			l.readChar()
			continue
		}

		l.readChar()
		switch l.ch {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'u':
			if l.readPos+4 > len(l.input) {
				return Token{Type: TokenError, Literal: "malformed unicode escape"}
			}
			code, err := strconv.ParseUint(l.input[l.readPos:l.readPos+4], 16, 32)
			if err != nil {
				return Token{Type: TokenError, Literal: "malformed unicode escape"}
			}
			for i := 0; i < 4; i++ {
				l.readChar()
			}
			b.WriteRune(rune(code))
		case 0:
			return Token{Type: TokenError, Literal: "unterminated string"}
		default:
			b.WriteRune(l.ch)
		}
		l.readChar()
	}
}

func isIdentStart(ch rune) bool {
	return ch == '_' || ch == '$' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch rune) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

// Tokenize scans src completely. The returned slice always ends with a
// TokenEOF token.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var toks []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: tok.Literal}
		}
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks, nil
		}
	}
}
